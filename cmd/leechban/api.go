// Copyright (C) 2024 XELIS
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"crypto/subtle"
	"errors"
	"leechban/config"
	"leechban/log"
	"leechban/policy"
	"leechban/ratelimit"
	"net"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func apiError(c *gin.Context, status, code int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": msg,
		},
	})
}

// publicUser hides where a user connects from.
func publicUser(u policy.UserRecord) policy.UserRecord {
	u.Ip = ""
	u.Port = 0
	u.Country = ""
	return u
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Next()
	}
}

func rateLimit(d *Daemon, score uint32) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.Limiter.CanDoAction(c.ClientIP(), score) {
			d.Metrics.apiBlocked.Inc()
			apiError(c, 429, 2, "too many requests")
			return
		}
		c.Next()
	}
}

func checkAdmin(d *Daemon) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.AdminPass == "" {
			apiError(c, 403, 3, "admin api disabled")
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.Param("pass")), []byte(d.AdminPass)) != 1 {
			log.Warn("wrong admin password from", c.ClientIP())
			apiError(c, 401, 4, "wrong password")
			return
		}
		c.Next()
	}
}

func newRouter(d *Daemon) *gin.Engine {
	gin.SetMode("release")
	r := gin.New()
	r.Use(gin.Recovery())

	r.SetTrustedProxies([]string{
		"127.0.0.1",
	})

	r.Use(cors())

	r.GET("/ping", func(c *gin.Context) {
		c.String(200, "pong")
	})

	// scrapes and the feed aren't rate limited
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler(d.Engine)))
	r.GET("/feed", gin.WrapH(d.Feed))

	pub := r.Group("/", rateLimit(d, ratelimit.ACTION_API_REQUEST))

	pub.GET("/stats", func(c *gin.Context) {
		c.Header("Cache-Control", "max-age=10")

		counts := d.Engine.Counts()
		users := make(map[string]int, len(counts))
		for state, n := range counts {
			users[state.String()] = n
		}

		cfg := d.Engine.Config()

		c.JSON(200, gin.H{
			"version":           config.VERSION,
			"uptime":            int64(time.Since(d.Started).Seconds()),
			"plugins_connected": d.Host.NumConns(),
			"feed_clients":      d.Feed.NumClients(),
			"users":             users,
			"detected_leechers": len(d.Engine.DetectedLeechers()),
			"blocked_ips":       len(d.Host.GetIpBlockList()),
			"min_files":         cfg.MinFiles,
			"min_folders":       cfg.MinFolders,
		})
	})

	pub.GET("/leechers", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"leechers": d.Engine.DetectedLeechers(),
		})
	})

	pub.GET("/users", func(c *gin.Context) {
		users := d.Engine.Users()
		for i := range users {
			users[i] = publicUser(users[i])
		}
		c.JSON(200, users)
	})

	pub.GET("/users/:name", func(c *gin.Context) {
		u, ok := d.Engine.User(c.Param("name"))
		if !ok {
			apiError(c, 404, 1, "user not found")
			return
		}
		c.JSON(200, publicUser(u))
	})

	pub.GET("/blocklist", func(c *gin.Context) {
		if d.Store == nil {
			c.JSON(200, d.Host.GetIpBlockList())
			return
		}
		entries, err := d.Store.Entries()
		if err != nil {
			log.Err(err)
			apiError(c, 500, 5, "internal error")
			return
		}
		c.JSON(200, entries)
	})

	admin := r.Group("/admin/:pass", rateLimit(d, ratelimit.ACTION_ADMIN_REQUEST), checkAdmin(d))

	admin.GET("/users/:name", func(c *gin.Context) {
		u, ok := d.Engine.User(c.Param("name"))
		if !ok {
			apiError(c, 404, 1, "user not found")
			return
		}
		c.JSON(200, u)
	})

	admin.POST("/check/:name", func(c *gin.Context) {
		state, err := d.Engine.Check(c.Param("name"))
		if errors.Is(err, policy.ErrMissingStats) {
			// evaluated as soon as the plugin reports the counts
			c.JSON(202, gin.H{
				"state":   state,
				"pending": true,
			})
			return
		}
		c.JSON(200, gin.H{
			"state": state,
		})
	})

	admin.DELETE("/blocklist/:ip", func(c *gin.Context) {
		ip := c.Param("ip")
		if net.ParseIP(ip) == nil {
			apiError(c, 400, 6, "invalid ip")
			return
		}

		found, err := d.Engine.Unblock(ip)
		if err != nil {
			log.Err(err)
			apiError(c, 500, 5, "internal error")
			return
		}
		if !found {
			apiError(c, 404, 7, "ip not blocked")
			return
		}
		log.Info("Unblocked IP", ip)
		c.JSON(200, gin.H{
			"unblocked": ip,
		})
	})

	return r
}

func StartApiServer(d *Daemon, port uint16) {
	addr := config.API_HOST + ":" + strconv.FormatUint(uint64(port), 10)
	log.Info("API listening on", addr)

	err := newRouter(d).Run(addr)
	if err != nil {
		log.Fatal(err)
	}
}
