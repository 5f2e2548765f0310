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
	"errors"
	"fmt"
	"leechban/blocklist"
	"leechban/bridge"
	"leechban/cfg"
	"leechban/config"
	"leechban/log"
	"leechban/policy"
	"leechban/ratelimit"
	"leechban/sync"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Config   string `short:"c" long:"config" default:"config.json" description:"Path to the configuration file"`
	LogFile  string `long:"logfile" description:"Also write the log to this file, rotated when it grows"`
	LogLevel int    `long:"loglevel" default:"-1" description:"Override the configured log level (0-3)"`
	Version  bool   `short:"V" long:"version" description:"Print the version and exit"`
}

// Daemon holds everything the API and the hooks need.
type Daemon struct {
	Engine  *policy.Engine
	Host    *bridge.Host
	Store   *blocklist.Store
	Limiter *ratelimit.Limiter
	Metrics *Metrics
	Feed    *Feed

	AdminPass string
	Started   time.Time
}

func (d *Daemon) hooks() policy.Hooks {
	return policy.Hooks{
		OnDetect: func(username string, files, folders int) {
			d.Metrics.detected.Inc()
			d.Feed.Publish(FeedEvent{Type: "detect", Username: username, Files: files, Folders: folders})
		},
		OnBan: func(username string, files, folders int) {
			d.Metrics.bans.Inc()
			log.Banf("%s (%d files, %d folders)", username, files, folders)
			d.Feed.Publish(FeedEvent{Type: "ban", Username: username, Files: files, Folders: folders})
			notifyBan(username, files, folders)
		},
		OnRecover: func(username string) {
			d.Metrics.recovered.Inc()
			d.Feed.Publish(FeedEvent{Type: "recover", Username: username})
		},
		OnIpBlocked: func(username, ip string) {
			d.Metrics.ipBlocks.Inc()
			d.Feed.Publish(FeedEvent{Type: "ip_blocked", Username: username, Ip: ip})
		},
		OnMessage: func(username, line string) {
			d.Metrics.messages.Inc()
			d.Feed.Publish(FeedEvent{Type: "message", Username: username, Text: line})
		},
	}
}

func parseOptions() options {
	var opts options

	_, err := flags.Parse(&opts)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	return opts
}

func main() {
	opts := parseOptions()

	if opts.Version {
		fmt.Println("leechban", config.VERSION)
		return
	}

	if opts.LogFile != "" {
		err := log.InitRotator(opts.LogFile)
		if err != nil {
			log.Fatal(err)
		}
		defer log.CloseRotator()
	}

	err := cfg.Load(opts.Config)
	if errors.Is(err, cfg.ErrBlankConfig) {
		log.Err(err)
		log.Info("Set BridgePass in", opts.Config, "and restart")
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	if opts.LogLevel >= 0 {
		log.LogLevel = uint8(opts.LogLevel)
	}
	sync.SetDeadlockTimeout(time.Duration(cfg.Cfg.DeadlockTimeout) * time.Second)

	store, err := blocklist.Open(cfg.Cfg.DbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	host, err := bridge.NewHost(&cfg.BridgeKey, store)
	if err != nil {
		log.Fatal(err)
	}

	d := &Daemon{
		Host:      host,
		Store:     store,
		Limiter:   ratelimit.New(config.MAX_CONNECTIONS_PER_IP),
		Metrics:   NewMetrics(host.NumConns),
		Feed:      NewFeed(),
		AdminPass: cfg.Cfg.AdminPass,
		Started:   time.Now(),
	}
	d.Engine = policy.New(host, cfg.Cfg.PolicyConfig(), d.hooks())
	defer d.Engine.Close()

	leechers, err := store.DetectedLeechers()
	if err != nil {
		log.Fatal(err)
	}
	d.Engine.RestoreDetected(leechers)
	log.Info("Restored", len(leechers), "detected leechers")

	startDiscord(cfg.Cfg.DiscordWebhook)

	stop := make(chan struct{})
	go d.Limiter.Run(stop)

	srv, err := net.Listen("tcp", config.BRIDGE_HOST+":"+strconv.FormatUint(uint64(cfg.Cfg.BridgePort), 10))
	if err != nil {
		log.Fatal(err)
	}
	log.Info("Bridge listening on", srv.Addr())

	go StartApiServer(d, cfg.Cfg.ApiPort)

	bridgeSrv := &bridge.Server{
		Host:    host,
		Engine:  d.Engine,
		Limiter: d.Limiter,
	}
	go func() {
		err := bridgeSrv.Serve(srv)
		if err != nil {
			log.Err(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	close(stop)
	srv.Close()
}
