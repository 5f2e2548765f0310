// Copyright (C) 2024 duggavo
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

package ratelimit

import (
	"leechban/log"
	"leechban/sync"
	"time"
)

/*
consumption:
api request: 20 (100 per interval)
admin request: 200 (10 per interval)
bridge frame error: 500 (4 per interval)
*/

const (
	ACTION_API_REQUEST   = 20
	ACTION_ADMIN_REQUEST = 200
	ACTION_BAD_FRAME     = 500
)

const MAX_SCORE = 2000
const RESET_INTERVAL = 120 * time.Second
const BAN_DURATION = 5 * 60

type rateLimiter struct {
	Score uint32
}
type ban struct {
	Ends int64
}

// Limiter keeps a decaying score per IP and bans IPs going over MAX_SCORE
// for BAN_DURATION seconds.
type Limiter struct {
	maxConns uint32

	rateLimiters map[string]rateLimiter
	bans         map[string]ban
	connsPerIp   map[string]uint32

	sync.RWMutex
}

func New(maxConnsPerIp uint32) *Limiter {
	return &Limiter{
		maxConns:     maxConnsPerIp,
		rateLimiters: make(map[string]rateLimiter, 100),
		bans:         make(map[string]ban, 10),
		connsPerIp:   make(map[string]uint32, 10),
	}
}

func (l *Limiter) Ban(ip string) {
	l.Lock()
	defer l.Unlock()

	l.bans[ip] = ban{
		Ends: time.Now().Unix() + BAN_DURATION,
	}
}

func (l *Limiter) IsBanned(ip string) bool {
	l.RLock()
	defer l.RUnlock()

	return l.bans[ip].Ends > time.Now().Unix()
}

// CanDoAction adds requiredScore to the IP's score and reports whether the
// action may proceed.
func (l *Limiter) CanDoAction(ip string, requiredScore uint32) bool {
	l.Lock()
	defer l.Unlock()

	log.Dev("rate limit score", ip, l.rateLimiters[ip].Score, "/", MAX_SCORE)

	l.rateLimiters[ip] = rateLimiter{
		Score: l.rateLimiters[ip].Score + requiredScore,
	}

	t := time.Now().Unix()

	if l.bans[ip].Ends > t {
		return false
	}

	if l.rateLimiters[ip].Score > MAX_SCORE {
		l.bans[ip] = ban{
			Ends: t + BAN_DURATION,
		}
		log.Warn("rate limit exceeded, banning", ip, "for", BAN_DURATION, "seconds")
		return false
	}

	return true
}

// Run clears the scores every RESET_INTERVAL until stop is closed.
func (l *Limiter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(RESET_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Clear()
		}
	}
}

func (l *Limiter) Clear() {
	l.Lock()
	defer l.Unlock()

	// clear rate limiters
	l.rateLimiters = make(map[string]rateLimiter, len(l.rateLimiters))

	// clear outdated bans
	t := time.Now().Unix()
	bans2 := make(map[string]ban, len(l.bans))
	for i, v := range l.bans {
		if v.Ends > t { // ban is not outdated
			bans2[i] = v
		}
	}
	l.bans = bans2
}
