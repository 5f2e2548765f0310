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

// Package policy decides which users requesting uploads share too little,
// and bans, ignores and messages them through the host client.
package policy

import (
	"leechban/log"
	"leechban/sync"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Hooks are called after the matching action was sent to the host, with the
// engine lock held. They must not call back into the engine.
type Hooks struct {
	OnDetect    func(username string, files, folders int)
	OnBan       func(username string, files, folders int)
	OnRecover   func(username string)
	OnIpBlocked func(username, ip string)
	OnMessage   func(username, line string)
}

type Engine struct {
	host  Host
	cfg   Config
	hooks Hooks
	now   func() time.Time

	users    map[string]*UserRecord
	detected mapset.Set[string]
	// detected users that were banned, the subset kept across restarts
	enforced mapset.Set[string]
	mute     startupMute

	mut sync.RWMutex
}

func New(host Host, cfg Config, hooks Hooks) *Engine {
	return &Engine{
		host:     host,
		cfg:      cfg.Clamped(),
		hooks:    hooks,
		now:      time.Now,
		users:    make(map[string]*UserRecord, 100),
		detected: mapset.NewThreadUnsafeSet[string](),
		enforced: mapset.NewThreadUnsafeSet[string](),
	}
}

// SetClock replaces the time source used for ban cooldowns.
func (e *Engine) SetClock(now func() time.Time) {
	e.mut.Lock()
	defer e.mut.Unlock()

	e.now = now
}

// RestoreDetected seeds the detected leechers saved by a previous run.
// Those users are not banned again when they are probed.
func (e *Engine) RestoreDetected(usernames []string) {
	e.mut.Lock()
	defer e.mut.Unlock()

	for _, u := range usernames {
		e.detected.Add(u)
		e.enforced.Add(u)
	}
}

// Loaded applies the configured minimums, reports the effective thresholds
// and starts the startup log mute.
func (e *Engine) Loaded() {
	e.mut.Lock()
	defer e.mut.Unlock()

	e.cfg = e.cfg.Clamped()
	e.logf(kindGeneral, "Users need at least %d files and %d folders.", e.cfg.MinFiles, e.cfg.MinFolders)
	e.mute.arm(e.cfg.StartupSuppressDelay)
}

// Close cancels the startup mute timer.
func (e *Engine) Close() {
	e.mut.Lock()
	defer e.mut.Unlock()

	e.mute.cancel()
}

func (e *Engine) UploadQueued(username string) {
	e.mut.Lock()
	defer e.mut.Unlock()

	r := e.record(username)
	r.UploadCount++
	e.probe(r, true)
}

// UploadStarted probes users whose upload started without being queued
// first. It does not count towards rechecks.
func (e *Engine) UploadStarted(username string) {
	e.mut.Lock()
	defer e.mut.Unlock()

	e.probe(e.record(username), false)
}

// UploadFinished enforces the policy on a pending leecher, once per cycle.
func (e *Engine) UploadFinished(username string) {
	e.mut.Lock()
	defer e.mut.Unlock()

	r, ok := e.users[username]
	if !ok || r.State != PendingLeecher {
		return
	}
	if e.bypassedBuddy(username) {
		e.releaseBuddy(r)
		return
	}

	e.setState(r, ProcessedLeecher)
	e.enforce(r)
}

// UserStats handles fresh share counts for a user. Users that never requested
// an upload and users already found okay are left alone.
func (e *Engine) UserStats(username string, files, folders int) {
	e.mut.Lock()
	defer e.mut.Unlock()

	r, ok := e.users[username]
	if !ok || r.State == Unprobed {
		log.Devf("ignoring stats of %s, not probed", username)
		return
	}

	e.evaluate(r, files, folders, false)
}

// UserResolved records the address of a user. The IP and port are kept from
// the first notification; only the country may change afterwards.
func (e *Engine) UserResolved(username, ip string, port uint32, country string) {
	e.mut.Lock()
	defer e.mut.Unlock()

	r := e.record(username)
	if r.Ip == "" {
		r.Ip = ip
		r.Port = port
		r.Country = country
		return
	}
	if country != "" && country != r.Country {
		r.Country = country
	}
}

func (e *Engine) PrivateMessageReceived(username, text string) {
	e.mut.Lock()
	defer e.mut.Unlock()

	r := e.record(username)
	r.MessagesReceived++
	log.Debugf("private message from %s (%d bytes)", username, len(text))
}

// Check evaluates a user on request, even one already found okay. It returns
// ErrMissingStats when the host has no counts for the user yet; the user is
// then evaluated as soon as counts arrive.
func (e *Engine) Check(username string) (ProbeState, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	r := e.record(username)
	if r.State == Unprobed {
		e.setState(r, RequestingStats)
	}

	stats, ok := e.host.GetWatchedStats(username)
	if !ok {
		return r.State, ErrMissingStats
	}
	e.evaluate(r, stats.Files, stats.Folders, true)

	return r.State, nil
}

// probe starts or continues fetching the counts of a user, and triggers the
// periodic recheck for users that already have a verdict.
func (e *Engine) probe(r *UserRecord, counted bool) {
	switch r.State {
	case Unprobed:
		e.setState(r, RequestingStats)
		fallthrough
	case RequestingStats:
		stats, ok := e.host.GetWatchedStats(r.Username)
		if !ok {
			log.Devf("%s: %v, waiting", r.Username, ErrMissingStats)
			return
		}
		e.evaluate(r, stats.Files, stats.Folders, false)
	default:
		if !counted || !e.cfg.RecheckEnabled || r.UploadCount%uint64(e.cfg.RecheckInterval) != 0 {
			return
		}
		stats, ok := e.host.GetWatchedStats(r.Username)
		if !ok {
			return
		}
		log.Debugf("rechecking %s after %d uploads", r.Username, r.UploadCount)
		e.evaluate(r, stats.Files, stats.Folders, true)
	}
}

func (e *Engine) Config() Config {
	e.mut.RLock()
	defer e.mut.RUnlock()

	return e.cfg
}

func (e *Engine) User(username string) (UserRecord, bool) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	r, ok := e.users[username]
	if !ok {
		return UserRecord{}, false
	}
	return *r, true
}

// Users returns a copy of every record, sorted by username.
func (e *Engine) Users() []UserRecord {
	e.mut.RLock()
	defer e.mut.RUnlock()

	out := make([]UserRecord, 0, len(e.users))
	for _, r := range e.users {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b UserRecord) int {
		if a.Username < b.Username {
			return -1
		} else if a.Username > b.Username {
			return 1
		}
		return 0
	})
	return out
}

func (e *Engine) DetectedLeechers() []string {
	e.mut.RLock()
	defer e.mut.RUnlock()

	return e.detectedSorted()
}

// Counts returns the number of users in each state.
func (e *Engine) Counts() map[ProbeState]int {
	e.mut.RLock()
	defer e.mut.RUnlock()

	c := make(map[ProbeState]int, len(stateNames))
	for _, r := range e.users {
		c[r.State]++
	}
	return c
}

func (e *Engine) detectedSorted() []string {
	out := e.detected.ToSlice()
	slices.Sort(out)
	return out
}
