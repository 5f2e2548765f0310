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

package policy

import (
	"errors"
	"leechban/log"
	"time"
)

var (
	// ErrMissingStats means the host has no share counts for the user yet.
	ErrMissingStats = errors.New("no cached stats for user")
	// ErrUnresolvedIp means an IP block was requested for a user whose
	// address was never resolved.
	ErrUnresolvedIp = errors.New("user ip address was not resolved")
	// ErrDuplicateBlock means the IP is already in the block list.
	ErrDuplicateBlock = errors.New("ip already blocked")
)

// one-shot log guards, cleared whenever the user changes state
type logOnce uint16

const (
	onceOkay logOnce = 1 << iota
	onceBuddy
	onceBypass
	onceDetected
	onceKnownLeecher
	onceMessage
)

// UserRecord is everything the engine knows about one username. Records are
// created on first notification and kept for the lifetime of the engine.
type UserRecord struct {
	Username string     `json:"username"`
	State    ProbeState `json:"state"`

	// uploads queued by the user since the engine started
	UploadCount uint64 `json:"upload_count"`

	// last known share counts, valid when HasStats is set
	Files    int  `json:"files"`
	Folders  int  `json:"folders"`
	HasStats bool `json:"has_stats"`

	LastBannedAt time.Time `json:"last_banned_at,omitzero"`

	Ip      string `json:"ip,omitempty"`
	Port    uint32 `json:"port,omitempty"`
	Country string `json:"country,omitempty"`

	MessagesReceived uint32 `json:"messages_received"`

	logged logOnce
}

func (e *Engine) record(username string) *UserRecord {
	r, ok := e.users[username]
	if !ok {
		r = &UserRecord{
			Username: username,
		}
		e.users[username] = r
	}
	return r
}

func (e *Engine) setState(r *UserRecord, to ProbeState) bool {
	if r.State == to {
		return true
	}
	if !canTransition(r.State, to) {
		log.Errf("refusing state change %s -> %s for %s", r.State, to, r.Username)
		return false
	}
	log.Devf("%s: %s -> %s", r.Username, r.State, to)
	r.State = to
	r.logged = 0
	return true
}
