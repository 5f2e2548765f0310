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
	"fmt"
	"sync/atomic"
	"time"
)

// startupMute silences the host log for a while after the plugin is loaded,
// when the client replays its whole upload queue.
type startupMute struct {
	muted atomic.Bool
	timer *time.Timer
}

// arm mutes for d, replacing a previously armed timer. d <= 0 unmutes.
func (m *startupMute) arm(d time.Duration) {
	m.cancel()
	if d <= 0 {
		return
	}
	m.muted.Store(true)
	m.timer = time.AfterFunc(d, func() {
		m.muted.Store(false)
	})
}

// cancel stops a pending timer and lifts the mute.
func (m *startupMute) cancel() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.muted.Store(false)
}

func (m *startupMute) active() bool {
	return m.muted.Load()
}

type logKind uint8

const (
	kindGeneral logKind = iota
	kindBanned
	kindIgnored
	kindLeechers
	kindIpBans
	kindRequests
	kindMeetsCriteria
	kindBuddies
)

func (e *Engine) mayLog(kind logKind) bool {
	if e.mute.active() || e.cfg.Suppress.All {
		return false
	}

	s := e.cfg.Suppress
	switch kind {
	case kindBanned:
		return !s.Banned
	case kindIgnored:
		return !s.Ignored
	case kindLeechers:
		return !s.Leechers
	case kindIpBans:
		return !s.IpBans
	case kindRequests:
		return !s.Requests
	case kindMeetsCriteria:
		return !s.MeetsCriteria
	case kindBuddies:
		return !s.Buddies
	}
	return true
}

func (e *Engine) logf(kind logKind, format string, a ...any) {
	if !e.mayLog(kind) {
		return
	}
	e.host.Log(fmt.Sprintf(format, a...))
}

// logOncef logs at most once per user and guard until the user changes state.
// The guard is only consumed when the line is actually written.
func (e *Engine) logOncef(r *UserRecord, guard logOnce, kind logKind, format string, a ...any) {
	if r.logged&guard != 0 || !e.mayLog(kind) {
		return
	}
	r.logged |= guard
	e.host.Log(fmt.Sprintf(format, a...))
}
