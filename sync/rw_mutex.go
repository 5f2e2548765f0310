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

package sync

import (
	"leechban/log"
	"time"

	sync "github.com/sasha-s/go-deadlock"
)

// RWMutex reports lock traffic at mutex log level and panics through
// go-deadlock when a lock is held for longer than DeadlockTimeout.
type RWMutex struct {
	mutex sync.RWMutex
}

var numLock sync.Mutex
var numLocked int
var numRLocked int

// SetDeadlockTimeout changes how long a lock may be waited on before
// go-deadlock reports it. Zero disables detection.
func SetDeadlockTimeout(d time.Duration) {
	if d == 0 {
		sync.Opts.Disable = true
		return
	}
	sync.Opts.Disable = false
	sync.Opts.DeadlockTimeout = d
}

func trace(counter *int, delta int, what string) {
	if log.LogLevel > 2 {
		numLock.Lock()
		*counter += delta
		log.Mutex(what, *counter)
		numLock.Unlock()
	}
}

func (r *RWMutex) Lock() {
	trace(&numLocked, 1, "Lock!")
	r.mutex.Lock()
}

func (r *RWMutex) Unlock() {
	trace(&numLocked, -1, "Unlock!")
	r.mutex.Unlock()
}

func (r *RWMutex) RLock() {
	trace(&numRLocked, 1, "RLock!")
	r.mutex.RLock()
}

func (r *RWMutex) RUnlock() {
	trace(&numRLocked, -1, "RUnlock!")
	r.mutex.RUnlock()
}
