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

package ratelimit

import "time"

// returns true and increases IP connections by 1 if the client can connect,
// otherwise returns false and does not increase number of connections
func (l *Limiter) CanConnect(ip string) bool {
	l.Lock()
	defer l.Unlock()

	if l.bans[ip].Ends > time.Now().Unix() {
		return false
	}
	if l.connsPerIp[ip] >= l.maxConns {
		return false
	}
	l.connsPerIp[ip]++

	return true
}

func (l *Limiter) Disconnect(ip string) {
	l.Lock()
	defer l.Unlock()

	if l.connsPerIp[ip] > 0 {
		l.connsPerIp[ip]--
	}
	if l.connsPerIp[ip] == 0 {
		delete(l.connsPerIp, ip)
	}
}
