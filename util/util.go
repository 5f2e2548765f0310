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

package util

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"
)

// RemovePort strips the port from a host:port pair. IPv6 literals keep
// their address intact.
func RemovePort(s string) string {
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return strings.Split(s, ":")[0]
	}
	return host
}

func RandomUint64() uint64 {
	b := make([]byte, 8)
	rand.Read(b)

	return binary.BigEndian.Uint64(b)
}

func Time() uint64 {
	return uint64(time.Now().Unix())
}

// SplitLines splits a multi-line text the way a text box shows it: CRLF and
// CR are line breaks too, and a trailing newline doesn't add an empty line.
func SplitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func DumpJson(d any) string {
	data, err := json.MarshalIndent(d, "", "\t")
	if err != nil {
		panic(err)
	}

	return string(data)
}

func FormatInt[K int | int8 | int16 | int32 | int64](n K) string {
	return strconv.FormatInt(int64(n), 10)
}
