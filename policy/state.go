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

import "fmt"

type ProbeState uint8

const (
	Unprobed ProbeState = iota
	RequestingStats
	RequestingShares
	Okay
	PendingLeecher
	ProcessedLeecher
)

var stateNames = [...]string{
	Unprobed:         "unprobed",
	RequestingStats:  "requesting_stats",
	RequestingShares: "requesting_shares",
	Okay:             "okay",
	PendingLeecher:   "pending_leecher",
	ProcessedLeecher: "processed_leecher",
}

func (s ProbeState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s ProbeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists, for every state, the states it may move to.
// ProcessedLeecher is entered from the probing states only when the user was
// already detected in an earlier session.
var transitions = map[ProbeState][]ProbeState{
	Unprobed:         {RequestingStats},
	RequestingStats:  {RequestingShares, Okay, PendingLeecher, ProcessedLeecher},
	RequestingShares: {Okay, PendingLeecher, ProcessedLeecher},
	Okay:             {RequestingShares, PendingLeecher},
	PendingLeecher:   {Okay, ProcessedLeecher},
	ProcessedLeecher: {Okay},
}

func canTransition(from, to ProbeState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
