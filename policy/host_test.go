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
	"maps"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

type sentMessage struct {
	User   string
	Text   string
	ShowUi bool
}

// fakeHost records every call made by the engine.
type fakeHost struct {
	stats   map[string]Stats
	buddies []string

	bans          []string
	unbans        []string
	ignores       []string
	unignores     []string
	shareRequests []string
	messages      []sentMessage
	logs          []string

	blockList  map[string]string
	persisted  int
	persistErr error

	saved      []string
	savedCalls int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		stats:     make(map[string]Stats),
		blockList: make(map[string]string),
	}
}

func (h *fakeHost) GetWatchedStats(username string) (Stats, bool) {
	s, ok := h.stats[username]
	return s, ok
}

func (h *fakeHost) GetBuddyUsernames() mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(h.buddies...)
}

func (h *fakeHost) BanUser(username string)      { h.bans = append(h.bans, username) }
func (h *fakeHost) UnbanUser(username string)    { h.unbans = append(h.unbans, username) }
func (h *fakeHost) IgnoreUser(username string)   { h.ignores = append(h.ignores, username) }
func (h *fakeHost) UnignoreUser(username string) { h.unignores = append(h.unignores, username) }

func (h *fakeHost) RequestUserShares(username string) {
	h.shareRequests = append(h.shareRequests, username)
}

func (h *fakeHost) SendPrivateMessage(username, text string, showUi bool) {
	h.messages = append(h.messages, sentMessage{User: username, Text: text, ShowUi: showUi})
}

// returns a copy, like a host reading its config would
func (h *fakeHost) GetIpBlockList() map[string]string {
	return maps.Clone(h.blockList)
}

func (h *fakeHost) SetIpBlockList(list map[string]string) {
	h.blockList = list
}

func (h *fakeHost) PersistConfig() error {
	if h.persistErr != nil {
		return h.persistErr
	}
	h.persisted++
	return nil
}

func (h *fakeHost) Log(msg string) { h.logs = append(h.logs, msg) }

func (h *fakeHost) SaveDetectedLeechers(usernames []string) error {
	h.saved = usernames
	h.savedCalls++
	return nil
}

func (h *fakeHost) countLogs(substr string) int {
	n := 0
	for _, l := range h.logs {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}
