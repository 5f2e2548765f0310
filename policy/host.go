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
	mapset "github.com/deckarep/golang-set/v2"
)

// Stats are the share counts the server reports for a user.
type Stats struct {
	Files   int `json:"files"`
	Folders int `json:"folders"`
}

// Host is everything the engine needs from the file-sharing client.
// All calls are made with the engine lock held and must not call back
// into the engine. Ban, message and share requests are fire-and-forget.
type Host interface {
	// GetWatchedStats returns the cached share counts of a user, if the
	// client has any yet.
	GetWatchedStats(username string) (Stats, bool)
	GetBuddyUsernames() mapset.Set[string]

	BanUser(username string)
	UnbanUser(username string)
	IgnoreUser(username string)
	UnignoreUser(username string)

	// RequestUserShares asks the client to browse the user's shares, which
	// refreshes the stats it reports afterwards.
	RequestUserShares(username string)
	SendPrivateMessage(username, text string, showUi bool)

	// GetIpBlockList returns the ip -> username block list owned by the host.
	// The engine may modify the returned map and hand it back through
	// SetIpBlockList.
	GetIpBlockList() map[string]string
	SetIpBlockList(list map[string]string)
	PersistConfig() error

	Log(msg string)
}

// LeecherStore is implemented by hosts that keep the detected leechers
// across restarts.
type LeecherStore interface {
	SaveDetectedLeechers(usernames []string) error
}
