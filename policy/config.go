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
	"leechban/config"
	"strconv"
	"strings"
	"time"
)

// Suppress mutes categories of messages sent to the host log.
type Suppress struct {
	All           bool
	Banned        bool
	Ignored       bool
	Leechers      bool
	IpBans        bool
	Requests      bool
	MeetsCriteria bool
	Buddies       bool
}

type Config struct {
	MinFiles   int
	MinFolders int
	// BanMinBytes is accepted for compatibility but not enforced.
	BanMinBytes int

	BypassForBuddies bool
	IgnoreOnFail     bool
	BlockIpOnBan     bool
	MessageOnBan     bool
	OpenPrivateChat  bool

	// each line is sent as a separate private message
	MessageTemplate []string

	RecheckEnabled  bool
	RecheckInterval int

	RecentBanCooldown    time.Duration
	StartupSuppressDelay time.Duration

	// BanOnDetect enforces as soon as a leecher is detected instead of
	// waiting for the upload to finish.
	BanOnDetect bool
	// VerifyZeroShares asks the host to browse the shares of a user who
	// reports zero files or folders before treating them as a leecher.
	VerifyZeroShares bool

	Suppress Suppress
}

func DefaultConfig() Config {
	return Config{
		MinFiles:          config.DEFAULT_MIN_FILES,
		MinFolders:        config.DEFAULT_MIN_FOLDERS,
		BanMinBytes:       config.DEFAULT_BAN_MIN_BYTES,
		BypassForBuddies:  true,
		MessageTemplate:   []string{config.DEFAULT_MESSAGE},
		RecheckEnabled:    true,
		RecheckInterval:   config.DEFAULT_RECHECK_INTERVAL,
		RecentBanCooldown: config.DEFAULT_RECENT_BAN_MINUTES * time.Minute,
		Suppress: Suppress{
			Ignored: true,
			IpBans:  true,
		},
	}
}

// Clamped returns a copy with every threshold raised to its floor and blank
// template lines dropped.
func (c Config) Clamped() Config {
	c.MinFiles = max(c.MinFiles, config.MIN_FILES_FLOOR)
	c.MinFolders = max(c.MinFolders, config.MIN_FOLDERS_FLOOR)
	c.RecheckInterval = max(c.RecheckInterval, config.RECHECK_INTERVAL_FLOOR)
	c.BanMinBytes = max(c.BanMinBytes, 0)
	c.RecentBanCooldown = max(c.RecentBanCooldown, 0)
	c.StartupSuppressDelay = max(c.StartupSuppressDelay, 0)

	lines := make([]string, 0, len(c.MessageTemplate))
	for _, l := range c.MessageTemplate {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	c.MessageTemplate = lines

	return c
}

// RenderLine substitutes %files% and %folders% with the configured minimums.
func (c Config) RenderLine(line string) string {
	return strings.NewReplacer(
		"%files%", strconv.Itoa(c.MinFiles),
		"%folders%", strconv.Itoa(c.MinFolders),
	).Replace(line)
}
