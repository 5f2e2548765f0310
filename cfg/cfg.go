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

package cfg

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"leechban/config"
	"leechban/log"
	"leechban/policy"
	"leechban/util"
	"os"
	"strings"
	"time"
)

var Cfg Config

var BridgeKey [32]byte

var ErrBlankConfig = errors.New("blank configuration created")

type Config struct {
	LogLevel uint8
	// seconds a lock may be waited on before it is reported, 0 disables
	DeadlockTimeout int

	// bridge password is hashed with sha256 to make it fixed-length (32 bytes long)
	BridgePass string
	BridgePort uint16

	ApiPort   uint16
	AdminPass string

	DbPath         string
	DiscordWebhook string

	Policy Policy
}

type Policy struct {
	MinFiles    int
	MinFolders  int
	BanMinBytes int

	BypassForBuddies bool
	IgnoreOnFail     bool
	BlockIpOnBan     bool
	MessageOnBan     bool
	OpenPrivateChat  bool

	// one private message per line
	Message string

	RecheckEnabled  bool
	RecheckInterval int

	// seconds
	StartupSuppressDelay int
	// minutes
	RecentBanCooldown int

	BanOnDetect      bool
	VerifyZeroShares bool

	Suppress policy.Suppress
}

func Default() Config {
	p := policy.DefaultConfig()

	return Config{
		DeadlockTimeout: 30,
		BridgePort:      6250,
		ApiPort:         6251,
		DbPath:          config.DB_FILE,
		Policy: Policy{
			MinFiles:          p.MinFiles,
			MinFolders:        p.MinFolders,
			BanMinBytes:       p.BanMinBytes,
			BypassForBuddies:  p.BypassForBuddies,
			Message:           strings.Join(p.MessageTemplate, "\n"),
			RecheckEnabled:    p.RecheckEnabled,
			RecheckInterval:   p.RecheckInterval,
			RecentBanCooldown: config.DEFAULT_RECENT_BAN_MINUTES,
			Suppress:          p.Suppress,
		},
	}
}

// Load reads the configuration at path into Cfg. When the file does not
// exist, a default one is written and ErrBlankConfig is returned.
func Load(path string) error {
	fd, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		blankCfg, err := json.MarshalIndent(Default(), "", "\t")
		if err != nil {
			return err
		}
		err = os.WriteFile(path, blankCfg, 0o600)
		if err != nil {
			return fmt.Errorf("could not write blank configuration: %w", err)
		}
		return fmt.Errorf("could not open config %s: %w", path, ErrBlankConfig)
	}

	c := Default()
	err = json.Unmarshal(fd, &c)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	if c.BridgePass == "" {
		return fmt.Errorf("invalid config %s: BridgePass is empty", path)
	}

	Cfg = c
	log.LogLevel = Cfg.LogLevel
	BridgeKey = sha256.Sum256([]byte(Cfg.BridgePass))

	return nil
}

// PolicyConfig converts the file representation into the engine config.
func (c Config) PolicyConfig() policy.Config {
	p := c.Policy

	return policy.Config{
		MinFiles:             p.MinFiles,
		MinFolders:           p.MinFolders,
		BanMinBytes:          p.BanMinBytes,
		BypassForBuddies:     p.BypassForBuddies,
		IgnoreOnFail:         p.IgnoreOnFail,
		BlockIpOnBan:         p.BlockIpOnBan,
		MessageOnBan:         p.MessageOnBan,
		OpenPrivateChat:      p.OpenPrivateChat,
		MessageTemplate:      util.SplitLines(p.Message),
		RecheckEnabled:       p.RecheckEnabled,
		RecheckInterval:      p.RecheckInterval,
		StartupSuppressDelay: time.Duration(p.StartupSuppressDelay) * time.Second,
		RecentBanCooldown:    time.Duration(p.RecentBanCooldown) * time.Minute,
		BanOnDetect:          p.BanOnDetect,
		VerifyZeroShares:     p.VerifyZeroShares,
		Suppress:             p.Suppress,
	}
}
