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
	"fmt"
	"leechban/log"
)

// enforce bans the user and runs the configured follow-ups. The ban itself is
// always sent; only the message is skipped after a recent ban.
func (e *Engine) enforce(r *UserRecord) {
	now := e.now()
	recent := !r.LastBannedAt.IsZero() && now.Sub(r.LastBannedAt) < e.cfg.RecentBanCooldown

	e.host.BanUser(r.Username)
	r.LastBannedAt = now
	e.logf(kindBanned, "Banned Leecher %s - Sharing: %d files, %d folders", r.Username, r.Files, r.Folders)

	if e.cfg.IgnoreOnFail {
		e.host.IgnoreUser(r.Username)
		e.logf(kindIgnored, "Ignored Leecher: %s", r.Username)
	}

	if e.cfg.MessageOnBan && len(e.cfg.MessageTemplate) > 0 {
		if recent {
			log.Debugf("%s was banned less than %v ago, not messaging", r.Username, e.cfg.RecentBanCooldown)
		} else {
			e.sendMessage(r)
		}
	}

	if e.cfg.BlockIpOnBan {
		err := e.blockIp(r)
		if err != nil && !errors.Is(err, ErrUnresolvedIp) && !errors.Is(err, ErrDuplicateBlock) {
			log.Warn(err)
		}
	}

	e.markEnforced(r.Username)

	if e.hooks.OnBan != nil {
		e.hooks.OnBan(r.Username, r.Files, r.Folders)
	}
}

func (e *Engine) sendMessage(r *UserRecord) {
	e.logOncef(r, onceMessage, kindBanned, "Sending message to banned user %s", r.Username)

	for _, line := range e.cfg.MessageTemplate {
		line = e.cfg.RenderLine(line)
		e.host.SendPrivateMessage(r.Username, line, e.cfg.OpenPrivateChat)
		if e.hooks.OnMessage != nil {
			e.hooks.OnMessage(r.Username, line)
		}
	}
}

// blockIp adds the resolved IP of the user to the host block list and asks
// the host to persist it.
func (e *Engine) blockIp(r *UserRecord) error {
	if r.Ip == "" {
		e.logf(kindIpBans, "Username %s IP address was not resolved", r.Username)
		return ErrUnresolvedIp
	}

	list := e.host.GetIpBlockList()
	if list == nil {
		list = make(map[string]string, 1)
	}
	if _, ok := list[r.Ip]; ok {
		e.logf(kindIpBans, "IP already blocked: %s", r.Ip)
		return ErrDuplicateBlock
	}

	list[r.Ip] = r.Username
	e.host.SetIpBlockList(list)
	e.logf(kindIpBans, "Blocked IP: %s", r.Ip)
	if e.hooks.OnIpBlocked != nil {
		e.hooks.OnIpBlocked(r.Username, r.Ip)
	}

	err := e.host.PersistConfig()
	if err != nil {
		return fmt.Errorf("persisting ip block list: %w", err)
	}
	return nil
}

// Unblock removes ip from the host block list, reporting whether it was
// listed. It runs under the engine lock so it can't race blockIp.
func (e *Engine) Unblock(ip string) (bool, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	list := e.host.GetIpBlockList()
	username, ok := list[ip]
	if !ok {
		return false, nil
	}
	delete(list, ip)
	e.host.SetIpBlockList(list)
	e.logf(kindIpBans, "Unblocked IP: %s (%s)", ip, username)

	err := e.host.PersistConfig()
	if err != nil {
		return true, fmt.Errorf("persisting ip block list: %w", err)
	}
	return true, nil
}
