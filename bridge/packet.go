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

package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"leechban/config"
	"maps"
	"slices"

	"github.com/duggavo/serializer"
)

// client -> daemon
const (
	PACKET_LOADED uint8 = iota
	PACKET_UPLOAD_QUEUED
	PACKET_UPLOAD_STARTED
	PACKET_UPLOAD_FINISHED
	PACKET_USER_STATS
	PACKET_USER_RESOLVED
	PACKET_BUDDY_LIST
	PACKET_PRIVATE_MESSAGE
)

// daemon -> client
const (
	ACTION_BAN uint8 = iota
	ACTION_UNBAN
	ACTION_IGNORE
	ACTION_UNIGNORE
	ACTION_REQUEST_SHARES
	ACTION_SEND_PRIVATE
	ACTION_LOG
	ACTION_IP_BLOCKLIST
)

var ErrUnknownPacket = errors.New("unknown packet type")

// Event is a notification sent by a client plugin. Only the fields used by
// the packet id are encoded.
type Event struct {
	Id       uint8
	Username string

	// UserStats
	Files   uint64
	Folders uint64

	// UserResolved
	Ip      string
	Port    uint32
	Country string

	// BuddyList
	Buddies []string

	// PrivateMessage
	Text string
}

func (e Event) Serialize() []byte {
	s := serializer.Serializer{
		Data: []byte{e.Id},
	}

	switch e.Id {
	case PACKET_LOADED:
	case PACKET_BUDDY_LIST:
		s.AddUvarint(uint64(len(e.Buddies)))
		for _, b := range e.Buddies {
			s.AddString(b)
		}
	default:
		s.AddString(e.Username)
	}

	switch e.Id {
	case PACKET_USER_STATS:
		s.AddUvarint(e.Files)
		s.AddUvarint(e.Folders)
	case PACKET_USER_RESOLVED:
		s.AddString(e.Ip)
		s.AddUvarint(uint64(e.Port))
		s.AddString(e.Country)
	case PACKET_PRIVATE_MESSAGE:
		s.AddString(e.Text)
	}

	return s.Data
}

func (e *Event) Deserialize(data []byte) error {
	d := serializer.Deserializer{
		Data: data,
	}

	e.Id = d.ReadUint8()
	if d.Error != nil {
		return d.Error
	}

	switch e.Id {
	case PACKET_LOADED:
	case PACKET_UPLOAD_QUEUED, PACKET_UPLOAD_STARTED, PACKET_UPLOAD_FINISHED:
		e.Username = d.ReadString()
	case PACKET_USER_STATS:
		e.Username = d.ReadString()
		e.Files = d.ReadUvarint()
		e.Folders = d.ReadUvarint()
	case PACKET_USER_RESOLVED:
		e.Username = d.ReadString()
		e.Ip = d.ReadString()
		port := d.ReadUvarint()
		if port > 0xffff {
			return fmt.Errorf("invalid port %d", port)
		}
		e.Port = uint32(port)
		e.Country = d.ReadString()
	case PACKET_BUDDY_LIST:
		n := d.ReadUvarint()
		if n > config.MAX_BUDDIES {
			return fmt.Errorf("too many buddies: %d", n)
		}
		e.Buddies = make([]string, 0, n)
		for i := uint64(0); i < n && d.Error == nil; i++ {
			e.Buddies = append(e.Buddies, d.ReadString())
		}
	case PACKET_PRIVATE_MESSAGE:
		e.Username = d.ReadString()
		e.Text = d.ReadString()
	default:
		return fmt.Errorf("%w %d", ErrUnknownPacket, e.Id)
	}

	return d.Error
}

// Action is a command sent by the daemon to the client plugins.
type Action struct {
	Id       uint8
	Username string

	// SendPrivate and Log
	Text   string
	ShowUi bool

	// IpBlockList, ip -> username. A list too large for one frame is split:
	// the first packet replaces the list, the next ones have Append set.
	IpBlockList map[string]string
	Append      bool
}

func (a Action) Serialize() []byte {
	s := serializer.Serializer{
		Data: []byte{a.Id},
	}

	switch a.Id {
	case ACTION_LOG:
		s.AddString(a.Text)
	case ACTION_SEND_PRIVATE:
		s.AddString(a.Username)
		s.AddString(a.Text)
		if a.ShowUi {
			s.Data = append(s.Data, 1)
		} else {
			s.Data = append(s.Data, 0)
		}
	case ACTION_IP_BLOCKLIST:
		if a.Append {
			s.Data = append(s.Data, 1)
		} else {
			s.Data = append(s.Data, 0)
		}
		s.AddUvarint(uint64(len(a.IpBlockList)))
		for _, ip := range slices.Sorted(maps.Keys(a.IpBlockList)) {
			s.AddString(ip)
			s.AddString(a.IpBlockList[ip])
		}
	default:
		s.AddString(a.Username)
	}

	return s.Data
}

func (a *Action) Deserialize(data []byte) error {
	d := serializer.Deserializer{
		Data: data,
	}

	a.Id = d.ReadUint8()
	if d.Error != nil {
		return d.Error
	}

	switch a.Id {
	case ACTION_BAN, ACTION_UNBAN, ACTION_IGNORE, ACTION_UNIGNORE, ACTION_REQUEST_SHARES:
		a.Username = d.ReadString()
	case ACTION_SEND_PRIVATE:
		a.Username = d.ReadString()
		a.Text = d.ReadString()
		a.ShowUi = d.ReadUint8() != 0
	case ACTION_LOG:
		a.Text = d.ReadString()
	case ACTION_IP_BLOCKLIST:
		a.Append = d.ReadUint8() != 0
		n := d.ReadUvarint()
		if n > config.MAX_PACKET_SIZE {
			return fmt.Errorf("invalid block list size %d", n)
		}
		a.IpBlockList = make(map[string]string, n)
		for i := uint64(0); i < n && d.Error == nil; i++ {
			ip := d.ReadString()
			a.IpBlockList[ip] = d.ReadString()
		}
	default:
		return fmt.Errorf("%w %d", ErrUnknownPacket, a.Id)
	}

	return d.Error
}

// room left for the packet id, the append flag and the entry count
const blockListHeader = 2 + binary.MaxVarintLen64

// blockListActions splits list into ACTION_IP_BLOCKLIST packets that each fit
// in a frame.
func blockListActions(list map[string]string) []Action {
	var actions []Action

	cur := Action{Id: ACTION_IP_BLOCKLIST, IpBlockList: make(map[string]string)}
	size := blockListHeader
	for _, ip := range slices.Sorted(maps.Keys(list)) {
		entry := len(ip) + len(list[ip]) + 2*binary.MaxVarintLen64
		if len(cur.IpBlockList) > 0 && size+entry > config.MAX_PACKET_SIZE {
			actions = append(actions, cur)
			cur = Action{Id: ACTION_IP_BLOCKLIST, IpBlockList: make(map[string]string), Append: true}
			size = blockListHeader
		}
		cur.IpBlockList[ip] = list[ip]
		size += entry
	}

	return append(actions, cur)
}
