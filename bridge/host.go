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
	"fmt"
	"leechban/blocklist"
	"leechban/config"
	"leechban/log"
	"leechban/policy"
	"leechban/sync"
	"maps"
	"net"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// actions waiting for a slow plugin before it is disconnected
const SEND_QUEUE = 256

type Conn struct {
	Id uint64
	Ip string

	conn   net.Conn
	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
}

func newConn(id uint64, ip string, conn net.Conn) *Conn {
	return &Conn{
		Id:   id,
		Ip:   ip,
		conn: conn,
		send: make(chan []byte, SEND_QUEUE),
		done: make(chan struct{}),
	}
}

// queue hands data to the write pump without blocking. It returns false when
// the connection is closed or its queue is full.
func (c *Conn) queue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
		c.conn.Close()
	}
}

// writePump writes queued frames, giving up on a frame after config.TIMEOUT
// seconds. Any write error closes the connection.
func (c *Conn) writePump(key *[32]byte) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.TIMEOUT * time.Second))
			err := WriteFrame(c.conn, key, data)
			if err != nil {
				log.Warn("could not send to plugin", c.Ip, err)
				c.Close()
				return
			}
		}
	}
}

// Host is the daemon side of the client plugins. It caches what the plugins
// report and forwards every action of the engine to all of them.
type Host struct {
	key   *[32]byte
	store *blocklist.Store

	stats     map[string]policy.Stats
	buddies   mapset.Set[string]
	blockList map[string]string
	conns     map[uint64]*Conn

	mut sync.RWMutex
}

// NewHost loads the block list from store. store may be nil, in which case
// nothing is persisted.
func NewHost(key *[32]byte, store *blocklist.Store) (*Host, error) {
	h := &Host{
		key:       key,
		store:     store,
		stats:     make(map[string]policy.Stats, 100),
		buddies:   mapset.NewThreadUnsafeSet[string](),
		blockList: make(map[string]string),
		conns:     make(map[uint64]*Conn),
	}

	if store != nil {
		list, err := store.IpBlockList()
		if err != nil {
			return nil, fmt.Errorf("loading ip block list: %w", err)
		}
		h.blockList = list
	}

	return h, nil
}

// addConn registers c and starts its write pump.
func (h *Host) addConn(c *Conn) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.conns[c.Id] = c
	go c.writePump(h.key)
}

func (h *Host) removeConn(id uint64) {
	h.mut.Lock()
	defer h.mut.Unlock()

	delete(h.conns, id)
}

func (h *Host) dropConn(c *Conn) {
	c.Close()
	h.removeConn(c.Id)
}

func (h *Host) NumConns() int {
	h.mut.RLock()
	defer h.mut.RUnlock()

	return len(h.conns)
}

// broadcast never blocks: the engine lock is held while actions are sent.
func (h *Host) broadcast(actions ...Action) {
	h.mut.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mut.RUnlock()

	for _, a := range actions {
		data := a.Serialize()
		for _, c := range conns {
			h.send(c, data)
		}
	}
}

func (h *Host) send(c *Conn, data []byte) {
	if !c.queue(data) {
		if h.hasConn(c.Id) {
			log.Warn("plugin", c.Ip, "is not keeping up, disconnecting")
		}
		h.dropConn(c)
	}
}

func (h *Host) hasConn(id uint64) bool {
	h.mut.RLock()
	defer h.mut.RUnlock()

	_, ok := h.conns[id]
	return ok
}

func (h *Host) SetStats(username string, s policy.Stats) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.stats[username] = s
}

func (h *Host) SetBuddies(usernames []string) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.buddies = mapset.NewThreadUnsafeSet(usernames...)
}

func (h *Host) GetWatchedStats(username string) (policy.Stats, bool) {
	h.mut.RLock()
	defer h.mut.RUnlock()

	s, ok := h.stats[username]
	return s, ok
}

func (h *Host) GetBuddyUsernames() mapset.Set[string] {
	h.mut.RLock()
	defer h.mut.RUnlock()

	return h.buddies.Clone()
}

func (h *Host) BanUser(username string) {
	h.broadcast(Action{Id: ACTION_BAN, Username: username})
}

func (h *Host) UnbanUser(username string) {
	h.broadcast(Action{Id: ACTION_UNBAN, Username: username})
}

func (h *Host) IgnoreUser(username string) {
	h.broadcast(Action{Id: ACTION_IGNORE, Username: username})
}

func (h *Host) UnignoreUser(username string) {
	h.broadcast(Action{Id: ACTION_UNIGNORE, Username: username})
}

func (h *Host) RequestUserShares(username string) {
	h.broadcast(Action{Id: ACTION_REQUEST_SHARES, Username: username})
}

func (h *Host) SendPrivateMessage(username, text string, showUi bool) {
	h.broadcast(Action{Id: ACTION_SEND_PRIVATE, Username: username, Text: text, ShowUi: showUi})
}

func (h *Host) GetIpBlockList() map[string]string {
	h.mut.RLock()
	defer h.mut.RUnlock()

	return maps.Clone(h.blockList)
}

func (h *Host) SetIpBlockList(list map[string]string) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.blockList = maps.Clone(list)
}

// PersistConfig stores the block list and pushes it to the plugins.
func (h *Host) PersistConfig() error {
	list := h.GetIpBlockList()

	if h.store != nil {
		err := h.store.SaveIpBlockList(list)
		if err != nil {
			return err
		}
	}

	h.broadcast(blockListActions(list)...)
	return nil
}

func (h *Host) Log(msg string) {
	log.Info(msg)
	h.broadcast(Action{Id: ACTION_LOG, Text: msg})
}

func (h *Host) SaveDetectedLeechers(usernames []string) error {
	if h.store == nil {
		return nil
	}
	return h.store.SaveDetectedLeechers(usernames)
}

// syncConn sends the current block list to a plugin that just loaded.
func (h *Host) syncConn(c *Conn) {
	for _, a := range blockListActions(h.GetIpBlockList()) {
		h.send(c, a.Serialize())
	}
}

var _ policy.Host = (*Host)(nil)
var _ policy.LeecherStore = (*Host)(nil)
