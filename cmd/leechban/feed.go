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

package main

import (
	"encoding/json"
	"leechban/log"
	"leechban/sync"
	"leechban/util"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	FEED_WRITE_WAIT   = 10 * time.Second
	FEED_PONG_WAIT    = 60 * time.Second
	FEED_PING_PERIOD  = (FEED_PONG_WAIT * 9) / 10
	FEED_MAX_MSG_SIZE = 512
	FEED_QUEUE        = 64
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type FeedEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Files    int    `json:"files,omitempty"`
	Folders  int    `json:"folders,omitempty"`
	Ip       string `json:"ip,omitempty"`
	Text     string `json:"text,omitempty"`
	Time     uint64 `json:"time"`
}

// Feed streams engine events to websocket clients. Slow clients miss events
// instead of blocking the engine.
type Feed struct {
	clients map[*feedClient]struct{}

	mut sync.RWMutex
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewFeed() *Feed {
	return &Feed{
		clients: make(map[*feedClient]struct{}),
	}
}

func (f *Feed) Publish(ev FeedEvent) {
	ev.Time = util.Time()
	data, err := json.Marshal(ev)
	if err != nil {
		log.Err(err)
		return
	}

	f.mut.RLock()
	defer f.mut.RUnlock()

	for c := range f.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (f *Feed) NumClients() int {
	f.mut.RLock()
	defer f.mut.RUnlock()

	return len(f.clients)
}

func (f *Feed) register(c *feedClient) {
	f.mut.Lock()
	defer f.mut.Unlock()

	f.clients[c] = struct{}{}
}

func (f *Feed) unregister(c *feedClient) {
	f.mut.Lock()
	defer f.mut.Unlock()

	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("feed upgrade failed:", err)
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan []byte, FEED_QUEUE),
	}
	f.register(c)

	go c.writePump()
	c.readPump(f)
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(FEED_PING_PERIOD)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(FEED_WRITE_WAIT))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(FEED_WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles pongs and notices the client going away.
func (c *feedClient) readPump(f *Feed) {
	defer func() {
		f.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(FEED_MAX_MSG_SIZE)
	c.conn.SetReadDeadline(time.Now().Add(FEED_PONG_WAIT))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(FEED_PONG_WAIT))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("feed client closed:", err)
			}
			return
		}
	}
}
