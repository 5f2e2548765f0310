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
	"leechban/sync"
	"net"
)

// Client is the plugin side of the bridge.
type Client struct {
	key  *[32]byte
	conn net.Conn

	writeMut sync.RWMutex
}

func Dial(addr string, key *[32]byte) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, key), nil
}

func NewClient(conn net.Conn, key *[32]byte) *Client {
	return &Client{
		key:  key,
		conn: conn,
	}
}

func (c *Client) Send(ev Event) error {
	c.writeMut.Lock()
	defer c.writeMut.Unlock()

	return WriteFrame(c.conn, c.key, ev.Serialize())
}

// Recv blocks until the daemon sends an action.
func (c *Client) Recv() (Action, error) {
	buf, err := ReadFrame(c.conn, c.key)
	if err != nil {
		return Action{}, err
	}

	var a Action
	err = a.Deserialize(buf)
	return a, err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
