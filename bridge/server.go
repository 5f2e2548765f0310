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
	"encoding/hex"
	"errors"
	"leechban/log"
	"leechban/policy"
	"leechban/ratelimit"
	"leechban/util"
	"net"
)

// Server accepts client plugins and feeds their notifications to the engine.
type Server struct {
	Host    *Host
	Engine  *policy.Engine
	Limiter *ratelimit.Limiter
}

func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		ip := util.RemovePort(conn.RemoteAddr().String())
		if !s.Limiter.CanConnect(ip) {
			log.Warn("refusing plugin connection from", ip)
			conn.Close()
			continue
		}

		go s.HandleClient(conn, ip)
	}
}

func (s *Server) HandleClient(conn net.Conn, ip string) {
	c := newConn(util.RandomUint64(), ip, conn)
	s.Host.addConn(c)
	log.Info("plugin connected from", ip)

	defer func() {
		s.Host.dropConn(c)
		s.Limiter.Disconnect(ip)
		log.Info("plugin disconnected from", ip)
	}()

	for {
		buf, err := ReadFrame(conn, s.Host.key)
		if err != nil {
			log.Warn(err)
			return
		}
		log.Netf("Received message: %s", hex.EncodeToString(buf))

		var ev Event
		err = ev.Deserialize(buf)
		if err != nil {
			log.Err("invalid packet from", ip, err)
			if !s.Limiter.CanDoAction(ip, ratelimit.ACTION_BAD_FRAME) {
				return
			}
			continue
		}

		s.OnEvent(ev, c)
	}
}

// OnEvent dispatches a decoded notification. The engine lock MUST NOT be held.
func (s *Server) OnEvent(ev Event, c *Conn) {
	if ev.Id != PACKET_LOADED && ev.Id != PACKET_BUDDY_LIST && ev.Username == "" {
		log.Warn("dropping packet", ev.Id, "without username")
		return
	}

	switch ev.Id {
	case PACKET_LOADED:
		s.Host.syncConn(c)
		s.Engine.Loaded()
	case PACKET_UPLOAD_QUEUED:
		s.Engine.UploadQueued(ev.Username)
	case PACKET_UPLOAD_STARTED:
		s.Engine.UploadStarted(ev.Username)
	case PACKET_UPLOAD_FINISHED:
		s.Engine.UploadFinished(ev.Username)
	case PACKET_USER_STATS:
		stats := policy.Stats{
			Files:   int(min(ev.Files, 1<<31-1)),
			Folders: int(min(ev.Folders, 1<<31-1)),
		}
		s.Host.SetStats(ev.Username, stats)
		s.Engine.UserStats(ev.Username, stats.Files, stats.Folders)
	case PACKET_USER_RESOLVED:
		s.Engine.UserResolved(ev.Username, ev.Ip, ev.Port, ev.Country)
	case PACKET_BUDDY_LIST:
		s.Host.SetBuddies(ev.Buddies)
		log.Debug("received", len(ev.Buddies), "buddies")
	case PACKET_PRIVATE_MESSAGE:
		s.Engine.PrivateMessageReceived(ev.Username, ev.Text)
	}
}
