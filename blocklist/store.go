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

// Package blocklist persists the IP block list and the detected leechers in a
// bbolt database.
package blocklist

import (
	"errors"
	"fmt"
	"leechban/log"
	"leechban/util"

	"github.com/duggavo/serializer"
	bolt "go.etcd.io/bbolt"
)

var IP_BLOCKLIST = []byte("ipblocklist")
var LEECHERS = []byte("leechers")

// Entry is the value stored for a blocked IP.
type Entry struct {
	Username  string `json:"username"`
	BlockedAt uint64 `json:"blocked_at"` // UNIX timestamp
}

func (e Entry) Serialize() []byte {
	s := serializer.Serializer{}

	s.AddString(e.Username)
	s.AddUvarint(e.BlockedAt)

	return s.Data
}

func (e *Entry) Deserialize(data []byte) error {
	d := serializer.Deserializer{
		Data: data,
	}

	e.Username = d.ReadString()
	e.BlockedAt = d.ReadUvarint()

	return d.Error
}

type Store struct {
	DB *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, bolt.DefaultOptions)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(IP_BLOCKLIST)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(LEECHERS)

		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Entries returns every blocked IP with its entry.
func (s *Store) Entries() (map[string]Entry, error) {
	list := make(map[string]Entry)

	err := s.DB.View(func(tx *bolt.Tx) error {
		return tx.Bucket(IP_BLOCKLIST).ForEach(func(k, v []byte) error {
			var e Entry
			err := e.Deserialize(v)
			if err != nil {
				log.Warn("corrupt block list entry for", string(k), err)
				return nil
			}
			list[string(k)] = e
			return nil
		})
	})

	return list, err
}

// IpBlockList returns the block list as ip -> username.
func (s *Store) IpBlockList() (map[string]string, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}

	list := make(map[string]string, len(entries))
	for ip, e := range entries {
		list[ip] = e.Username
	}
	return list, nil
}

// SaveIpBlockList makes the stored block list match list. IPs that were
// already blocked for the same user keep their original timestamp.
func (s *Store) SaveIpBlockList(list map[string]string) error {
	return s.DB.Update(func(tx *bolt.Tx) error {
		buck := tx.Bucket(IP_BLOCKLIST)

		var stale [][]byte
		err := buck.ForEach(func(k, v []byte) error {
			if _, ok := list[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			err = buck.Delete(k)
			if err != nil {
				return err
			}
		}

		for ip, user := range list {
			var old Entry
			if data := buck.Get([]byte(ip)); data != nil && old.Deserialize(data) == nil && old.Username == user {
				continue
			}

			err = buck.Put([]byte(ip), Entry{
				Username:  user,
				BlockedAt: util.Time(),
			}.Serialize())
			if err != nil {
				return fmt.Errorf("could not store %s: %w", ip, err)
			}
		}
		return nil
	})
}

// Unblock removes an IP, reporting whether it was blocked.
func (s *Store) Unblock(ip string) (bool, error) {
	found := false

	err := s.DB.Update(func(tx *bolt.Tx) error {
		buck := tx.Bucket(IP_BLOCKLIST)
		if buck.Get([]byte(ip)) == nil {
			return nil
		}
		found = true
		return buck.Delete([]byte(ip))
	})

	return found, err
}

func (s *Store) DetectedLeechers() ([]string, error) {
	var users []string

	err := s.DB.View(func(tx *bolt.Tx) error {
		return tx.Bucket(LEECHERS).ForEach(func(k, v []byte) error {
			users = append(users, string(k))
			return nil
		})
	})

	return users, err
}

// SaveDetectedLeechers replaces the stored leechers with usernames.
func (s *Store) SaveDetectedLeechers(usernames []string) error {
	return s.DB.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(LEECHERS)
		if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		buck, err := tx.CreateBucket(LEECHERS)
		if err != nil {
			return err
		}

		for _, u := range usernames {
			ser := serializer.Serializer{}
			ser.AddUvarint(util.Time())

			err = buck.Put([]byte(u), ser.Data)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
