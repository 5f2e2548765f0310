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

// Package bridge links the daemon with the client plugins over TCP. Frames
// are sealed with XChaCha20-Poly1305 under the hashed bridge password.
package bridge

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"leechban/config"

	"golang.org/x/crypto/chacha20poly1305"
)

// nonce (24) + tag (16)
const Overhead = 40

var ErrShortCiphertext = errors.New("ciphertext too short")

func Encrypt(key *[32]byte, msg []byte) []byte {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		panic(err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(msg)+aead.Overhead())
	rand.Read(nonce)

	// Encrypt the message and append the ciphertext to the nonce.
	return aead.Seal(nonce, nonce, msg, nil)
}

func Decrypt(key *[32]byte, msg []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		panic(err)
	}

	if len(msg) < aead.NonceSize() {
		return nil, ErrShortCiphertext
	}

	nonce, ciphertext := msg[:aead.NonceSize()], msg[aead.NonceSize():]

	return aead.Open(nil, nonce, ciphertext, nil)
}

// ReadFrame reads one sealed length header and the sealed payload it
// announces.
func ReadFrame(r io.Reader, key *[32]byte) ([]byte, error) {
	lenBuf := make([]byte, 2+Overhead)
	_, err := io.ReadFull(r, lenBuf)
	if err != nil {
		return nil, err
	}
	lenBuf, err = Decrypt(key, lenBuf)
	if err != nil {
		return nil, err
	}
	if len(lenBuf) != 2 {
		return nil, errors.New("invalid frame header")
	}
	size := int(binary.LittleEndian.Uint16(lenBuf))

	buf := make([]byte, size+Overhead)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, err
	}
	return Decrypt(key, buf)
}

// WriteFrame seals data and writes it in a single call, so concurrent
// writers only need to serialize on the Write itself.
func WriteFrame(w io.Writer, key *[32]byte, data []byte) error {
	if len(data) > config.MAX_PACKET_SIZE {
		return errors.New("frame too large")
	}

	var dataLenBin = make([]byte, 0, 2)
	dataLenBin = binary.LittleEndian.AppendUint16(dataLenBin, uint16(len(data)))

	frame := Encrypt(key, dataLenBin)
	frame = append(frame, Encrypt(key, data)...)

	_, err := w.Write(frame)
	return err
}
