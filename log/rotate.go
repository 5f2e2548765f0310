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

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// size of a log file before it gets rolled, in KiB
const ROTATE_THRESHOLD = 10 * 1024
const MAX_ROLLS = 3

var logRotator *rotator.Rotator

// InitRotator duplicates every log line into logFile, rolling it once it
// grows past ROTATE_THRESHOLD. Colour codes are kept as-is.
func InitRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0o700)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	r, err := rotator.New(logFile, ROTATE_THRESHOLD, false, MAX_ROLLS)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r
	Stdout = io.MultiWriter(os.Stdout, r)
	Stderr = io.MultiWriter(os.Stderr, r)

	return nil
}

// CloseRotator flushes the rotating log file. It should be called on shutdown.
func CloseRotator() {
	if logRotator == nil {
		return
	}
	logRotator.Close()
	logRotator = nil
	Stdout = os.Stdout
	Stderr = os.Stderr
}
