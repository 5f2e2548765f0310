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

package config

const VERSION = "1.0"

// policy defaults
const DEFAULT_MIN_FILES = 100
const DEFAULT_MIN_FOLDERS = 5
const DEFAULT_BAN_MIN_BYTES = 100 // MB, reserved
const DEFAULT_RECHECK_INTERVAL = 10
const DEFAULT_RECENT_BAN_MINUTES = 60

// hard floors applied when the plugin is loaded
const MIN_FILES_FLOOR = 0
const MIN_FOLDERS_FLOOR = 1
const RECHECK_INTERVAL_FLOOR = 1

const DEFAULT_MESSAGE = "Please share more files if you wish to download from me again. You are banned until then. Thanks!"

const BRIDGE_HOST = "127.0.0.1"
const API_HOST = "0.0.0.0"

// seconds
const TIMEOUT = 5

// bridge frames carry a 2 byte length, so payloads can't exceed this
const MAX_PACKET_SIZE = 0xffff

// at most this many buddies are accepted in one BuddyList packet
const MAX_BUDDIES = 10_000

const MAX_CONNECTIONS_PER_IP = 4

const DB_FILE = "leechban.db"
