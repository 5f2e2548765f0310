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
	"runtime"
	"strconv"
	"strings"
)

// 0 = info, 1 = debug, 2 = dev, 3 = mutex tracing
var LogLevel uint8 = 0

var Stdout io.Writer = os.Stdout
var Stderr io.Writer = os.Stderr

var Reset = "\033[0m"
var Red = "\033[31m"
var Green = "\033[32m"
var Yellow = "\033[33m"
var Blue = "\033[34m"
var Purple = "\033[35m"
var Cyan = "\033[36m"
var Gray = "\033[37m"
var White = "\033[97m"
var Bold = "\033[1m"

func callerPrefix(skip int) string {
	_, file, line, _ := runtime.Caller(skip)
	fileSpl := strings.Split(file, "/")
	debugInfos := strings.Split(fileSpl[len(fileSpl)-1], ".")[0] + ":" + strconv.FormatInt(int64(line), 10)
	for len(debugInfos) < 18 {
		debugInfos = debugInfos + " "
	}

	return debugInfos
}

func write(w io.Writer, color, tag, msg string) {
	w.Write([]byte(callerPrefix(3) + color + tag + msg + Reset))
}

func Info(a ...any) {
	write(Stdout, "", "[INFO]  ", fmt.Sprintln(a...))
}
func Infof(format string, a ...any) {
	write(Stdout, "", "[INFO]  ", fmt.Sprintf(format+"\n", a...))
}

// Ban logs enforcement actions, they stay visible at every log level.
func Ban(a ...any) {
	write(Stdout, Blue, "[BAN]   ", fmt.Sprintln(a...))
}
func Banf(format string, a ...any) {
	write(Stdout, Blue, "[BAN]   ", fmt.Sprintf(format+"\n", a...))
}

func Warn(a ...any) {
	write(Stdout, Yellow, "[WARN]  ", fmt.Sprintln(a...))
}
func Warnf(format string, a ...any) {
	write(Stdout, Yellow, "[WARN]  ", fmt.Sprintf(format+"\n", a...))
}

func Err(a ...any) {
	write(Stderr, Red, "[ERR]   ", fmt.Sprintln(a...))
}
func Errf(format string, a ...any) {
	write(Stderr, Red, "[ERR]   ", fmt.Sprintf(format+"\n", a...))
}

func Debug(a ...any) {
	if LogLevel < 1 {
		return
	}
	write(Stdout, Cyan, "[DEBUG] ", fmt.Sprintln(a...))
}
func Debugf(format string, a ...any) {
	if LogLevel < 1 {
		return
	}
	write(Stdout, Cyan, "[DEBUG] ", fmt.Sprintf(format+"\n", a...))
}

func Dev(a ...any) {
	if LogLevel < 2 {
		return
	}
	write(Stdout, Cyan, "[DEV]   ", fmt.Sprintln(a...))
}
func Devf(format string, a ...any) {
	if LogLevel < 2 {
		return
	}
	write(Stdout, Cyan, "[DEV]   ", fmt.Sprintf(format+"\n", a...))
}

// Mutex is called through the sync wrappers, the prefix points at whoever took the lock.
func Mutex(a ...any) {
	if LogLevel < 3 {
		return
	}
	Stdout.Write([]byte(callerPrefix(4) + Purple + "[MUTEX] " + fmt.Sprintln(a...) + Reset))
}

func Net(a ...any) {
	if LogLevel < 2 {
		return
	}
	write(Stdout, Green, "[NET]   ", fmt.Sprintln(a...))
}
func Netf(format string, a ...any) {
	if LogLevel < 2 {
		return
	}
	write(Stdout, Green, "[NET]   ", fmt.Sprintf(format+"\n", a...))
}

func Fatal(err any) {
	write(Stderr, Red, "[FATAL] ", fmt.Sprintln(err))
	panic(err)
}
