// Copyright 2024 by the Authors
// This file is part of the bvm2 library.
//
// The bvm2 library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The bvm2 library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the bvm2 library. If not, see <http://www.gnu.org/licenses/>.

// Package blog is a small structured, leveled logger in the shape of the
// hand-rolled `log` package every repo in the go-core/go-ethereum family
// carries (it predates structured logging libraries and none of the
// retrieved examples import a third-party one for this purpose).
package blog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Lvl is a logging severity level, ordered from most to least severe.
type Lvl int

const (
	LvlError Lvl = iota
	LvlWarn
	LvlInfo
	LvlDebug
)

func (l Lvl) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled, key-value records to an underlying writer.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	lvl Lvl
}

// New returns a Logger writing to w, filtered at lvl.
func New(w io.Writer, lvl Lvl) *Logger {
	return &Logger{out: w, lvl: lvl}
}

var root = New(os.Stderr, LvlInfo)

// Root returns the process-wide default logger.
func Root() *Logger { return root }

// SetLevel adjusts the verbosity of the root logger.
func SetLevel(lvl Lvl) { root.lvl = lvl }

func (l *Logger) write(lvl Lvl, msg string, ctx []interface{}) {
	if lvl > l.lvl {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s [%s] %s", time.Now().UTC().Format(time.RFC3339), lvl, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", ctx[i], ctx[i+1])
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }

func Error(msg string, ctx ...interface{}) { root.write(LvlError, msg, ctx) }
func Warn(msg string, ctx ...interface{})  { root.write(LvlWarn, msg, ctx) }
func Info(msg string, ctx ...interface{})  { root.write(LvlInfo, msg, ctx) }
func Debug(msg string, ctx ...interface{}) { root.write(LvlDebug, msg, ctx) }
