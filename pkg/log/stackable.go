// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

// StackableLogger is one sink in a chain. Each sink handles an entry and
// then hands it to the next one.
//
// Code that only wants to log uses Logf, Msgf, Fatalf and friends and never
// touches this interface.
type StackableLogger interface {
	// AddEntry records e and passes it to Next(), if any.
	AddEntry(e LogEntry)

	// ForwardTo chains sl after this logger. Chaining twice is a bug; nil
	// unchains.
	ForwardTo(sl StackableLogger)

	// Ident names the sink type; two sinks of one type may not share a stack.
	Ident() string

	Next() StackableLogger

	// Finalize flushes and releases resources, then finalizes Next().
	Finalize()
}

// logStack is the top of the chain. Guarded by logStackMtx.
var logStack StackableLogger = &memLog{}

var logStackMtx sync.Mutex

type stackErr struct {
	Id string
}

func (se *stackErr) Error() string {
	return fmt.Sprintf("duplicate logger %s in stack", se.Id)
}

// Finalize flushes all sinks. Called by housekeeping right before restart.
func Finalize() {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack.Finalize()
}

// DefaultLogStack finalizes the current stack and starts over with a memLog.
func DefaultLogStack() { NewLogStack(&memLog{}) }

// NewLogStack finalizes the current stack and makes newLog the only sink.
func NewLogStack(newLog StackableLogger) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if logStack != nil {
		logStack.Finalize()
	}
	logStack = newLog
	ClearAttrs()
}

// AddLogger puts sl on top of the stack. If addPrevious is true, entries
// held by a memLog are replayed into sl first. Fails only when a sink of the
// same type is already present.
//
// Callers normally use AddConsoleLog, AddFileLog or AddRingLog instead.
func AddLogger(sl StackableLogger, addPrevious bool) error {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if err := checkDuplicate(sl, logStack); err != nil {
		return err
	}
	if addPrevious {
		replayInto(sl)
	}
	sl.ForwardTo(logStack)
	logStack = sl
	return nil
}

func checkDuplicate(newLogger, sl StackableLogger) error {
	for l := sl; l != nil; l = l.Next() {
		if newLogger.Ident() == l.Ident() {
			return &stackErr{Id: l.Ident()}
		}
	}
	return nil
}

// RemoveLogger unchains and finalizes the sink with the given ident.
func RemoveLogger(id string) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	var prev StackableLogger
	for l := logStack; l != nil; l = l.Next() {
		if l.Ident() != id {
			prev = l
			continue
		}
		next := l.Next()
		l.ForwardTo(nil)
		l.Finalize()
		if prev != nil {
			prev.ForwardTo(nil)
			prev.ForwardTo(next)
		} else if next != nil {
			logStack = next
		} else {
			logStack = &memLog{}
		}
		return
	}
}

// LogEntry is what travels down the stack.
type LogEntry struct {
	Time  time.Time `json:"t"`
	Msg   string
	Args  []interface{} `json:",omitempty"`
	Flags flags.Flag    `json:",omitempty"`
}

// FlaggedLogf is the backend of Logf, Msgf and Fatalf.
func FlaggedLogf(opts flags.Flag, f string, va ...interface{}) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack.AddEntry(LogEntry{
		Time:  time.Now(),
		Flags: opts,
		Msg:   f,
		Args:  va,
	})
}

// Text returns the formatted message without timestamp or marker.
func (le *LogEntry) Text() string {
	if len(le.Args) == 0 {
		return le.Msg
	}
	return fmt.Sprintf(le.Msg, le.Args...)
}

func (le *LogEntry) String() string {
	var div string
	switch {
	case le.Flags&flags.Fatal != 0:
		div = "!! "
	case le.Flags&flags.EndUser != 0:
		div = "-- "
	default:
		div = "*- "
	}
	return div + le.Time.Format(TimestampLayout) + " " + div + le.Text()
}

// replayInto copies memLog entries into newlog. Caller holds logStackMtx.
func replayInto(newlog StackableLogger) {
	if _, isMem := newlog.(*memLog); isMem {
		return
	}
	ml := FindInStack(MemLogIdent)
	if ml == nil {
		return
	}
	for _, e := range ml.(*memLog).Entries() {
		newlog.AddEntry(e)
	}
}

// InStack reports whether a sink with the given ident is attached.
func InStack(id string) bool {
	return FindInStack(id) != nil
}

// FindInStack returns the sink with the given ident, or nil.
func FindInStack(id string) StackableLogger {
	for l := logStack; l != nil; l = l.Next() {
		if l.Ident() == id {
			return l
		}
	}
	return nil
}
