// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package log routes the daemon's events to any number of sinks: stderr, a
// file, and the bounded ring served by the admin portal at /logs.
//
// Until the first sink is attached, events are kept in memory and replayed
// into each sink as it is added, so nothing logged during early boot (store
// open, boot-mode resolution) is lost.
package log

import (
	"fmt"
	"os"

	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

var logPrefix string

// SetPrefix sets the name used for log files. Must be called before
// AddFileLog.
func SetPrefix(pfx string) { logPrefix = pfx }

func GetPrefix() string { return logPrefix }

// Msgf is for short, non-technical messages the operator may see on the
// portal (mode changes, update results). Keep them infrequent.
func Msgf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser, f, va...) }

func Msgln(va ...interface{}) { Msgf(fmt.Sprintln(va...)) }

func Msg(message string) { Msgf("%s", message) }

// Logf is for technical detail. Never shown to the operator as a message.
func Logf(f string, va ...interface{}) { FlaggedLogf(flags.NA, f, va...) }

func Logln(va ...interface{}) { Logf(fmt.Sprintln(va...)) }

func Log(message string) { Logf("%s", message) }

// Secretf logs an entry that must not reach the web-visible ring, such as a
// configuration dump that includes credentials.
func Secretf(f string, va ...interface{}) { FlaggedLogf(flags.NotWeb, f, va...) }

// DumpStderr writes everything held by the memLog (if any) to stderr.
func DumpStderr() {
	l := FindInStack(MemLogIdent)
	if l == nil {
		return
	}
	for _, e := range l.(*memLog).Entries() {
		fmt.Fprintln(os.Stderr, e.String())
	}
}
