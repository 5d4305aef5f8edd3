// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"os"
	"strings"

	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

// FatalFunc runs after a fatal entry is logged and the log finalized; it
// restarts the device, exits, etc.
type FatalFunc func()
type PreFunc func(f string, va ...interface{})

// FailAction describes what Fatalf does after logging.
type FailAction struct {
	// MsgPfx is prepended to the message.
	MsgPfx string
	// Pre runs before Finalize, while the log is still writable.
	Pre PreFunc
	// Terminator does not return. The log is closed when it runs.
	Terminator FatalFunc
}

var fatalAction = DefaultFatal

// SetFatalAction replaces the action taken by Fatalf.
func SetFatalAction(act FailAction) { fatalAction = act }

// DefaultFatal exits the process with status 1.
var DefaultFatal = FailAction{Terminator: DefaultFatalAction}

func DefaultFatalAction() {
	if strings.HasSuffix(os.Args[0], ".test") {
		panic("generic fatal called from test")
	}
	os.Exit(1)
}

// Fatalf logs and then runs the configured FailAction. Does not return
// unless a test has replaced the Terminator.
func Fatalf(f string, va ...interface{}) {
	logStackMtx.Lock()
	unconfigured := logStack.Next() == nil && logStack.Ident() == MemLogIdent
	logStackMtx.Unlock()
	if unconfigured {
		AddConsoleLog(flags.NA)
		Log("Fatalf: logging unconfigured")
	}
	act := fatalAction
	FlaggedLogf(flags.Fatal, act.MsgPfx+f, va...)
	if act.Pre != nil {
		act.Pre(act.MsgPfx+f, va...)
	}
	Finalize()
	act.Terminator()
}
