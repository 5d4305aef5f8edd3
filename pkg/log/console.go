// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

type consoleLog struct {
	flags flags.Flag
	w     io.Writer
	next  StackableLogger
}

var _ StackableLogger = (*consoleLog)(nil)

// AddConsoleLog attaches a stderr sink. With flags.NA every entry is printed;
// with flags.EndUser only operator messages are.
func AddConsoleLog(f flags.Flag) {
	_ = AddLogger(&consoleLog{flags: f, w: os.Stderr}, true)
}

func (l *consoleLog) AddEntry(e LogEntry) {
	if l.flags == flags.NA || e.Flags&(l.flags|flags.Fatal) != 0 {
		fmt.Fprintln(l.w, e.String())
	}
	if l.next != nil {
		l.next.AddEntry(e)
	}
}

func (l *consoleLog) ForwardTo(sl StackableLogger) {
	if l.next != nil && sl != nil {
		panic("next already set")
	}
	l.next = sl
}

const ConsoleLogIdent = "consoleLog"

func (*consoleLog) Ident() string           { return ConsoleLogIdent }
func (l *consoleLog) Next() StackableLogger { return l.next }

func (l *consoleLog) Finalize() {
	if l.next != nil {
		l.next.Finalize()
	}
}
