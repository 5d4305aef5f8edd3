// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build !release
// +build !release

// Package testlog replaces the log stack for the duration of a test. Output
// goes through t.Logf, or into a buffer that the test can inspect. Fatalf is
// counted instead of restarting anything.
package testlog

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

// TstLog is a log.StackableLogger. Construct with NewTestLog.
type TstLog struct {
	t             *testing.T
	Buf           *bytes.Buffer //if non-nil, entries are written here instead of t.Logf
	MsgCount      int           //entries logged with log.Msgf
	LogCount      int           //entries logged with log.Logf
	FatalCount    int           //calls to log.Fatalf
	FatalIsNotErr bool          //if false, each Fatalf is a test error
	freeze        bool
	stderr        bool
	mu            sync.Mutex
}

// NewTestLog installs a new TstLog as the only sink. If bufferLog is true,
// entries go to Buf rather than t.Logf. Do not share one between tests.
func NewTestLog(t *testing.T, bufferLog, stderr bool) *TstLog {
	t.Helper()
	tlog := &TstLog{t: t, stderr: stderr}
	if bufferLog {
		tlog.Buf = new(bytes.Buffer)
	}
	log.NewLogStack(tlog)
	log.SetFatalAction(log.FailAction{Terminator: func() {}})
	return tlog
}

var _ log.StackableLogger = (*TstLog)(nil)

func (tlog *TstLog) AddEntry(e log.LogEntry) {
	tlog.mu.Lock()
	defer tlog.mu.Unlock()
	if tlog.freeze {
		return
	}
	var pfx string
	switch {
	case e.Flags&flags.Fatal != 0:
		tlog.FatalCount++
		pfx = ">>FATAL()<< "
	case e.Flags&flags.EndUser != 0:
		tlog.MsgCount++
		pfx = "MSG:"
	default:
		tlog.LogCount++
		pfx = "LOG:"
	}
	line := pfx + e.Text()
	if tlog.stderr {
		fmt.Fprintf(os.Stderr, "@%s: %s\n", e.Time.Format(stampMilli), line)
	}
	if e.Flags&flags.Fatal != 0 && !tlog.FatalIsNotErr {
		tlog.t.Errorf("@%s: %s", e.Time.Format(stampMilli), line)
		return
	}
	if tlog.Buf != nil {
		tlog.Buf.WriteString(line + "\n")
	} else {
		tlog.t.Logf("@%s: %s", e.Time.Format(stampMilli), line)
	}
}

const TstLogIdent = "tstLog"

func (*TstLog) Ident() string                   { return TstLogIdent }
func (*TstLog) Next() log.StackableLogger       { return nil }
func (*TstLog) Finalize()                       {}
func (*TstLog) ForwardTo(_ log.StackableLogger) {}

const stampMilli = "15:04:05.000"

// Logf injects a line, e.g. as a separator between steps of a test.
func (tlog *TstLog) Logf(f string, va ...interface{}) {
	tlog.AddEntry(log.LogEntry{Time: time.Now(), Msg: f, Args: va})
}

// Freeze stops recording and restores the default log stack. Call at the
// end of the test, before reading Buf or the counters.
func (tlog *TstLog) Freeze() {
	tlog.mu.Lock()
	if tlog.freeze {
		tlog.mu.Unlock()
		return
	}
	tlog.freeze = true
	tlog.mu.Unlock()
	log.DefaultLogStack()
	log.SetFatalAction(log.DefaultFatal)
}

// Contains reports whether any buffered line contains s. Requires Buf.
func (tlog *TstLog) Contains(s string) bool {
	tlog.mu.Lock()
	defer tlog.mu.Unlock()
	if tlog.Buf == nil {
		return false
	}
	return strings.Contains(tlog.Buf.String(), s)
}

func (tlog *TstLog) TstErrf(f string, va ...interface{}) {
	tlog.t.Helper()
	tlog.t.Errorf(f, va...)
}

func (tlog *TstLog) TstLogf(f string, va ...interface{}) {
	tlog.t.Helper()
	tlog.t.Logf(f, va...)
}
