// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package kmsg copies operator-facing log entries into the kernel ring
// buffer. When fwbootd runs as pid 1 there may be nobody reading stderr,
// but dmesg and a serial console still show these.
package kmsg

import (
	"fmt"
	"io"
	"os"

	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

type Priority uint

// Convert facility/severity into priority
func Prio(f Facility, s Severity) Priority {
	return Priority(f*8) + Priority(s)
}

// Facility values a la RFC5424. Incomplete list.
type Facility uint

const (
	FacUser   Facility = 1
	FacDaemon Facility = 3
	FacLocal0 Facility = 16
)

// Severity values a la RFC5424. Incomplete list.
type Severity uint

const (
	SevEmerg Severity = iota
	SevAlert
	SevCrit
	SevError
	SevWarn
	SevNotice
	SevInfo
)

var Device = "/dev/kmsg"

const KmsgLogIdent = "kmsgLog"

// kmsgLog is a log sink writing EndUser and Fatal entries, one record per
// write as the kernel requires.
type kmsgLog struct {
	w    io.WriteCloser
	fac  Facility
	pfx  string
	next log.StackableLogger
}

var _ log.StackableLogger = (*kmsgLog)(nil)

// AddKmsgLog opens Device and attaches it to the log stack. Entries are
// tagged with pfx.
func AddKmsgLog(fac Facility, pfx string) error {
	if fac == 0 {
		return fmt.Errorf("kmsg: cannot use facility 0")
	}
	f, err := os.OpenFile(Device, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	return addWriter(f, fac, pfx)
}

func addWriter(w io.WriteCloser, fac Facility, pfx string) error {
	if err := log.AddLogger(&kmsgLog{w: w, fac: fac, pfx: pfx}, false); err != nil {
		w.Close()
		return err
	}
	return nil
}

// Record formats one kmsg record.
func Record(p Priority, pfx, msg string) string {
	rec := fmt.Sprintf("<%d>", p)
	if pfx != "" {
		rec += pfx + ": "
	}
	return rec + msg + "\n"
}

func (k *kmsgLog) AddEntry(e log.LogEntry) {
	sev := SevNotice
	switch {
	case e.Flags&flags.Fatal != 0:
		sev = SevCrit
	case e.Flags&flags.EndUser == 0:
		sev = SevInfo
	}
	//plain entries would flood the kernel ring at the loop's tick rate
	if sev != SevInfo && e.Flags&flags.NotFile == 0 {
		//a failed write has nowhere to be reported
		_, _ = io.WriteString(k.w, Record(Prio(k.fac, sev), k.pfx, e.Text()))
	}
	if k.next != nil {
		k.next.AddEntry(e)
	}
}

func (k *kmsgLog) ForwardTo(sl log.StackableLogger) {
	if k.next != nil && sl != nil {
		panic("next already set")
	}
	k.next = sl
}

func (*kmsgLog) Ident() string               { return KmsgLogIdent }
func (k *kmsgLog) Next() log.StackableLogger { return k.next }

func (k *kmsgLog) Finalize() {
	k.w.Close()
	if k.next != nil {
		k.next.Finalize()
	}
}
