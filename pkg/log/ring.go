// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

// DefaultRingSize is the number of entries kept for the /logs page.
const DefaultRingSize = 200

// ringLog keeps the most recent entries so the admin portal can show them.
// Entries flagged NotWeb are skipped.
type ringLog struct {
	buf   []LogEntry
	start int
	n     int
	next  StackableLogger
}

var _ StackableLogger = (*ringLog)(nil)

// AddRingLog attaches a ring sink of the given capacity; size <= 0 selects
// DefaultRingSize.
func AddRingLog(size int) error {
	if size <= 0 {
		size = DefaultRingSize
	}
	return AddLogger(&ringLog{buf: make([]LogEntry, size)}, true)
}

func (rl *ringLog) AddEntry(e LogEntry) {
	if e.Flags&flags.NotWeb == 0 {
		idx := (rl.start + rl.n) % len(rl.buf)
		rl.buf[idx] = e
		if rl.n < len(rl.buf) {
			rl.n++
		} else {
			rl.start = (rl.start + 1) % len(rl.buf)
		}
	}
	if rl.next != nil {
		rl.next.AddEntry(e)
	}
}

func (rl *ringLog) ForwardTo(sl StackableLogger) {
	if rl.next != nil && sl != nil {
		panic("next already set")
	}
	rl.next = sl
}

const RingLogIdent = "ringLog"

func (rl *ringLog) Ident() string         { return RingLogIdent }
func (rl *ringLog) Next() StackableLogger { return rl.next }

func (rl *ringLog) Finalize() {
	if rl.next != nil {
		rl.next.Finalize()
	}
}

func (rl *ringLog) entries() []LogEntry {
	out := make([]LogEntry, 0, rl.n)
	for i := 0; i < rl.n; i++ {
		out = append(out, rl.buf[(rl.start+i)%len(rl.buf)])
	}
	return out
}

// Recent returns the ring's entries, oldest first. Nil without a ringLog.
func Recent() []LogEntry {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	rl := FindInStack(RingLogIdent)
	if rl == nil {
		return nil
	}
	return rl.(*ringLog).entries()
}
