// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package device

import (
	"sync"
	"time"
)

// Clock is a free-running millisecond counter. It wraps after about 49.7
// days, so intervals are always computed as now - then in uint32.
type Clock interface {
	Millis() uint32
}

type sysClock struct {
	start time.Time
}

// NewSystemClock counts from the moment it is created.
func NewSystemClock() Clock {
	return &sysClock{start: time.Now()}
}

func (c *sysClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

// Elapsed returns now - then, correct across one wraparound.
func Elapsed(now, then uint32) uint32 { return now - then }

// Millis converts d to a clock interval, saturating at the largest value.
func Millis(d time.Duration) uint32 {
	ms := d / time.Millisecond
	if ms > 1<<32-1 {
		return 1<<32 - 1
	}
	if ms < 0 {
		return 0
	}
	return uint32(ms)
}

// FakeClock is a settable Clock for tests and simulations.
type FakeClock struct {
	mu  sync.Mutex
	now uint32
}

func (f *FakeClock) Millis() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) Set(ms uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = ms
}

// Advance moves the clock forward, wrapping like the real counter.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += Millis(d)
}
