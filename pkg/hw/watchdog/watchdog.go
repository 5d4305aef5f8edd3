// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package watchdog keeps the device from hanging: either a kernel watchdog
// device, which resets the machine when not fed in time, or a soft
// watchdog that runs a function on expiry.
package watchdog

import (
	"sync"
	"time"
)

// DefaultTimeout is how long the device may go without a Feed.
const DefaultTimeout = 30 * time.Second

// Watchdog must be fed at least once per timeout. Feed is safe to call
// from several goroutines.
type Watchdog interface {
	Feed()
	Close() error
}

// Soft runs onExpire when not fed in time. It is used where no watchdog
// device is available, and in tests.
type Soft struct {
	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	feeds    int
	closed   bool
	onExpire func()
}

var _ Watchdog = (*Soft)(nil)

func NewSoft(timeout time.Duration, onExpire func()) *Soft {
	s := &Soft{timeout: timeout, onExpire: onExpire}
	s.timer = time.AfterFunc(timeout, s.expire)
	return s
}

func (s *Soft) expire() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed && s.onExpire != nil {
		s.onExpire()
	}
}

func (s *Soft) Feed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.feeds++
	s.timer.Reset(s.timeout)
}

// Feeds returns the number of times Feed was called.
func (s *Soft) Feeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds
}

func (s *Soft) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.timer.Stop()
	return nil
}
