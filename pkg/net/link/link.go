// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package link watches the network interface the device uses to reach the
// release feed and the operator.
package link

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/log"
)

const (
	DefaultWait       = 20 * time.Second
	DefaultCheckEvery = 20 * time.Minute
	pollInterval      = 500 * time.Millisecond
)

type Status struct {
	Iface string
	Up    bool
	IPv4  []string //CIDR notation
}

func (s Status) HasIPv4() bool { return len(s.IPv4) > 0 }

func (s Status) String() string {
	state := "down"
	if s.Up {
		state = "up"
	}
	if !s.HasIPv4() {
		return fmt.Sprintf("%s %s, no ipv4", s.Iface, state)
	}
	return fmt.Sprintf("%s %s, %s", s.Iface, state, strings.Join(s.IPv4, " "))
}

// QueryFunc reads the current state of an interface.
type QueryFunc func(iface string) (Status, error)

// Monitor tracks one interface. With an empty interface name it is
// disabled and reports the link as always usable.
type Monitor struct {
	iface string
	query QueryFunc
	every uint32

	mu      sync.Mutex
	last    uint32
	started bool
	status  Status
	err     error
}

func NewMonitor(iface string, checkEvery time.Duration) *Monitor {
	return &Monitor{iface: iface, query: Query, every: device.Millis(checkEvery)}
}

func (m *Monitor) Enabled() bool { return m.iface != "" }

func (m *Monitor) refresh() Status {
	st, err := m.query(m.iface)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil && m.err == nil {
		log.Logf("link %s: %s", m.iface, err)
	}
	m.status, m.err = st, err
	return st
}

// WaitForIPv4 polls until the interface has an ipv4 address or wait has
// expired. feed, if not nil, is called on every poll.
func (m *Monitor) WaitForIPv4(ctx context.Context, wait time.Duration, feed func()) bool {
	if !m.Enabled() {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		if feed != nil {
			feed()
		}
		if st := m.refresh(); st.HasIPv4() {
			log.Logf("link %s", st)
			return true
		}
		select {
		case <-ctx.Done():
			log.Logf("link %s: no ipv4 address after %s", m.iface, wait)
			return false
		case <-tick.C:
		}
	}
}

// Tick re-reads the interface state once per check interval and logs
// changes in reachability.
func (m *Monitor) Tick(now uint32) {
	if !m.Enabled() {
		return
	}
	m.mu.Lock()
	due := !m.started || device.Elapsed(now, m.last) >= m.every
	if due {
		m.started = true
		m.last = now
	}
	prev := m.status
	m.mu.Unlock()
	if !due {
		return
	}
	st := m.refresh()
	if prev.HasIPv4() != st.HasIPv4() {
		log.Logf("link changed: %s", st)
	}
}

// Status returns the last state read.
func (m *Monitor) Status() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.err
}
