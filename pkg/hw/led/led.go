// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package led drives the alive-signal LED through the kernel's LED class.
package led

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// ClassDir is where the kernel exposes LEDs. Variable for tests.
var ClassDir = "/sys/class/leds"

type LED interface {
	Set(on bool) error
}

// Sysfs is an LED under ClassDir.
type Sysfs struct {
	brightness string
}

func Open(name string) (*Sysfs, error) {
	p := filepath.Join(ClassDir, name, "brightness")
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("led %s: %w", name, err)
	}
	return &Sysfs{brightness: p}, nil
}

func (s *Sysfs) Set(on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return os.WriteFile(s.brightness, []byte(v), 0644)
}

// Nop is used when no LED is configured.
type Nop struct{}

func (Nop) Set(bool) error { return nil }

// Heartbeat toggles an LED once per period while enabled.
type Heartbeat struct {
	led     LED
	period  uint32
	last    uint32
	on      bool
	started bool
	failed  bool
}

func NewHeartbeat(l LED, period time.Duration) *Heartbeat {
	if l == nil {
		l = Nop{}
	}
	return &Heartbeat{led: l, period: device.Millis(period)}
}

// Tick is called from the control loop. When disabled the LED is turned
// off once and left alone.
func (h *Heartbeat) Tick(now uint32, enabled bool) {
	if !enabled {
		if h.on {
			h.set(false)
		}
		h.started = false
		return
	}
	if h.started && device.Elapsed(now, h.last) < h.period {
		return
	}
	h.started = true
	h.last = now
	h.set(!h.on)
}

func (h *Heartbeat) set(on bool) {
	err := h.led.Set(on)
	if err != nil {
		//log only the first failure, Tick runs ten times a second
		if !h.failed {
			log.Logf("alive signal: %s", err)
		}
		h.failed = true
		return
	}
	h.failed = false
	h.on = on
}

// On reports the last state successfully written.
func (h *Heartbeat) On() bool { return h.on }
