// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package device holds the state shared by the control loop, the boot-mode
// resolver, the updater and the admin handlers: the active configuration,
// the boot mode and the loop timestamps.
package device

import (
	"sync"

	"github.com/rmfalco89/esp-project-template/pkg/devcfg"
)

// Mode is the operating mode chosen at boot.
type Mode int

const (
	// Normal runs the application and the periodic update check.
	Normal Mode = iota
	// ConfigMode exposes only the admin portal, waiting for configuration.
	ConfigMode
	// ConfigModeCooldownCheck is ConfigMode while the stored configuration
	// is being re-read.
	ConfigModeCooldownCheck
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case ConfigMode:
		return "config"
	case ConfigModeCooldownCheck:
		return "config (checking)"
	}
	return "unknown"
}

// InConfigMode is true for ConfigMode and its sub-state.
func (m Mode) InConfigMode() bool { return m == ConfigMode || m == ConfigModeCooldownCheck }

// Context is owned by the control loop and passed by pointer to each
// component. All fields are guarded by mu; admin handlers run on server
// goroutines.
type Context struct {
	mu sync.Mutex

	Clock   Clock
	Version string

	config          *devcfg.DeviceConfig
	mode            Mode
	bootMillis      uint32
	bootQuick       bool
	quickPending    bool
	lastConfigCheck uint32
	lastUpdateCheck uint32
	restartReason   string
}

func NewContext(clock Clock, version string) *Context {
	return &Context{Clock: clock, Version: version}
}

// Boot records the outcome of boot-mode resolution.
func (c *Context) Boot(mode Mode, cfg *devcfg.DeviceConfig, quickRestart bool, now uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.config = cfg
	c.bootQuick = quickRestart
	c.quickPending = true
	c.bootMillis = now
	c.lastConfigCheck = now
	c.lastUpdateCheck = now
}

func (c *Context) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Context) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Config returns a copy of the active configuration, or nil.
func (c *Context) Config() *devcfg.DeviceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config == nil {
		return nil
	}
	cp := *c.config
	return &cp
}

// SetConfig replaces the active configuration wholesale.
func (c *Context) SetConfig(cfg *devcfg.DeviceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == nil {
		c.config = nil
		return
	}
	cp := *cfg
	c.config = &cp
}

// AuthToken returns the feed token of the active configuration, or "".
func (c *Context) AuthToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config == nil {
		return ""
	}
	return c.config.AuthToken
}

func (c *Context) BootMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootMillis
}

// QuickRestartPending is true until the grace window has been survived and
// the stored flag cleared.
func (c *Context) QuickRestartPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quickPending
}

func (c *Context) ClearQuickRestart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quickPending = false
}

func (c *Context) LastConfigCheck() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastConfigCheck
}

func (c *Context) SetLastConfigCheck(now uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastConfigCheck = now
}

func (c *Context) LastUpdateCheck() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdateCheck
}

func (c *Context) SetLastUpdateCheck(now uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUpdateCheck = now
}

// RequestRestart asks the control loop to restart the device. The first
// reason wins.
func (c *Context) RequestRestart(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartReason == "" {
		c.restartReason = reason
	}
}

// RestartRequested returns the pending restart reason, if any.
func (c *Context) RestartRequested() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartReason, c.restartReason != ""
}

// Status is a point-in-time copy for the status page.
type Status struct {
	Version          string
	Mode             Mode
	Configured       bool
	DeviceName       string
	Hostname         string
	UptimeMillis     uint32
	BootQuickRestart bool
	QuickPending     bool
	SinceUpdateCheck uint32
	RestartPending   string
}

func (c *Context) Status() Status {
	now := c.Clock.Millis()
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Version:          c.Version,
		Mode:             c.mode,
		Configured:       c.config != nil,
		UptimeMillis:     now - c.bootMillis,
		BootQuickRestart: c.bootQuick,
		QuickPending:     c.quickPending,
		SinceUpdateCheck: now - c.lastUpdateCheck,
		RestartPending:   c.restartReason,
	}
	if c.config != nil {
		st.DeviceName = c.config.DeviceName
		st.Hostname = c.config.Hostname
	}
	return st
}
