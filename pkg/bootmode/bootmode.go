// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package bootmode decides at boot whether the device runs normally or falls
// back to config mode, and keeps re-evaluating that decision afterwards.
//
// A boot goes to config mode when the previous boot did not survive the
// grace window (a crash loop) or when no valid configuration is stored. Every
// boot marks itself as a quick restart right away and clears the mark once
// the grace window has passed. While in config mode the stored
// configuration is re-read periodically; once it is valid the device is
// restarted so that every collaborator comes up in normal mode.
package bootmode

import (
	"sync/atomic"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/devcfg"
	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/store"
)

const (
	DefaultGraceWindow      = 30 * time.Second
	DefaultConfigCheckEvery = 5 * time.Minute
)

// Resolver implements the boot-mode state machine over the store.
type Resolver struct {
	store            *store.Store
	graceWindow      uint32
	configCheckEvery uint32
	poked            int32
}

// New returns a Resolver. Zero durations select the defaults.
func New(s *store.Store, graceWindow, configCheckEvery time.Duration) *Resolver {
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	if configCheckEvery <= 0 {
		configCheckEvery = DefaultConfigCheckEvery
	}
	return &Resolver{
		store:            s,
		graceWindow:      device.Millis(graceWindow),
		configCheckEvery: device.Millis(configCheckEvery),
	}
}

// Resolve runs once per boot. It picks the mode, records it in dc and marks
// this boot as a quick restart in the store.
func (r *Resolver) Resolve(dc *device.Context) device.Mode {
	now := dc.Clock.Millis()
	layoutOK := devcfg.CheckLayout(r.store)
	quick := false
	if layoutOK {
		quick = devcfg.LoadQuickRestart(r.store)
	}
	cfg := devcfg.LoadConfig(r.store)

	mode := device.Normal
	switch {
	case quick:
		log.Msgf("Previous boot ended within the grace window, entering config mode")
		mode = device.ConfigMode
	case cfg == nil:
		log.Msgf("No valid configuration, entering config mode")
		mode = device.ConfigMode
	}
	dc.Boot(mode, cfg, quick, now)

	if err := devcfg.SaveQuickRestart(r.store, true); err != nil {
		log.Logf("marking quick restart: %s", err)
	}
	log.Logf("boot mode: %s", mode)
	return mode
}

// Poke makes the next Tick re-check the configuration immediately if the
// device is in config mode. Safe to call from any goroutine.
func (r *Resolver) Poke() {
	atomic.StoreInt32(&r.poked, 1)
}

// MarkStable clears the stored quick-restart flag so the next boot is not
// counted as part of a crash loop. Call it before any restart the firmware
// requests itself, never on watchdog expiry.
func (r *Resolver) MarkStable(dc *device.Context) error {
	if !dc.QuickRestartPending() {
		return nil
	}
	if err := devcfg.SaveQuickRestart(r.store, false); err != nil {
		log.Logf("clearing quick restart: %s", err)
		return err
	}
	dc.ClearQuickRestart()
	return nil
}

// Tick is called from the control loop with the current clock value.
func (r *Resolver) Tick(dc *device.Context) {
	now := dc.Clock.Millis()
	if dc.QuickRestartPending() && device.Elapsed(now, dc.BootMillis()) >= r.graceWindow {
		// retried on the next tick
		if r.MarkStable(dc) == nil {
			log.Logf("boot survived the grace window")
		}
	}

	if !dc.Mode().InConfigMode() {
		return
	}
	poked := atomic.SwapInt32(&r.poked, 0) == 1
	if !poked && device.Elapsed(now, dc.LastConfigCheck()) < r.configCheckEvery {
		return
	}
	dc.SetLastConfigCheck(now)
	dc.SetMode(device.ConfigModeCooldownCheck)
	if cfg := devcfg.LoadConfig(r.store); cfg != nil {
		log.Msgf("Valid configuration found, restarting")
		r.MarkStable(dc)
		dc.RequestRestart("valid configuration found while in config mode")
		return
	}
	dc.SetMode(device.ConfigMode)
}
