// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package devcfg

import (
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/store"
)

// LayoutVersion is written into the Header slot.
const LayoutVersion = 1

var (
	HeaderAddr       uint32 = 0
	QuickRestartAddr        = store.NextSlot(HeaderAddr, headerSize)
	ConfigAddr              = store.NextSlot(QuickRestartAddr, 1)
	// LayoutEnd is the first byte past the last slot.
	LayoutEnd = store.NextSlot(ConfigAddr, configSize)
)

// CheckLayout reports whether the store carries the current layout. If not,
// the store is formatted and false is returned; whatever it held before is
// treated as absent.
func CheckLayout(s *store.Store) bool {
	var h Header
	if s.Read(HeaderAddr, &h) && h.Version == LayoutVersion {
		return true
	}
	if h.Version != 0 {
		log.Logf("store layout version %d, want %d", h.Version, LayoutVersion)
	} else {
		log.Logf("store carries no layout header")
	}
	if err := Format(s); err != nil {
		log.Logf("formatting store: %s", err)
	}
	return false
}

// Format writes the current header and invalidates every other slot.
func Format(s *store.Store) error {
	log.Msgf("Formatting configuration store (layout %d)", LayoutVersion)
	if err := s.Write(HeaderAddr, &Header{Version: LayoutVersion}); err != nil {
		return err
	}
	if err := s.Invalidate(QuickRestartAddr); err != nil {
		return err
	}
	return s.Invalidate(ConfigAddr)
}

// LoadConfig returns the stored configuration, or nil if none is valid.
func LoadConfig(s *store.Store) *DeviceConfig {
	var c DeviceConfig
	if !s.Read(ConfigAddr, &c) {
		log.Logf("no valid device configuration in store")
		return nil
	}
	log.Secretf("loaded device configuration: %s", &c)
	return &c
}

// SaveConfig validates c and overwrites the configuration slot. The header
// is rewritten too, so a store created by fwbootctl is immediately usable.
func SaveConfig(s *store.Store, c *DeviceConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.Write(HeaderAddr, &Header{Version: LayoutVersion}); err != nil {
		return err
	}
	if err := s.Write(ConfigAddr, c); err != nil {
		return err
	}
	log.Logf("device configuration saved")
	return nil
}

// InvalidateConfig soft-deletes the configuration.
func InvalidateConfig(s *store.Store) error {
	log.Logf("invalidating device configuration")
	return s.Invalidate(ConfigAddr)
}

// LoadQuickRestart returns the stored flag. An unreadable flag counts as
// false.
func LoadQuickRestart(s *store.Store) bool {
	var q QuickRestart
	if !s.Read(QuickRestartAddr, &q) {
		log.Logf("WARNING: invalid quick restart info in store")
		return false
	}
	return q.Restarted
}

func SaveQuickRestart(s *store.Store, restarted bool) error {
	return s.Write(QuickRestartAddr, &QuickRestart{Restarted: restarted})
}
