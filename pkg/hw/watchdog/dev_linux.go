// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

const DefaultDevice = "/dev/watchdog"

// Device is a kernel watchdog. Once opened, the machine resets unless Feed
// is called within the timeout. Close disarms it if the driver allows.
type Device struct {
	f *os.File
}

var _ Watchdog = (*Device)(nil)

func OpenDevice(path string, timeout time.Duration) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		//not all drivers support it; the driver default applies
		log.Logf("watchdog %s: set timeout %ds: %s", path, secs, err)
	}
	return &Device{f: f}, nil
}

func (d *Device) Feed() {
	if err := unix.IoctlWatchdogKeepalive(int(d.f.Fd())); err != nil {
		log.Logf("watchdog keepalive: %s", err)
	}
}

// Close writes the magic character so that drivers honoring it disarm.
func (d *Device) Close() error {
	_, err := d.f.Write([]byte("V"))
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("closing watchdog: %w", err)
	}
	return nil
}

// Open returns the device watchdog at path, or a Soft watchdog running
// onExpire if path is empty or cannot be opened.
func Open(path string, timeout time.Duration, onExpire func()) Watchdog {
	if path != "" {
		d, err := OpenDevice(path, timeout)
		if err == nil {
			log.Logf("using watchdog device %s, timeout %s", path, timeout)
			return d
		}
		log.Logf("watchdog device %s unavailable, using soft watchdog: %s", path, err)
	}
	return NewSoft(timeout, onExpire)
}
