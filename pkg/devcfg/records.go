// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package devcfg defines the records kept in the persistent store and the
// slot each one occupies.
//
// Layout version 1, all integers little endian, each record preceded by its
// 4 byte checksum:
//
//	0x00  Header        magic "FWBT", version u16
//	0x0a  QuickRestart  flag u8 (0 or 1)
//	0x0f  DeviceConfig  ssid[30] password[24] hostname[20]
//	                    deviceName[20] authToken[100] aliveSignal u8
//
// Strings are NUL padded; readers stop at the first NUL. Changing any record
// moves every slot after it, so such a change must bump LayoutVersion.
package devcfg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	SSIDLen       = 30
	PasswordLen   = 24
	HostnameLen   = 20
	DeviceNameLen = 20
	AuthTokenLen  = 100

	configSize = SSIDLen + PasswordLen + HostnameLen + DeviceNameLen + AuthTokenLen + 1
	headerSize = 6
)

var (
	ErrNoSSID   = errors.New("network name is empty")
	ErrBadFlag  = errors.New("quick restart flag is neither 0 nor 1")
	ErrBadMagic = errors.New("layout header magic mismatch")
	layoutMagic = [4]byte{'F', 'W', 'B', 'T'}
)

// FieldError reports a configuration value that does not fit its slot.
type FieldError struct {
	Field string
	Max   int
	Len   int
}

func (e *FieldError) Error() string {
	if e.Len < 0 {
		return fmt.Sprintf("%s contains a NUL byte", e.Field)
	}
	return fmt.Sprintf("%s is %d bytes, at most %d allowed", e.Field, e.Len, e.Max)
}

// DeviceConfig is the operator-supplied identity of the device.
type DeviceConfig struct {
	SSID        string
	Password    string
	Hostname    string
	DeviceName  string
	AuthToken   string
	AliveSignal bool
}

func (c *DeviceConfig) fields() []struct {
	name string
	val  *string
	max  int
} {
	return []struct {
		name string
		val  *string
		max  int
	}{
		{"ssid", &c.SSID, SSIDLen},
		{"password", &c.Password, PasswordLen},
		{"hostname", &c.Hostname, HostnameLen},
		{"device_name", &c.DeviceName, DeviceNameLen},
		{"auth_token", &c.AuthToken, AuthTokenLen},
	}
}

// Validate checks that every field fits its fixed-width slot and that a
// network name is present. A value exactly as long as its slot is allowed;
// it is stored without a terminating NUL.
func (c *DeviceConfig) Validate() error {
	for _, f := range c.fields() {
		if len(*f.val) > f.max {
			return &FieldError{Field: f.name, Max: f.max, Len: len(*f.val)}
		}
		if strings.IndexByte(*f.val, 0) >= 0 {
			return &FieldError{Field: f.name, Max: f.max, Len: -1}
		}
	}
	if c.SSID == "" {
		return ErrNoSSID
	}
	return nil
}

func (c *DeviceConfig) Size() int { return configSize }

func (c *DeviceConfig) MarshalRecord() []byte {
	b := make([]byte, 0, configSize)
	for _, f := range c.fields() {
		field := make([]byte, f.max)
		copy(field, *f.val)
		b = append(b, field...)
	}
	if c.AliveSignal {
		return append(b, 1)
	}
	return append(b, 0)
}

func (c *DeviceConfig) UnmarshalRecord(b []byte) error {
	if len(b) != configSize {
		return fmt.Errorf("device config is %d bytes, want %d", len(b), configSize)
	}
	var out DeviceConfig
	off := 0
	for _, f := range out.fields() {
		*f.val = cstring(b[off : off+f.max])
		off += f.max
	}
	out.AliveSignal = b[off] != 0
	if out.SSID == "" {
		return ErrNoSSID
	}
	*c = out
	return nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Mask replaces every character of s with '*', keeping its length visible.
func Mask(s string) string {
	return strings.Repeat("*", len(s))
}

// String renders the configuration with secrets masked.
func (c *DeviceConfig) String() string {
	return fmt.Sprintf("ssid %q, password %q, hostname %q, device name %q, auth token %q, alive signal %t",
		c.SSID, Mask(c.Password), c.Hostname, c.DeviceName, Mask(c.AuthToken), c.AliveSignal)
}

// QuickRestart marks a boot that has not yet outlived the grace window.
type QuickRestart struct {
	Restarted bool
}

func (q *QuickRestart) Size() int { return 1 }

func (q *QuickRestart) MarshalRecord() []byte {
	if q.Restarted {
		return []byte{1}
	}
	return []byte{0}
}

func (q *QuickRestart) UnmarshalRecord(b []byte) error {
	switch b[0] {
	case 0:
		q.Restarted = false
	case 1:
		q.Restarted = true
	default:
		return ErrBadFlag
	}
	return nil
}

// Header identifies the layout the store was written with.
type Header struct {
	Version uint16
}

func (h *Header) Size() int { return headerSize }

func (h *Header) MarshalRecord() []byte {
	b := make([]byte, headerSize)
	copy(b, layoutMagic[:])
	binary.LittleEndian.PutUint16(b[4:], h.Version)
	return b
}

func (h *Header) UnmarshalRecord(b []byte) error {
	if !bytes.Equal(b[:4], layoutMagic[:]) {
		return ErrBadMagic
	}
	h.Version = binary.LittleEndian.Uint16(b[4:])
	return nil
}
