// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package store

import (
	"io"
	"sync"
)

// Device is the raw non-volatile medium. Its size is fixed once opened.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Size() int64
	Close() error
}

// Erased is the value of a byte that has never been written, as on erased
// EEPROM or flash. A fresh device therefore holds no valid record.
const Erased = 0xff

// DefaultSize matches the EEPROM window reserved by earlier firmware.
const DefaultSize = 512

// MemDevice is a RAM-backed Device.
type MemDevice struct {
	mu   sync.Mutex
	data []byte
}

var _ Device = (*MemDevice)(nil)

// NewMemDevice returns an erased device of the given size.
func NewMemDevice(size int) *MemDevice {
	d := &MemDevice{data: make([]byte, size)}
	for i := range d.data {
		d.data[i] = Erased
	}
	return d
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off > int64(len(d.data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(d.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (d *MemDevice) Sync() error  { return nil }
func (d *MemDevice) Size() int64  { return int64(len(d.data)) }
func (d *MemDevice) Close() error { return nil }

// Bytes returns the device content. Tests use it to corrupt records.
func (d *MemDevice) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}
