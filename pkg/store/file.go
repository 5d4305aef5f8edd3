// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// FileDevice stores the records in a regular file or an EEPROM/MTD node.
// Each access takes an flock on the file, so fwbootctl and the daemon can
// share it.
type FileDevice struct {
	f    *os.File
	size int64
}

var _ Device = (*FileDevice)(nil)

// OpenFile opens path as a device of the given size, creating it if needed.
// New or short files are padded with Erased bytes.
func OpenFile(path string, size int64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	d := &FileDevice{f: f, size: size}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Mode().IsRegular() && fi.Size() < size {
		log.Logf("store: extending %s from %d to %d bytes", path, fi.Size(), size)
		if err = d.pad(fi.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("extending %s: %w", path, err)
		}
	}
	return d, nil
}

func (d *FileDevice) pad(from int64) error {
	fill := make([]byte, d.size-from)
	for i := range fill {
		fill[i] = Erased
	}
	if _, err := d.f.WriteAt(fill, from); err != nil {
		return err
	}
	return d.Sync()
}

func (d *FileDevice) lock(how int) error {
	return unix.Flock(int(d.f.Fd()), how)
}

func (d *FileDevice) unlock() {
	if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); err != nil {
		log.Logf("store: unlock %s: %s", d.f.Name(), err)
	}
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	if err := d.lock(unix.LOCK_SH); err != nil {
		return 0, err
	}
	defer d.unlock()
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	if err := d.lock(unix.LOCK_EX); err != nil {
		return 0, err
	}
	defer d.unlock()
	return d.f.WriteAt(p, off)
}

// Sync flushes written records to the medium.
func (d *FileDevice) Sync() error {
	return unix.Fsync(int(d.f.Fd()))
}

func (d *FileDevice) Size() int64  { return d.size }
func (d *FileDevice) Name() string { return d.f.Name() }

func (d *FileDevice) Close() error {
	return d.f.Close()
}
