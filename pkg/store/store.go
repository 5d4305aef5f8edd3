// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package store keeps fixed-size records at fixed addresses of a small
// byte-addressable device (an EEPROM image, a file, RAM in tests). Each record
// is preceded by a checksum word; a record whose checksum does not match is
// absent. Absence is the only failure a reader ever sees.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rmfalco89/esp-project-template/pkg/checksum"
	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Record is a value with an explicit fixed-width byte layout.
type Record interface {
	// Size is the encoded length. Constant for a given type.
	Size() int
	MarshalRecord() []byte
	// UnmarshalRecord decodes exactly Size() bytes. An error makes the
	// record read as absent.
	UnmarshalRecord(b []byte) error
}

var ErrOutOfRange = errors.New("record does not fit the device")

// ShortWriteError is returned when the device accepts fewer bytes than asked.
type ShortWriteError struct {
	Addr      uint32
	Want, Got int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("short write at 0x%x: %d of %d bytes", e.Addr, e.Got, e.Want)
}

// Store serializes all access to one Device.
type Store struct {
	dev Device
	mu  sync.Mutex
}

func New(dev Device) *Store {
	return &Store{dev: dev}
}

// NextSlot returns the address following a record of prevSize bytes stored
// at prevAddr, leaving room for its checksum.
func NextSlot(prevAddr uint32, prevSize int) uint32 {
	return prevAddr + uint32(prevSize) + checksum.Size
}

func (s *Store) fits(addr uint32, size int) bool {
	end := int64(addr) + checksum.Size + int64(size)
	return end <= s.dev.Size()
}

// Read loads the record at addr into r. It returns false if the region is
// out of range, unreadable, fails its checksum, or fails to decode.
func (s *Store) Read(addr uint32, r Record) bool {
	size := r.Size()
	if !s.fits(addr, size) {
		log.Logf("store: read %T at 0x%x: out of range", r, addr)
		return false
	}
	buf := make([]byte, checksum.Size+size)
	s.mu.Lock()
	n, err := s.dev.ReadAt(buf, int64(addr))
	s.mu.Unlock()
	if err != nil || n != len(buf) {
		log.Logf("store: read %T at 0x%x: %d bytes, %v", r, addr, n, err)
		return false
	}
	want := binary.LittleEndian.Uint32(buf)
	payload := buf[checksum.Size:]
	if !checksum.Verify(payload, want) {
		log.Logf("store: %T at 0x%x: checksum mismatch", r, addr)
		return false
	}
	if err = r.UnmarshalRecord(payload); err != nil {
		log.Logf("store: %T at 0x%x: %s", r, addr, err)
		return false
	}
	return true
}

// Write stores r at addr, checksum first, in a single device write followed
// by a sync. A torn write leaves a region that reads as absent.
func (s *Store) Write(addr uint32, r Record) error {
	size := r.Size()
	if !s.fits(addr, size) {
		return ErrOutOfRange
	}
	payload := r.MarshalRecord()
	if len(payload) != size {
		return fmt.Errorf("%T encoded to %d bytes, want %d", r, len(payload), size)
	}
	buf := make([]byte, checksum.Size, checksum.Size+size)
	binary.LittleEndian.PutUint32(buf, checksum.Sum(payload))
	buf = append(buf, payload...)
	return s.put(addr, buf)
}

// Invalidate zeroes the checksum word at addr, leaving the payload in place.
// A record whose payload is all zero bytes sums to zero, so it still reads
// back as present after Invalidate; callers must treat such a record the
// same as an absent one.
func (s *Store) Invalidate(addr uint32) error {
	if !s.fits(addr, 0) {
		return ErrOutOfRange
	}
	return s.put(addr, make([]byte, checksum.Size))
}

func (s *Store) put(addr uint32, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.dev.WriteAt(buf, int64(addr))
	if err != nil {
		return fmt.Errorf("write at 0x%x: %w", addr, err)
	}
	if n != len(buf) {
		return &ShortWriteError{Addr: addr, Want: len(buf), Got: n}
	}
	if err = s.dev.Sync(); err != nil {
		return fmt.Errorf("sync after write at 0x%x: %w", addr, err)
	}
	return nil
}

// Close closes the underlying device.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Close()
}
