// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package installer streams a firmware image into the inactive partition.
// At most one session writes at a time. A session either commits the
// complete image or leaves the running image untouched.
package installer

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// State of a session: Writing, then exactly one of Committed or Aborted.
type State int

const (
	Idle State = iota
	Writing
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Writing:
		return "writing"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Target receives one image.
type Target interface {
	io.Writer
	// Commit makes the image the one booted next.
	Commit() error
	// Discard removes a partial image.
	Discard() error
}

// Partition hands out a Target per session.
type Partition interface {
	Create(id string) (Target, error)
}

// ProgressFunc is called after each accepted chunk. total is -1 if unknown.
type ProgressFunc func(written, total int64)

type Installer struct {
	part     Partition
	progress ProgressFunc

	mu     sync.Mutex
	active *Session
	last   *Session
}

func New(part Partition, progress ProgressFunc) *Installer {
	return &Installer{part: part, progress: progress}
}

// Begin starts a session. expected < 0 means the size is unknown.
func (in *Installer) Begin(expected int64) (*Session, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active != nil {
		return nil, ErrAlreadyInProgress
	}
	id := uuid.New().String()
	tgt, err := in.part.Create(id)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	s := &Session{
		ID:       id,
		Started:  time.Now(),
		in:       in,
		target:   tgt,
		expected: expected,
		state:    Writing,
	}
	in.active = s
	in.last = s
	if expected >= 0 {
		log.Logf("update %s: started, %d bytes expected", id, expected)
	} else {
		log.Logf("update %s: started, size unknown", id)
	}
	return s, nil
}

// Busy reports whether a session is writing.
func (in *Installer) Busy() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active != nil
}

// Last returns the most recent session, or nil.
func (in *Installer) Last() *Session {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.last
}

func (in *Installer) release(s *Session) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active == s {
		in.active = nil
	}
}

// Session is one image transfer. Its methods are safe for concurrent use
// but chunks must arrive in order.
type Session struct {
	ID      string
	Started time.Time

	in       *Installer
	mu       sync.Mutex
	target   Target
	expected int64
	written  int64
	state    State
	err      error
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Session) Expected() int64 { return s.expected }

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Write appends b to the image. Any failure aborts the session.
func (s *Session) Write(b []byte) (int, error) {
	s.mu.Lock()
	if s.state != Writing {
		err := &WriteError{Session: s.ID, Offset: s.written, Want: len(b), Err: ErrNotWriting}
		s.mu.Unlock()
		return 0, err
	}
	n, err := s.target.Write(b)
	if err == nil && n != len(b) {
		err = &WriteError{Session: s.ID, Offset: s.written, Want: len(b), Got: n}
	} else if err != nil {
		err = &WriteError{Session: s.ID, Offset: s.written, Want: len(b), Got: n, Err: err}
	}
	if err != nil {
		s.abortLocked(err)
		s.mu.Unlock()
		return n, err
	}
	s.written += int64(n)
	written, total := s.written, s.expected
	s.mu.Unlock()
	if s.in.progress != nil {
		s.in.progress(written, total)
	}
	return n, nil
}

// Finish checks the size, if known, and commits the image. After a nil
// return the device must restart to run it.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Writing {
		return fmt.Errorf("update %s: finish: %w (%s)", s.ID, ErrNotWriting, s.state)
	}
	if s.expected >= 0 && s.written != s.expected {
		err := &SizeMismatchError{Expected: s.expected, Written: s.written}
		s.abortLocked(err)
		return err
	}
	if err := s.target.Commit(); err != nil {
		err = fmt.Errorf("update %s: commit: %w", s.ID, err)
		s.abortLocked(err)
		return err
	}
	s.state = Committed
	s.in.release(s)
	log.Logf("update %s: committed %d bytes in %s", s.ID, s.written, time.Since(s.Started).Round(time.Millisecond))
	return nil
}

// Abort discards the partial image. No-op unless writing.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Writing {
		s.abortLocked(fmt.Errorf("aborted"))
	}
}

func (s *Session) abortLocked(cause error) {
	s.state = Aborted
	s.err = cause
	if err := s.target.Discard(); err != nil {
		log.Logf("update %s: discarding partial image: %s", s.ID, err)
	}
	s.in.release(s)
	log.Logf("update %s: aborted after %d bytes: %s", s.ID, s.written, cause)
}
