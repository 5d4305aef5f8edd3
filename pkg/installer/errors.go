// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package installer

import (
	"errors"
	"fmt"
)

// ErrAlreadyInProgress is returned by Begin while another session is
// writing. The running session is not affected.
var ErrAlreadyInProgress = errors.New("firmware update already in progress")

var ErrNotWriting = errors.New("session is not writing")

// WriteError aborts the session it occurred in.
type WriteError struct {
	Session string
	Offset  int64 //bytes accepted before the failing chunk
	Want    int
	Got     int
	Err     error //nil for a plain short write
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update %s: write at %d: %s", e.Session, e.Offset, e.Err)
	}
	return fmt.Sprintf("update %s: short write at %d: %d of %d bytes", e.Session, e.Offset, e.Got, e.Want)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SizeMismatchError is returned by Finish when the byte count differs from
// the one given to Begin.
type SizeMismatchError struct {
	Expected int64
	Written  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("image size mismatch: expected %d bytes, got %d", e.Expected, e.Written)
}
