// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"errors"
	"fmt"
	"os"
	fp "path/filepath"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

type fileLog struct {
	f    *os.File
	next StackableLogger
}

var _ StackableLogger = (*fileLog)(nil)

var ErrPrefix = errors.New("log prefix is unset")

// AddFileLog creates dir if needed and attaches a file sink named from the
// prefix and the current time. Earlier entries are replayed into it.
func AddFileLog(dir string) (string, error) {
	prefix := GetPrefix()
	if prefix == "" {
		return "", ErrPrefix
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := prefix + "_" + time.Now().Format(FileTimestampLayout) + ".log"
	return AddNamedFileLog(fp.Join(dir, name))
}

// AddNamedFileLog is AddFileLog with an explicit path. The file is appended
// to, so a restarted daemon keeps the history of the previous boot.
func AddNamedFileLog(fname string) (string, error) {
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}
	err = AddLogger(&fileLog{f: f}, true)
	if err == nil {
		err = SetAttr("Filename", fname)
	}
	if err != nil {
		f.Close()
		return "", err
	}
	return fname, nil
}

func (fl *fileLog) AddEntry(e LogEntry) {
	if e.Flags&flags.NotFile == 0 && fl.f != nil {
		fmt.Fprintln(fl.f, e.String())
	}
	if fl.next != nil {
		fl.next.AddEntry(e)
	}
}

func (fl *fileLog) ForwardTo(sl StackableLogger) {
	if fl.next != nil && sl != nil {
		panic("next already set")
	}
	fl.next = sl
}

const FileLogIdent = "fileLog"

func (fl *fileLog) Ident() string         { return FileLogIdent }
func (fl *fileLog) Next() StackableLogger { return fl.next }

func (fl *fileLog) Finalize() {
	if fl.f != nil {
		if err := fl.f.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "syncing log file: %s\n", err)
		}
		if err := fl.f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %s\n", err)
		}
		fl.f = nil
	}
	if fl.next != nil {
		fl.next.Finalize()
	}
}

func LoggingToFile() bool {
	return InStack(FileLogIdent)
}
