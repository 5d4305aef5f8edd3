// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package history

import (
	"errors"
	"testing"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log/testlog"
)

func open(t *testing.T, dir string) *History {
	t.Helper()
	h, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func checkCounts(t *testing.T, h *History, version string, attempts, failures, boots uint, ok bool) {
	t.Helper()
	r, _ := h.Get(version)
	if r.Attempts != attempts || r.Failures != failures || r.Boots != boots {
		t.Errorf("%s: want %d/%d/%d attempts/failures/boots, got %d/%d/%d", version,
			attempts, failures, boots, r.Attempts, r.Failures, r.Boots)
	}
	if h.Check(version) != ok {
		t.Errorf("%s: want check %t", version, ok)
	}
}

func TestRecordAttempt(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	dir := t.TempDir()
	h := open(t, dir)
	ti := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fail := errors.New("short write")

	checkCounts(t, h, "1.4.0", 0, 0, 0, true)
	for i := 0; i < 4; i++ {
		h.RecordAttempt("1.4.0", ti, fail)
	}
	checkCounts(t, h, "1.4.0", 4, 4, 0, true)
	h.RecordAttempt("1.5.0", ti.Add(time.Hour), nil)
	h.RecordBoot("1.5.0", ti.Add(2*time.Hour))
	checkCounts(t, h, "1.5.0", 1, 0, 1, true)
	h.RecordAttempt("1.4.0", ti, fail)
	checkCounts(t, h, "1.4.0", 5, 5, 0, false)

	//persists across reopen
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	h = open(t, dir)
	defer h.Close()
	checkCounts(t, h, "1.4.0", 5, 5, 0, false)
	all := h.All()
	if len(all) != 2 || all[0].Version != "1.5.0" || all[1].Version != "1.4.0" {
		t.Errorf("want 1.5.0 then 1.4.0, got %+v", all)
	}
	if n := len(all[1].Notes); n != 5 {
		t.Errorf("want 5 notes, got %d", n)
	}
}

func TestNotesBounded(t *testing.T) {
	r := ReleaseResult{}
	for i := 0; i < MaxNotes+5; i++ {
		r.note(string(rune('a' + i)))
	}
	if len(r.Notes) != MaxNotes || r.Notes[0] != "f" {
		t.Errorf("got %v", r.Notes)
	}
}
