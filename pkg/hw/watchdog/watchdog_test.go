// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package watchdog

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log/testlog"
)

func TestSoftExpires(t *testing.T) {
	fired := make(chan struct{})
	s := NewSoft(20*time.Millisecond, func() { close(fired) })
	defer s.Close()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("soft watchdog did not expire")
	}
}

func TestSoftFeed(t *testing.T) {
	var fired int32
	s := NewSoft(100*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		s.Feed()
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("fed watchdog expired")
	}
	if s.Feeds() != 10 {
		t.Errorf("want 10 feeds, got %d", s.Feeds())
	}
	s.Close()
	s.Feed()
	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("closed watchdog expired")
	}
}

func TestOpenFallsBack(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	w := Open(filepath.Join(t.TempDir(), "nope"), time.Hour, nil)
	tlog.Freeze()
	defer w.Close()
	if _, ok := w.(*Soft); !ok {
		t.Errorf("want *Soft, got %T", w)
	}
	if !tlog.Contains("using soft watchdog") {
		t.Errorf("fallback not logged:\n%s", tlog.Buf.String())
	}
}
