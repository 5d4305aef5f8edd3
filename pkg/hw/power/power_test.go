// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package power

import (
	"os"
	"testing"

	hk "github.com/rmfalco89/esp-project-template/pkg/init/housekeeping"
	"github.com/rmfalco89/esp-project-template/pkg/log/testlog"
)

func hijack(t *testing.T) (*Method, *[]string) {
	var gotM Method = -1
	var gotArgs []string
	perform = func(m Method, args []string) {
		gotM = m
		gotArgs = args
	}
	t.Cleanup(func() {
		perform = doRestart
		_ = SetRestartCommand("")
		hk.Preboots.Clear()
	})
	return &gotM, &gotArgs
}

func TestRestartRunsPreboots(t *testing.T) {
	if os.Getpid() == 1 {
		t.Skip("running as pid 1")
	}
	tlog := testlog.NewTestLog(t, true, false)
	m, _ := hijack(t)
	var ran, success bool
	hk.Preboots.Add(&hk.HkTask{Name: "t", Func: func(s bool) { ran, success = true, s }})
	Restart("update committed")
	tlog.Freeze()
	if !ran || !success {
		t.Errorf("preboot ran=%t success=%t", ran, success)
	}
	if *m != Exec {
		t.Errorf("want exec, got %s", *m)
	}
	if !tlog.Contains("restarting (update committed) via exec") {
		t.Errorf("missing log line:\n%s", tlog.Buf.String())
	}
}

func TestRestartCommand(t *testing.T) {
	if os.Getpid() == 1 {
		t.Skip("running as pid 1")
	}
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, args := hijack(t)
	if err := SetRestartCommand(`systemctl restart "fw bootd"`); err != nil {
		t.Fatal(err)
	}
	FailRestart()
	if *m != Command {
		t.Fatalf("want command, got %s", *m)
	}
	want := []string{"systemctl", "restart", "fw bootd"}
	if len(*args) != len(want) {
		t.Fatalf("want %q, got %q", want, *args)
	}
	for i := range want {
		if (*args)[i] != want[i] {
			t.Errorf("arg %d: want %q, got %q", i, want[i], (*args)[i])
		}
	}
}

func TestRestartCommandInvalid(t *testing.T) {
	if err := SetRestartCommand(`restart "unterminated`); err == nil {
		t.Error("want error for unterminated quote")
	}
}

func TestRestartRecoversPanic(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	hijack(t)
	var success = true
	hk.Preboots.Add(&hk.HkTask{Name: "t", Func: func(s bool) { success = s }})
	func() {
		defer Restart("deferred")
		panic("oops")
	}()
	tlog.Freeze()
	if success {
		t.Error("preboots should see success=false after a panic")
	}
	if !tlog.Contains("internal error: oops") {
		t.Errorf("panic not logged:\n%s", tlog.Buf.String())
	}
}
