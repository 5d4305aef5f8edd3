// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	fp "path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/config"
	"github.com/rmfalco89/esp-project-template/pkg/devcfg"
	"github.com/rmfalco89/esp-project-template/pkg/device"
	hk "github.com/rmfalco89/esp-project-template/pkg/init/housekeeping"
	"github.com/rmfalco89/esp-project-template/pkg/log/testlog"
	"github.com/rmfalco89/esp-project-template/pkg/store"
)

type harness struct {
	cfg      *config.Settings
	clock    *device.FakeClock
	feedHits int32
	restarts chan string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: &device.FakeClock{}, restarts: make(chan string, 4)}
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&h.feedHits, 1)
		http.NotFound(w, r)
	}))
	t.Cleanup(feed.Close)
	dir := t.TempDir()
	h.cfg = &config.Settings{
		Version:            "1.2.0",
		AssetName:          "fw.bin",
		Repo:               "owner/fw",
		FeedURL:            feed.URL,
		ListenAddr:         "127.0.0.1:0",
		StorePath:          fp.Join(dir, "eeprom.bin"),
		ImageDir:           fp.Join(dir, "images"),
		HistoryDir:         fp.Join(dir, "history"),
		Watchdog:           time.Hour,
		GraceWindow:        2 * time.Second,
		ConfigCheckEvery:   time.Minute,
		UpdateInterval:     time.Hour,
		LinkWait:           time.Second,
		LinkCheckEvery:     time.Minute,
		DownloadTimeout:    time.Minute,
		ConfigModeHostname: "arduino",
		ConfigModeSSID:     "ArduinoNet",
	}
	t.Cleanup(hk.Preboots.Clear)
	return h
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r := New(h.cfg, h.clock)
	r.restart = func(reason string) { h.restarts <- reason }
	r.restartDelay = 0
	if err := r.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func (h *harness) configure(t *testing.T, cfg *devcfg.DeviceConfig) {
	t.Helper()
	dev, err := store.OpenFile(h.cfg.StorePath, store.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	s := store.New(dev)
	defer s.Close()
	devcfg.CheckLayout(s)
	if err := devcfg.SaveConfig(s, cfg); err != nil {
		t.Fatal(err)
	}
}

var home = &devcfg.DeviceConfig{SSID: "Home", Hostname: "dev1", DeviceName: "Pump1", AliveSignal: true}

func TestConfigModeUntilConfigured(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	h := newHarness(t)
	r := h.runner(t)
	if m := r.Device().Mode(); m != device.ConfigMode {
		t.Fatalf("fresh store booted in %s", m)
	}
	ctx := context.Background()
	r.Tick(ctx, h.clock.Millis())
	if _, ok := r.Device().RestartRequested(); ok {
		t.Fatal("restart without configuration")
	}

	h.configure(t, home)
	h.clock.Advance(61 * time.Second)
	r.Tick(ctx, h.clock.Millis())
	reason, ok := r.Device().RestartRequested()
	if !ok || !strings.Contains(reason, "valid configuration") {
		t.Fatalf("restart %t %q", ok, reason)
	}
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-h.restarts:
		if got != reason {
			t.Errorf("restarted for %q, want %q", got, reason)
		}
	default:
		t.Error("Run returned without restarting")
	}
	if n := atomic.LoadInt32(&h.feedHits); n != 0 {
		t.Errorf("feed queried %d times in config mode", n)
	}
	if !tlog.Contains("entering config mode") {
		t.Error("config mode entry not logged")
	}
}

func TestNormalBoot(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	h := newHarness(t)
	h.configure(t, home)
	r := h.runner(t)
	if m := r.Device().Mode(); m != device.Normal {
		t.Fatalf("configured store booted in %s", m)
	}
	ctx := context.Background()

	r.Tick(ctx, h.clock.Millis())
	if _, ok := r.hist.Get("1.2.0"); ok {
		t.Error("boot recorded inside the grace window")
	}
	if !r.hb.On() {
		t.Error("heartbeat LED not lit")
	}
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Second)
		r.Tick(ctx, h.clock.Millis())
	}
	rec, ok := r.hist.Get("1.2.0")
	if !ok || rec.Boots != 1 {
		t.Errorf("boot record %+v (%t)", rec, ok)
	}
	if devcfg.LoadQuickRestart(r.store) {
		t.Error("quick restart flag still set")
	}

	if n := atomic.LoadInt32(&h.feedHits); n != 0 {
		t.Fatalf("feed queried early: %d", n)
	}
	h.clock.Advance(time.Hour)
	r.Tick(ctx, h.clock.Millis())
	if n := atomic.LoadInt32(&h.feedHits); n != 1 {
		t.Errorf("feed queried %d times after the update interval", n)
	}
	if _, ok := r.Device().RestartRequested(); ok {
		t.Error("restart requested without a release")
	}
}

func TestCrashLoopEntersConfigMode(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	h := newHarness(t)
	h.configure(t, home)
	r := h.runner(t)
	if m := r.Device().Mode(); m != device.Normal {
		t.Fatalf("first boot in %s", m)
	}
	//dies before the grace window passes
	r.Close()
	hk.Preboots.Clear()

	r = h.runner(t)
	if m := r.Device().Mode(); m != device.ConfigMode {
		t.Errorf("second boot in %s", m)
	}
	if !r.Device().Status().BootQuickRestart {
		t.Error("quick restart not reported")
	}
}

// A restart the firmware asks for inside the grace window is not a crash.
func TestRequestedRestartWithinGraceWindow(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	h := newHarness(t)
	h.configure(t, home)
	r := h.runner(t)
	if m := r.Device().Mode(); m != device.Normal {
		t.Fatalf("first boot in %s", m)
	}
	h.clock.Advance(500 * time.Millisecond)
	r.Device().RequestRestart("configuration saved")
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.restarts:
	default:
		t.Fatal("Run returned without restarting")
	}
	r.Close()
	hk.Preboots.Clear()

	r = h.runner(t)
	if m := r.Device().Mode(); m != device.Normal {
		t.Errorf("after requested restart: want normal, got %s", m)
	}
	if r.Device().Status().BootQuickRestart {
		t.Error("requested restart reported as quick restart")
	}
}

func TestRunStartupCheckAndCancel(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	h := newHarness(t)
	h.configure(t, home)
	r := h.runner(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&h.feedHits) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + r.Server().Addr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status page: %s", resp.Status)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Error(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if n := atomic.LoadInt32(&h.feedHits); n != 1 {
		t.Errorf("startup check queried the feed %d times", n)
	}
	if len(h.restarts) != 0 {
		t.Error("restart on cancel")
	}
}

func TestRegistersPreboot(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	h := newHarness(t)
	hk.Preboots.Clear()
	r := h.runner(t)
	names := map[string]bool{}
	hk.Preboots.Filter(func(t *hk.HkTask) bool {
		names[t.Name] = true
		return true
	})
	for _, n := range []string{"fwbootd", "sync", "log.Finalize"} {
		if !names[n] {
			t.Errorf("missing preboot task %s", n)
		}
	}
	hk.Preboots.Remove("log.Finalize")
	hk.Preboots.Perform(true)
	select {
	case <-r.done:
	default:
		t.Error("preboot did not close the runner")
	}
}
