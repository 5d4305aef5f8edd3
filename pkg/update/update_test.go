// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package update

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	fp "path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/rmfalco89/esp-project-template/pkg/devcfg"
	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/installer"
	"github.com/rmfalco89/esp-project-template/pkg/log/testlog"
	"github.com/rmfalco89/esp-project-template/pkg/net/xfer"
	"github.com/rmfalco89/esp-project-template/pkg/release"
	"github.com/rmfalco89/esp-project-template/pkg/update/history"
)

type fakeFeed struct {
	info     release.Info
	gotToken string
	calls    int
}

func (f *fakeFeed) FetchLatest(_ context.Context, _, _, token, _ string) release.Info {
	f.calls++
	f.gotToken = token
	return f.info
}

type env struct {
	dc    *device.Context
	feed  *fakeFeed
	dp    *installer.DirPartition
	hist  *history.History
	orch  *Orchestrator
	srv   *httptest.Server
	hits  int32
	image []byte
	fail  bool
}

func newEnv(t *testing.T, current string, body []byte) *env {
	t.Helper()
	e := &env{image: body}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&e.hits, 1)
		if e.fail {
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		w.Write(e.image)
	}))
	t.Cleanup(e.srv.Close)
	e.dc = device.NewContext(&device.FakeClock{}, current)
	e.dc.Boot(device.Normal, &devcfg.DeviceConfig{SSID: "Home", AuthToken: "tok"}, false, 0)
	e.feed = &fakeFeed{info: release.Info{Version: "1.4.0", DownloadURL: e.srv.URL + "/fw.bin"}}
	var err error
	e.dp, err = installer.NewDirPartition(fp.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatal(err)
	}
	e.hist, err = history.Open(fp.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.hist.Close() })
	get := &xfer.Getter{Retries: 1, Backoff: time.Millisecond}
	e.orch = New(Options{Asset: "fw.bin", Repo: "a/b"}, e.dc, e.feed, get, installer.New(e.dp, nil), e.hist)
	return e
}

func (e *env) current(t *testing.T) []byte {
	t.Helper()
	cur, err := e.dp.Current()
	if err != nil || cur == "" {
		t.Fatalf("no current image (%v)", err)
	}
	b, err := os.ReadFile(cur)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestInstallNewer(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	img := bytes.Repeat([]byte("firmware"), 10000)
	e := newEnv(t, "1.3.9", img)
	res := e.orch.CheckAndUpgradeNow(context.Background())
	if res.Outcome != Installed || res.Err != nil {
		t.Fatalf("got %s", res)
	}
	if !bytes.Equal(e.current(t), img) {
		t.Error("installed image differs")
	}
	if reason, ok := e.dc.RestartRequested(); !ok || reason != "update to 1.4.0 installed" {
		t.Errorf("restart %t %q", ok, reason)
	}
	if e.feed.gotToken != "tok" {
		t.Errorf("token from configuration not used: %q", e.feed.gotToken)
	}
	if r, _ := e.hist.Get("1.4.0"); r.Attempts != 1 || r.Failures != 0 {
		t.Errorf("history %+v", r)
	}
}

func TestInstallXz(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	img := bytes.Repeat([]byte{0xe9, 0x03, 0x02, 0x20}, 50000)
	var packed bytes.Buffer
	w, err := xz.NewWriter(&packed)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(img)
	w.Close()
	e := newEnv(t, "1.3.9", packed.Bytes())
	if res := e.orch.CheckAndUpgradeNow(context.Background()); res.Outcome != Installed {
		t.Fatalf("got %s", res)
	}
	if !bytes.Equal(e.current(t), img) {
		t.Error("decompressed image differs")
	}
}

func TestNoDownload(t *testing.T) {
	for _, tc := range []struct {
		name    string
		current string
		info    release.Info
		want    Outcome
	}{
		{"same", "1.4.0", release.Info{Version: "1.4.0", DownloadURL: "x"}, UpToDate},
		{"older", "2.0.0", release.Info{Version: "1.4.0", DownloadURL: "x"}, UpToDate},
		{"sentinel", "0.1.0", release.NoUpdate, NoRelease},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tlog := testlog.NewTestLog(t, true, false)
			defer tlog.Freeze()
			e := newEnv(t, tc.current, []byte("img"))
			e.feed.info = tc.info
			if res := e.orch.CheckAndUpgradeNow(context.Background()); res.Outcome != tc.want {
				t.Errorf("want %s, got %s", tc.want, res)
			}
			if atomic.LoadInt32(&e.hits) != 0 {
				t.Error("image downloaded")
			}
			if _, ok := e.dc.RestartRequested(); ok {
				t.Error("restart requested")
			}
		})
	}
}

func TestSkipAfterFailures(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	e := newEnv(t, "1.3.9", nil)
	e.fail = true
	for i := uint(0); i < history.MaxFailuresPerRelease; i++ {
		res := e.orch.CheckAndUpgradeNow(context.Background())
		if res.Outcome != Failed || res.Err == nil {
			t.Fatalf("attempt %d: got %s", i, res)
		}
	}
	hits := atomic.LoadInt32(&e.hits)
	if res := e.orch.CheckAndUpgradeNow(context.Background()); res.Outcome != Skipped {
		t.Errorf("want skipped, got %s", res)
	}
	if atomic.LoadInt32(&e.hits) != hits {
		t.Error("skipped release downloaded anyway")
	}
	if cur, _ := e.dp.Current(); cur != "" {
		t.Errorf("failed downloads changed current to %s", cur)
	}
	if _, ok := e.dc.RestartRequested(); ok {
		t.Error("restart requested after failures")
	}
}

func TestBusyDuringUpload(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	e := newEnv(t, "1.3.9", []byte("downloaded"))
	sess, err := e.orch.BeginUpload(-1)
	if err != nil {
		t.Fatal(err)
	}
	if res := e.orch.CheckAndUpgradeNow(context.Background()); res.Outcome != Busy {
		t.Errorf("want busy, got %s", res)
	}
	if _, ok := e.hist.Get("1.4.0"); ok {
		t.Error("busy check recorded in history")
	}
	if _, err := e.orch.BeginUpload(-1); !errors.Is(err, installer.ErrAlreadyInProgress) {
		t.Errorf("second upload: want ErrAlreadyInProgress, got %v", err)
	}
	for _, chunk := range []string{"uploaded ", "image"} {
		if err := e.orch.AcceptUploadedChunk(sess, []byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.orch.FinishUpload(sess); err != nil {
		t.Fatal(err)
	}
	if string(e.current(t)) != "uploaded image" {
		t.Errorf("current holds %q", e.current(t))
	}
	if reason, _ := e.dc.RestartRequested(); reason != "uploaded firmware installed" {
		t.Errorf("restart reason %q", reason)
	}
}

func TestUploadSizeMismatch(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	e := newEnv(t, "1.3.9", nil)
	sess, err := e.orch.BeginUpload(10)
	if err != nil {
		t.Fatal(err)
	}
	e.orch.AcceptUploadedChunk(sess, []byte("short"))
	var sm *installer.SizeMismatchError
	if err := e.orch.FinishUpload(sess); !errors.As(err, &sm) {
		t.Errorf("want size mismatch, got %v", err)
	}
	if _, ok := e.dc.RestartRequested(); ok {
		t.Error("restart requested after failed upload")
	}
}

func TestPeriodicCheck(t *testing.T) {
	hour := device.Millis(time.Hour)
	for _, tc := range []struct {
		now, last uint32
		want      bool
	}{
		{0, 0, false},
		{hour, 0, false},
		{hour + 1, 0, true},
		{100, 0xffffff00, false},
		{hour, 0xffffff00, true},
	} {
		if got := PeriodicCheck(tc.now, tc.last, hour); got != tc.want {
			t.Errorf("PeriodicCheck(%d, %d): want %t", tc.now, tc.last, tc.want)
		}
	}
}

func TestTick(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	e := newEnv(t, "1.4.0", nil)
	hour := device.Millis(time.Hour)
	e.orch.Tick(context.Background(), hour)
	if e.feed.calls != 0 {
		t.Error("checked before the interval")
	}
	e.orch.Tick(context.Background(), hour+1)
	if e.feed.calls != 1 || e.dc.LastUpdateCheck() != hour+1 {
		t.Errorf("calls %d last %d", e.feed.calls, e.dc.LastUpdateCheck())
	}
	e.dc.SetMode(device.ConfigMode)
	e.orch.Tick(context.Background(), 3*hour)
	if e.feed.calls != 1 {
		t.Error("checked in config mode")
	}
}
