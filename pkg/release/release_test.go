// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package release

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rmfalco89/esp-project-template/pkg/log/testlog"
)

func TestIsNewer(t *testing.T) {
	for _, tc := range []struct {
		cur, cand string
		want      bool
	}{
		{"1.3.9", "1.4.0", true},
		{"1.4.0", "1.4.0", false},
		{"1.4.0", "1.3.9", false},
		{"0.1.0", "v0.2.0", true},
		{"v1.0.0", "1.0.1", true},
		{"1.9.0", "1.10.0", true},
		{"2.0.0", "10.0.0", true},
		{"1.0.0", "0.0.0", false},
		{"1.0.0", "garbage", false},
		{"garbage", "0.0.1", true},
		{"1.2", "1.2.1", true},
		{"1.2.3-rc1", "1.2.3", false},
		{"2.0.0", "1.9.9", false},
		{"1.2.x", "1.2.4", true},
	} {
		if got := IsNewer(tc.cur, tc.cand); got != tc.want {
			t.Errorf("IsNewer(%q, %q): want %t, got %t", tc.cur, tc.cand, tc.want, got)
		}
	}
}

func TestParseVersion(t *testing.T) {
	if v := ParseVersion("v3.12.7"); v != (Version{3, 12, 7}) || v.String() != "3.12.7" {
		t.Errorf("got %v", v)
	}
	if v := ParseVersion("99999999999999999999.1.2"); v != (Version{0, 1, 2}) {
		t.Errorf("overflow: got %v", v)
	}
}

const manifestFmt = `{
  "tag_name": %q,
  "name": "release",
  "assets": [
    {"name": "other.bin", "browser_download_url": "https://example.com/other.bin", "size": 1},
    {"name": "esp32devkitc.bin", "browser_download_url": "https://example.com/fw.bin", "size": 1048576}
  ]
}`

type feed struct {
	status   int
	body     string
	gotAuth  string
	gotAccpt string
	gotPath  string
	mu       sync.Mutex
}

func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotAuth = r.Header.Get("Authorization")
	f.gotAccpt = r.Header.Get("Accept")
	f.gotPath = r.URL.Path
	w.WriteHeader(f.status)
	fmt.Fprint(w, f.body)
}

func TestFetchLatest(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	f := &feed{status: 200, body: fmt.Sprintf(manifestFmt, "1.4.0")}
	srv := httptest.NewServer(f)
	defer srv.Close()
	feeds := 0
	c := &Client{Feed: func() { feeds++ }}
	info := c.FetchLatest(context.Background(), srv.URL, "rmfalco89/esp32-project-template", "tok", "esp32devkitc.bin")
	want := Info{Version: "1.4.0", DownloadURL: "https://example.com/fw.bin", Size: 1048576}
	if info != want {
		t.Errorf("want %+v, got %+v", want, info)
	}
	if f.gotPath != "/repos/rmfalco89/esp32-project-template/releases/latest" {
		t.Errorf("path %s", f.gotPath)
	}
	if f.gotAuth != "token tok" || f.gotAccpt != "application/vnd.github.v3+json" {
		t.Errorf("headers: auth %q accept %q", f.gotAuth, f.gotAccpt)
	}
	if feeds != 2 {
		t.Errorf("want watchdog fed twice, got %d", feeds)
	}
	if !IsNewer("1.3.9", info.Version) {
		t.Error("1.4.0 should be newer than 1.3.9")
	}
}

func TestFetchLatestNoToken(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	f := &feed{status: 200, body: fmt.Sprintf(manifestFmt, "v2.0.0")}
	srv := httptest.NewServer(f)
	defer srv.Close()
	info := FetchLatest(context.Background(), srv.URL+"/", "a/b", "", "esp32devkitc.bin")
	if info.Version != "v2.0.0" || !info.Available() {
		t.Errorf("got %+v", info)
	}
	if f.gotAuth != "" {
		t.Errorf("empty token must not send Authorization, got %q", f.gotAuth)
	}
}

func TestFetchLatestFailures(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		repo   string
		token  string
		log    string
	}{
		{"401 empty token", 401, "", "a/b", "", "auth token is empty"},
		{"401 bad token", 401, "", "a/b", "expired", "valid and not expired"},
		{"500", 500, "oops", "a/b", "t", "status 500"},
		{"not json", 200, "<html>", "a/b", "t", "invalid manifest"},
		{"no tag", 200, `{"assets": []}`, "a/b", "t", "invalid manifest"},
		{"empty tag", 200, `{"tag_name": "", "assets": []}`, "a/b", "t", "invalid manifest"},
		{"asset missing url", 200, `{"tag_name": "1.0.0", "assets": [{"name": "esp32devkitc.bin"}]}`, "a/b", "t", "invalid manifest"},
		{"no matching asset", 200, `{"tag_name": "1.0.0", "assets": [{"name": "x.bin", "browser_download_url": "u"}]}`, "a/b", "t", "no asset named esp32devkitc.bin"},
		{"bad repo", 200, "", "nope", "t", "want owner/name"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tlog := testlog.NewTestLog(t, true, false)
			f := &feed{status: tc.status, body: tc.body}
			srv := httptest.NewServer(f)
			defer srv.Close()
			info := FetchLatest(context.Background(), srv.URL, tc.repo, tc.token, "esp32devkitc.bin")
			tlog.Freeze()
			if info != NoUpdate {
				t.Errorf("want sentinel, got %+v", info)
			}
			if !tlog.Contains(tc.log) {
				t.Errorf("want log containing %q, got:\n%s", tc.log, tlog.Buf.String())
			}
			if tc.token != "" && strings.Contains(tlog.Buf.String(), "token "+tc.token) {
				t.Errorf("token leaked into log:\n%s", tlog.Buf.String())
			}
		})
	}
}

func TestFetchLatestUnreachable(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	if info := FetchLatest(context.Background(), u, "a/b", "", "x"); info != NoUpdate {
		t.Errorf("want sentinel, got %+v", info)
	}
}

func TestFetchLatestCancelled(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	f := &feed{status: 200, body: fmt.Sprintf(manifestFmt, "9.9.9")}
	srv := httptest.NewServer(f)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if info := FetchLatest(ctx, srv.URL, "a/b", "", "esp32devkitc.bin"); info != NoUpdate {
		t.Errorf("want sentinel, got %+v", info)
	}
}
