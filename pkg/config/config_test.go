// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	s, err := Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		name      string
		got, want interface{}
	}{
		{"version", s.Version, BuildVersion},
		{"asset", s.AssetName, "esp32devkitc.bin"},
		{"repo", s.Repo, "rmfalco89/esp32-project-template"},
		{"feed", s.FeedURL, "https://api.github.com"},
		{"listen", s.ListenAddr, ":8080"},
		{"watchdog", s.Watchdog, 30 * time.Second},
		{"grace", s.GraceWindow, 30 * time.Second},
		{"config check", s.ConfigCheckEvery, 5 * time.Minute},
		{"update", s.UpdateInterval, time.Hour},
		{"link wait", s.LinkWait, 20 * time.Second},
		{"hostname", s.ConfigModeHostname, "arduino"},
		{"ssid", s.ConfigModeSSID, "ArduinoNet"},
	} {
		if c.got != c.want {
			t.Errorf("%s: want %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestEnvThenFlags(t *testing.T) {
	t.Setenv("FWBOOT_REPO", "acme/pump")
	t.Setenv("FWBOOT_UPDATE_INTERVAL", "10m")
	t.Setenv("FWBOOT_LISTEN", ":9000")
	s, err := Load([]string{"-listen", "127.0.0.1:8081", "-iface", "wlan0"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Repo != "acme/pump" || s.UpdateInterval != 10*time.Minute {
		t.Errorf("env not applied: %+v", s)
	}
	if s.ListenAddr != "127.0.0.1:8081" || s.Iface != "wlan0" {
		t.Errorf("flags not applied: %+v", s)
	}
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("FWBOOT_WATCHDOG_TIMEOUT", "soon")
	if _, err := Load(nil); err == nil {
		t.Error("want error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		mod  func(s *Settings)
		want string
	}{
		{"repo", func(s *Settings) { s.Repo = "justname" }, "want owner/name"},
		{"feed", func(s *Settings) { s.FeedURL = "api.github.com" }, "not absolute"},
		{"store", func(s *Settings) { s.StorePath = "" }, "store must be set"},
		{"zero", func(s *Settings) { s.Watchdog = 0 }, "watchdog must be positive"},
		{"long", func(s *Settings) { s.UpdateInterval = 1000 * time.Hour }, "too long"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := FromEnv()
			if err != nil {
				t.Fatal(err)
			}
			tc.mod(s)
			err = s.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
