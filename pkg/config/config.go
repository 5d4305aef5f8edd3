// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package config holds the daemon's settings: read from FWBOOT_* environment
// variables, then overridden by command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name in the env tags below.
const EnvPrefix = "FWBOOT_"

// BuildVersion is the firmware version compiled into the binary. Set with
// -ldflags "-X .../pkg/config.BuildVersion=x.y.z".
var BuildVersion = "0.1.0"

type Settings struct {
	// Version of the running firmware; only overridden for testing.
	Version   string `env:"VERSION"`
	AssetName string `env:"ASSET" envDefault:"esp32devkitc.bin"`
	Repo      string `env:"REPO" envDefault:"rmfalco89/esp32-project-template"`
	FeedURL   string `env:"FEED_URL" envDefault:"https://api.github.com"`

	ListenAddr     string `env:"LISTEN" envDefault:":8080"`
	StorePath      string `env:"STORE" envDefault:"/var/lib/fwboot/eeprom.bin"`
	ImageDir       string `env:"IMAGE_DIR" envDefault:"/var/lib/fwboot/images"`
	HistoryDir     string `env:"HISTORY_DIR" envDefault:"/var/lib/fwboot/history"`
	LogDir         string `env:"LOG_DIR"`
	RestartCommand string `env:"RESTART_COMMAND"`
	WatchdogDevice string `env:"WATCHDOG_DEVICE"`
	LEDName        string `env:"LED"`
	Iface          string `env:"IFACE"`

	Watchdog         time.Duration `env:"WATCHDOG_TIMEOUT" envDefault:"30s"`
	GraceWindow      time.Duration `env:"QUICK_RESTART_WINDOW" envDefault:"30s"`
	ConfigCheckEvery time.Duration `env:"CONFIG_CHECK_EVERY" envDefault:"5m"`
	UpdateInterval   time.Duration `env:"UPDATE_INTERVAL" envDefault:"1h"`
	LinkWait         time.Duration `env:"LINK_WAIT" envDefault:"20s"`
	LinkCheckEvery   time.Duration `env:"LINK_CHECK_EVERY" envDefault:"20m"`
	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"10m"`

	ConfigModeHostname string `env:"CONFIG_MODE_HOSTNAME" envDefault:"arduino"`
	ConfigModeSSID     string `env:"CONFIG_MODE_SSID" envDefault:"ArduinoNet"`
}

// Load reads the environment, then parses args (without the program name)
// as flags overriding it, then validates the result.
func Load(args []string) (*Settings, error) {
	s, err := FromEnv()
	if err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet("fwbootd", flag.ContinueOnError)
	s.Flags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromEnv returns defaults overridden by the environment, not validated.
func FromEnv() (*Settings, error) {
	s := &Settings{}
	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if s.Version == "" {
		s.Version = BuildVersion
	}
	return s, nil
}

// Flags registers a flag for each setting, defaulting to its current value.
func (s *Settings) Flags(fs *flag.FlagSet) {
	fs.StringVar(&s.AssetName, "asset", s.AssetName, "name of the firmware asset in a release")
	fs.StringVar(&s.Repo, "repo", s.Repo, "owner/name of the repository publishing releases")
	fs.StringVar(&s.FeedURL, "feed", s.FeedURL, "base url of the release feed")
	fs.StringVar(&s.ListenAddr, "listen", s.ListenAddr, "admin http and grpc address")
	fs.StringVar(&s.StorePath, "store", s.StorePath, "path of the persistent store")
	fs.StringVar(&s.ImageDir, "images", s.ImageDir, "directory holding firmware images")
	fs.StringVar(&s.HistoryDir, "history", s.HistoryDir, "update history database directory")
	fs.StringVar(&s.LogDir, "logdir", s.LogDir, "if set, also log to a file in this dir")
	fs.StringVar(&s.RestartCommand, "restart-cmd", s.RestartCommand, "command to restart the service; default re-execs")
	fs.StringVar(&s.WatchdogDevice, "watchdog-dev", s.WatchdogDevice, "watchdog device, e.g. /dev/watchdog; default soft watchdog")
	fs.StringVar(&s.LEDName, "led", s.LEDName, "LED class device for the alive signal")
	fs.StringVar(&s.Iface, "iface", s.Iface, "network interface to monitor")
	fs.DurationVar(&s.Watchdog, "watchdog", s.Watchdog, "watchdog timeout")
	fs.DurationVar(&s.GraceWindow, "quick-restart-window", s.GraceWindow, "a restart within this long after boot enters config mode")
	fs.DurationVar(&s.ConfigCheckEvery, "config-check", s.ConfigCheckEvery, "how often config mode re-reads the configuration")
	fs.DurationVar(&s.UpdateInterval, "update-interval", s.UpdateInterval, "how often to check for updates")
	fs.DurationVar(&s.LinkWait, "link-wait", s.LinkWait, "how long to wait for an ipv4 address at startup")
	fs.DurationVar(&s.LinkCheckEvery, "link-check", s.LinkCheckEvery, "how often to re-check the link")
	fs.DurationVar(&s.DownloadTimeout, "download-timeout", s.DownloadTimeout, "limit on a firmware download")
	fs.StringVar(&s.ConfigModeHostname, "config-hostname", s.ConfigModeHostname, "hostname used in config mode")
	fs.StringVar(&s.ConfigModeSSID, "config-ssid", s.ConfigModeSSID, "network name announced in config mode")
}

// Validate returns all problems found, joined.
func (s *Settings) Validate() error {
	var errs []error
	req := func(name, v string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s must be set", name))
		}
	}
	req("version", s.Version)
	req("asset", s.AssetName)
	req("listen", s.ListenAddr)
	req("store", s.StorePath)
	req("images", s.ImageDir)
	req("history", s.HistoryDir)
	if parts := strings.Split(s.Repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		errs = append(errs, fmt.Errorf("repo %q: want owner/name", s.Repo))
	}
	if u, err := url.Parse(s.FeedURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("feed url %q is not absolute", s.FeedURL))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"watchdog", s.Watchdog},
		{"quick-restart-window", s.GraceWindow},
		{"config-check", s.ConfigCheckEvery},
		{"update-interval", s.UpdateInterval},
		{"link-wait", s.LinkWait},
		{"link-check", s.LinkCheckEvery},
		{"download-timeout", s.DownloadTimeout},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.v))
		}
		//the control loop works in uint32 milliseconds
		if d.v > 24*24*time.Hour {
			errs = append(errs, fmt.Errorf("%s: %s is too long", d.name, d.v))
		}
	}
	return errors.Join(errs...)
}
