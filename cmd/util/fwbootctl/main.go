// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command fwbootctl inspects and edits the configuration store and update
// history of a device offline, or next to a running fwbootd. The daemon
// notices store writes and re-checks its configuration.
//
//	fwbootctl [-store path] [-history dir] show|configure|invalidate|format|clear-quick|history
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/config"
	"github.com/rmfalco89/esp-project-template/pkg/devcfg"
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
	"github.com/rmfalco89/esp-project-template/pkg/store"
	"github.com/rmfalco89/esp-project-template/pkg/update/history"
)

const usage = `usage: fwbootctl [flags] command [command flags]

commands:
	show         print the stored configuration and quick-restart flag
	configure    write a new configuration (see fwbootctl configure -h)
	invalidate   void the configuration; the device enters config mode
	format       rewrite the layout header and clear every slot
	clear-quick  clear the quick-restart flag
	history      print the update history

flags:
`

func main() {
	log.AddConsoleLog(flags.EndUser)
	log.FlushMemLog()

	defaults, err := config.FromEnv()
	if err != nil {
		fatal(err)
	}
	storePath := flag.String("store", defaults.StorePath, "configuration store file")
	histDir := flag.String("history", defaults.HistoryDir, "update history directory")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "history" {
		showHistory(*histDir)
		return
	}

	dev, err := store.OpenFile(*storePath, store.DefaultSize)
	if err != nil {
		fatal(err)
	}
	s := store.New(dev)
	defer s.Close()

	switch cmd {
	case "show":
		show(s)
	case "configure":
		configure(s, args)
	case "invalidate":
		check(devcfg.InvalidateConfig(s))
		fmt.Println("configuration voided")
	case "format":
		check(devcfg.Format(s))
	case "clear-quick":
		check(devcfg.SaveQuickRestart(s, false))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func show(s *store.Store) {
	if !devcfg.CheckLayout(s) {
		fmt.Println("store was not formatted; formatted it")
	}
	if c := devcfg.LoadConfig(s); c != nil {
		fmt.Printf("configuration: %s\n", c)
	} else {
		fmt.Println("configuration: none")
	}
	fmt.Printf("quick restart pending: %t\n", devcfg.LoadQuickRestart(s))
}

func configure(s *store.Store, args []string) {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	c := &devcfg.DeviceConfig{}
	fs.StringVar(&c.SSID, "ssid", "", "network SSID (required)")
	fs.StringVar(&c.Password, "password", "", "network passphrase")
	fs.StringVar(&c.Hostname, "hostname", "", "mDNS hostname")
	fs.StringVar(&c.DeviceName, "name", "", "device name")
	fs.StringVar(&c.AuthToken, "token", "", "release feed auth token")
	fs.BoolVar(&c.AliveSignal, "alive", true, "blink the alive-signal LED")
	_ = fs.Parse(args)
	check(c.Validate())
	devcfg.CheckLayout(s)
	check(devcfg.SaveConfig(s, c))
	fmt.Printf("saved %s\n", c)
}

func showHistory(dir string) {
	h, err := history.Open(dir)
	if err != nil {
		fatal(fmt.Errorf("%w (is fwbootd running?)", err))
	}
	defer h.Close()
	for _, r := range h.All() {
		last := "never"
		if !r.LastAttempt.IsZero() {
			last = r.LastAttempt.Format(time.RFC3339)
		}
		fmt.Printf("%-12s attempts %d failures %d boots %d last %s skip %t\n",
			r.Version, r.Attempts, r.Failures, r.Boots, last, !r.Ok())
		for _, n := range r.Notes {
			fmt.Printf("\t%s\n", n)
		}
	}
}

func check(err error) {
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
	os.Exit(1)
}
