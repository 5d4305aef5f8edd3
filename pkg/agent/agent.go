// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package agent is the daemon's control loop. Setup brings the device up in
// the mode chosen by the boot-mode resolver; Run then ticks every
// collaborator until a restart is requested.
//
// Everything the loop touches is owned by the loop goroutine, except the
// device context and the installer, which the admin server shares.
package agent

import (
	"context"
	"os"
	fp "path/filepath"
	"sync"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/admin"
	"github.com/rmfalco89/esp-project-template/pkg/bootmode"
	"github.com/rmfalco89/esp-project-template/pkg/config"
	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/hw/kmsg"
	"github.com/rmfalco89/esp-project-template/pkg/hw/led"
	"github.com/rmfalco89/esp-project-template/pkg/hw/power"
	"github.com/rmfalco89/esp-project-template/pkg/hw/watchdog"
	hk "github.com/rmfalco89/esp-project-template/pkg/init/housekeeping"
	"github.com/rmfalco89/esp-project-template/pkg/installer"
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/net/link"
	"github.com/rmfalco89/esp-project-template/pkg/net/xfer"
	"github.com/rmfalco89/esp-project-template/pkg/release"
	"github.com/rmfalco89/esp-project-template/pkg/store"
	"github.com/rmfalco89/esp-project-template/pkg/update"
	"github.com/rmfalco89/esp-project-template/pkg/update/history"
)

const (
	TickInterval    = 100 * time.Millisecond
	HeartbeatPeriod = time.Second
	ringLogSize     = 200
	// lets the admin server finish the response that requested a restart
	restartDelay = time.Second
)

type Runner struct {
	cfg   *config.Settings
	clock device.Clock

	dc     *device.Context
	dev    store.Device
	store  *store.Store
	res    *bootmode.Resolver
	wd     watchdog.Watchdog
	hb     *led.Heartbeat
	link   *link.Monitor
	images *installer.DirPartition
	hist   *history.History
	orch   *update.Orchestrator
	srv    *admin.Server

	bootRecorded bool
	done         chan struct{}
	closeOnce    sync.Once

	// restart is power.Restart outside of tests
	restart      func(reason string)
	restartDelay time.Duration
}

func New(cfg *config.Settings, clock device.Clock) *Runner {
	if clock == nil {
		clock = device.NewSystemClock()
	}
	return &Runner{
		cfg:          cfg,
		clock:        clock,
		done:         make(chan struct{}),
		restart:      power.Restart,
		restartDelay: restartDelay,
	}
}

func (r *Runner) Device() *device.Context            { return r.dc }
func (r *Runner) Orchestrator() *update.Orchestrator { return r.orch }
func (r *Runner) Server() *admin.Server              { return r.srv }

// Setup opens the store, resolves the boot mode and starts every
// collaborator. An error means the device cannot operate at all.
func (r *Runner) Setup(ctx context.Context) error {
	cfg := r.cfg
	log.SetPrefix("fwbootd")
	if !log.InStack(log.RingLogIdent) {
		if err := log.AddRingLog(ringLogSize); err != nil {
			log.Logf("adding ring log: %s", err)
		}
	}
	if cfg.LogDir != "" && !log.InStack(log.FileLogIdent) {
		if name, err := log.AddFileLog(cfg.LogDir); err != nil {
			log.Logf("adding file log: %s", err)
		} else {
			log.Logf("logging to %s", name)
		}
	}
	if os.Getpid() == 1 && !log.InStack(kmsg.KmsgLogIdent) {
		if err := kmsg.AddKmsgLog(kmsg.FacDaemon, "fwbootd"); err != nil {
			log.Logf("kmsg: %s", err)
		}
	}
	log.Msgf("fwbootd %s starting", cfg.Version)
	if cfg.RestartCommand != "" {
		if err := power.SetRestartCommand(cfg.RestartCommand); err != nil {
			return err
		}
	}

	r.wd = watchdog.Open(cfg.WatchdogDevice, cfg.Watchdog, func() { r.restart("watchdog expired") })

	if err := os.MkdirAll(fp.Dir(cfg.StorePath), 0755); err != nil {
		return err
	}
	dev, err := store.OpenFile(cfg.StorePath, store.DefaultSize)
	if err != nil {
		return err
	}
	r.dev = dev
	r.store = store.New(dev)

	r.dc = device.NewContext(r.clock, cfg.Version)
	r.res = bootmode.New(r.store, cfg.GraceWindow, cfg.ConfigCheckEvery)
	mode := r.res.Resolve(r.dc)

	r.link = link.NewMonitor(cfg.Iface, cfg.LinkCheckEvery)
	if mode == device.Normal && r.link.Enabled() {
		if !r.link.WaitForIPv4(ctx, cfg.LinkWait, r.wd.Feed) {
			log.Msgf("Unable to connect, entering config mode")
			r.dc.SetMode(device.ConfigMode)
		}
	}

	var l led.LED = led.Nop{}
	if cfg.LEDName != "" {
		if sl, err := led.Open(cfg.LEDName); err != nil {
			log.Logf("led %s: %s", cfg.LEDName, err)
		} else {
			l = sl
		}
	}
	r.hb = led.NewHeartbeat(l, HeartbeatPeriod)

	r.images, err = installer.NewDirPartition(cfg.ImageDir)
	if err != nil {
		return err
	}
	prog := &xfer.Progress{Name: "firmware", Total: -1}
	inst := installer.New(r.images, prog.Update)

	//update history is informational; run without it rather than not at all
	if r.hist, err = history.Open(cfg.HistoryDir); err != nil {
		log.Logf("update history unavailable: %s", err)
		r.hist = nil
	}

	r.orch = update.New(update.Options{
		FeedURL:         cfg.FeedURL,
		Repo:            cfg.Repo,
		Asset:           cfg.AssetName,
		Interval:        cfg.UpdateInterval,
		DownloadTimeout: cfg.DownloadTimeout,
	}, r.dc, &release.Client{Feed: r.wd.Feed}, &xfer.Getter{Feed: r.wd.Feed}, inst, r.hist)

	r.srv = admin.NewServer(&admin.Admin{
		Store:              r.store,
		Device:             r.dc,
		Resolver:           r.res,
		Updates:            r.orch,
		Link:               r.link,
		Images:             r.images,
		Feed:               r.wd.Feed,
		ConfigModeHostname: cfg.ConfigModeHostname,
	}, cfg.ListenAddr)
	if err := r.srv.Listen(); err != nil {
		return err
	}
	r.srv.SetServing(r.dc.Mode() == device.Normal)
	if r.dc.Mode().InConfigMode() {
		log.Msgf("config mode: connect to %s and browse to http://%s%s/configure",
			cfg.ConfigModeSSID, cfg.ConfigModeHostname, r.srv.Addr())
	}

	if err := store.Watch(cfg.StorePath, r.done, r.res.Poke); err != nil {
		log.Logf("not watching %s: %s", cfg.StorePath, err)
	}

	hk.Preboots.Add(&hk.HkTask{Name: "fwbootd", Func: func(bool) { r.Close() }})
	hk.AddPrebootDefaults()
	return nil
}

// Close releases everything Setup acquired. Safe to call more than once.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		if r.srv != nil {
			r.srv.Close()
		}
		if r.hist != nil {
			if err := r.hist.Close(); err != nil {
				log.Logf("closing history: %s", err)
			}
		}
		if r.store != nil {
			if err := r.store.Close(); err != nil {
				log.Logf("closing store: %s", err)
			}
		}
		if r.wd != nil {
			if err := r.wd.Close(); err != nil {
				log.Logf("closing watchdog: %s", err)
			}
		}
	})
}

// Tick runs one pass of the control loop.
func (r *Runner) Tick(ctx context.Context, now uint32) {
	r.wd.Feed()
	r.res.Tick(r.dc)

	alive := false
	if c := r.dc.Config(); c != nil {
		alive = c.AliveSignal
	}
	r.hb.Tick(now, alive)
	r.link.Tick(now)

	if r.dc.Mode() != device.Normal {
		return
	}
	if !r.bootRecorded && !r.dc.QuickRestartPending() {
		r.bootRecorded = true
		if r.hist != nil {
			r.hist.RecordBoot(r.cfg.Version, time.Now())
		}
	}
	r.orch.Tick(ctx, now)
}

// Run serves the admin surface and ticks until ctx is done or a restart is
// requested. A requested restart is carried out before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- r.srv.Serve() }()

	if r.dc.Mode() == device.Normal {
		r.orch.CheckAndUpgradeNow(ctx)
	}

	t := time.NewTicker(TickInterval)
	defer t.Stop()
	for {
		if reason, ok := r.dc.RestartRequested(); ok {
			log.Msgf("restart requested: %s", reason)
			r.res.MarkStable(r.dc)
			r.srv.SetServing(false)
			r.wait(r.restartDelay)
			r.restart(reason)
			return nil
		}
		select {
		case <-ctx.Done():
			r.Close()
			<-serveErr
			return nil
		case err := <-serveErr:
			r.Close()
			return err
		case <-t.C:
			r.Tick(ctx, r.clock.Millis())
		}
	}
}

// wait sleeps d without letting the watchdog expire.
func (r *Runner) wait(d time.Duration) {
	for d > 0 {
		step := d
		if step > TickInterval {
			step = TickInterval
		}
		time.Sleep(step)
		r.wd.Feed()
		d -= step
	}
}

// Main is Setup followed by Run; setup failures are fatal.
func Main(ctx context.Context, cfg *config.Settings) {
	r := New(cfg, nil)
	if err := r.Setup(ctx); err != nil {
		log.Fatalf("setup: %s", err)
	}
	if err := r.Run(ctx); err != nil {
		log.Fatalf("admin server: %s", err)
	}
}
