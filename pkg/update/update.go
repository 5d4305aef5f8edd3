// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package update checks the release feed and installs newer firmware, either
// downloaded or uploaded through the admin interface.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/installer"
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/net/xfer"
	"github.com/rmfalco89/esp-project-template/pkg/release"
	"github.com/rmfalco89/esp-project-template/pkg/update/history"
)

// DefaultInterval between periodic checks.
const DefaultInterval = time.Hour

// Feed is satisfied by *release.Client.
type Feed interface {
	FetchLatest(ctx context.Context, base, repo, token, asset string) release.Info
}

// Opener is satisfied by *xfer.Getter.
type Opener interface {
	Open(ctx context.Context, src string) (*xfer.Stream, error)
}

type Options struct {
	FeedURL         string
	Repo            string
	Asset           string
	Interval        time.Duration
	DownloadTimeout time.Duration
}

type Orchestrator struct {
	opts     Options
	interval uint32
	dc       *device.Context
	feed     Feed
	get      Opener
	inst     *installer.Installer
	hist     *history.History //may be nil
	checking int32
}

func New(opts Options, dc *device.Context, feed Feed, get Opener, inst *installer.Installer, hist *history.History) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		opts:     opts,
		interval: device.Millis(opts.Interval),
		dc:       dc,
		feed:     feed,
		get:      get,
		inst:     inst,
		hist:     hist,
	}
}

func (o *Orchestrator) Installer() *installer.Installer { return o.inst }
func (o *Orchestrator) History() *history.History       { return o.hist }

type Outcome int

const (
	NoRelease Outcome = iota //feed unreachable or no matching asset
	UpToDate
	Skipped //release failed too often before
	Busy    //a check or an upload is already running
	Failed
	Installed
)

func (oc Outcome) String() string {
	switch oc {
	case NoRelease:
		return "no release"
	case UpToDate:
		return "up to date"
	case Skipped:
		return "skipped"
	case Busy:
		return "busy"
	case Failed:
		return "failed"
	case Installed:
		return "installed"
	}
	return fmt.Sprintf("Outcome(%d)", int(oc))
}

type Result struct {
	Outcome Outcome
	Current string
	Latest  string
	Err     error
}

func (r Result) String() string {
	s := fmt.Sprintf("%s (running %s", r.Outcome, r.Current)
	if r.Latest != "" {
		s += ", latest " + r.Latest
	}
	s += ")"
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}

// PeriodicCheck reports whether interval has passed since last. Safe
// across wraparound of the millisecond clock.
func PeriodicCheck(now, last, interval uint32) bool {
	return device.Elapsed(now, last) > interval
}

// Tick runs a check when due. Only called in Normal mode.
func (o *Orchestrator) Tick(ctx context.Context, now uint32) {
	if o.dc.Mode() != device.Normal {
		return
	}
	if !PeriodicCheck(now, o.dc.LastUpdateCheck(), o.interval) {
		return
	}
	o.dc.SetLastUpdateCheck(now)
	o.CheckAndUpgradeNow(ctx)
}

// CheckAndUpgradeNow asks the feed for the latest release and installs it
// if newer. On success a restart is requested from the device context.
// Failures are logged and leave the running image in place.
func (o *Orchestrator) CheckAndUpgradeNow(ctx context.Context) Result {
	res := Result{Current: o.dc.Version}
	if !atomic.CompareAndSwapInt32(&o.checking, 0, 1) {
		res.Outcome = Busy
		return res
	}
	defer atomic.StoreInt32(&o.checking, 0)

	info := o.feed.FetchLatest(ctx, o.opts.FeedURL, o.opts.Repo, o.dc.AuthToken(), o.opts.Asset)
	res.Latest = info.Version
	switch {
	case !info.Available():
		res.Outcome = NoRelease
	case !release.IsNewer(o.dc.Version, info.Version):
		res.Outcome = UpToDate
	case o.hist != nil && !o.hist.Check(info.Version):
		res.Outcome = Skipped
	default:
		log.Logf("found new firmware %s at %s", info.Version, info.DownloadURL)
		err := o.download(ctx, info)
		if errors.Is(err, installer.ErrAlreadyInProgress) {
			res.Outcome = Busy
			break
		}
		if o.hist != nil {
			o.hist.RecordAttempt(info.Version, time.Now(), err)
		}
		if err != nil {
			res.Outcome = Failed
			res.Err = err
		} else {
			res.Outcome = Installed
			o.dc.RequestRestart("update to " + info.Version + " installed")
		}
	}
	switch res.Outcome {
	case Installed:
		log.Msgf("update successfully completed: %s", res)
	case Failed:
		log.Msgf("update failed: %s", res)
	default:
		log.Logf("update check: %s", res)
	}
	return res
}

func (o *Orchestrator) download(ctx context.Context, info release.Info) error {
	ctx, cancel := context.WithTimeout(ctx, o.opts.DownloadTimeout)
	defer cancel()
	s, err := o.get.Open(ctx, info.DownloadURL)
	if err != nil {
		return err
	}
	defer s.Close()
	expected := s.Size
	if expected < 0 && !s.Compressed && info.Size > 0 {
		expected = info.Size
	}
	sess, err := o.inst.Begin(expected)
	if err != nil {
		return err
	}
	cr := &xfer.CountingReader{R: s}
	if _, err := io.Copy(sess, cr); err != nil {
		sess.Abort()
		var we *installer.WriteError
		if errors.As(err, &we) {
			return err
		}
		return fmt.Errorf("download interrupted after %d bytes: %w", cr.N, err)
	}
	return sess.Finish()
}

// BeginUpload starts a session for an image pushed by the operator.
func (o *Orchestrator) BeginUpload(expected int64) (*installer.Session, error) {
	sess, err := o.inst.Begin(expected)
	if err != nil {
		return nil, err
	}
	log.Msgf("firmware upload %s started", sess.ID)
	return sess, nil
}

// AcceptUploadedChunk appends one received chunk. An error has already
// aborted the session.
func (o *Orchestrator) AcceptUploadedChunk(sess *installer.Session, chunk []byte) error {
	_, err := sess.Write(chunk)
	return err
}

// FinishUpload commits the uploaded image and requests a restart.
func (o *Orchestrator) FinishUpload(sess *installer.Session) error {
	if err := sess.Finish(); err != nil {
		log.Msgf("firmware upload %s failed: %s", sess.ID, err)
		return err
	}
	log.Msgf("firmware upload %s complete: %d bytes", sess.ID, sess.Written())
	o.dc.RequestRestart("uploaded firmware installed")
	return nil
}
