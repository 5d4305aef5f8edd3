// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/*
Package history records, per release version, how many install attempts
were made and how many failed, so that a release which keeps failing is
not downloaded again every interval. Entries are json values in a bitcask
database keyed by version.
*/
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prologic/bitcask"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

var (
	MaxFailuresPerRelease uint = 5  //releases with this many failures are skipped
	MaxNotes                   = 10 //per release, oldest dropped first
)

type ReleaseResult struct {
	Version     string
	Attempts    uint      `json:",omitempty"`
	Failures    uint      `json:",omitempty"`
	Boots       uint      `json:",omitempty"` //boots that outlived the quick-restart window
	LastAttempt time.Time `json:",omitempty"`
	Notes       []string  `json:",omitempty"` //timestamp+outcome of recent attempts
}

// Ok is false once the release has failed too often.
func (r ReleaseResult) Ok() bool { return r.Failures < MaxFailuresPerRelease }

func (r *ReleaseResult) note(s string) {
	r.Notes = append(r.Notes, s)
	if len(r.Notes) > MaxNotes {
		r.Notes = append([]string(nil), r.Notes[len(r.Notes)-MaxNotes:]...)
	}
}

type History struct {
	bc *bitcask.Bitcask
	sync.Mutex
}

func Open(dir string) (*History, error) {
	bc, err := bitcask.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening update history %s: %w", dir, err)
	}
	return &History{bc: bc}, nil
}

func (h *History) Close() error {
	h.Lock()
	defer h.Unlock()
	return h.bc.Close()
}

func key(version string) []byte { return []byte("rel_" + version) }

func (h *History) get(version string) (ReleaseResult, bool) {
	r := ReleaseResult{Version: version}
	v, err := h.bc.Get(key(version))
	if err != nil {
		if !errors.Is(err, bitcask.ErrKeyNotFound) {
			log.Logf("update history: reading %s: %s", version, err)
		}
		return r, false
	}
	if err := json.Unmarshal(v, &r); err != nil {
		log.Logf("update history: decoding %s: %s", version, err)
		return ReleaseResult{Version: version}, false
	}
	return r, true
}

func (h *History) put(r ReleaseResult) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Logf("error %s marshalling json for %v", err, r)
		return
	}
	if err := h.bc.Put(key(r.Version), data); err != nil {
		log.Logf("update history: writing %s: %s", r.Version, err)
		return
	}
	if err := h.bc.Sync(); err != nil {
		log.Logf("update history: sync: %s", err)
	}
}

// Get returns the record for version, if any.
func (h *History) Get(version string) (ReleaseResult, bool) {
	h.Lock()
	defer h.Unlock()
	return h.get(version)
}

// Check returns false if too many failures are recorded for version.
func (h *History) Check(version string) bool {
	r, _ := h.Get(version)
	return r.Ok()
}

// RecordAttempt counts one install attempt of version; err is nil if the
// image was committed.
func (h *History) RecordAttempt(version string, at time.Time, err error) {
	h.Lock()
	defer h.Unlock()
	r, _ := h.get(version)
	r.Attempts++
	r.LastAttempt = at
	n := fmt.Sprintf("install @ %s, success: %t", at.Format(time.RFC3339), err == nil)
	if err != nil {
		r.Failures++
		n += ", error: " + err.Error()
		if r.Failures == MaxFailuresPerRelease {
			log.Logf("release %s failed %d times, skipping it from now on", version, r.Failures)
		}
	}
	r.note(n)
	h.put(r)
}

// RecordBoot counts a boot of version that outlived the quick-restart
// window.
func (h *History) RecordBoot(version string, at time.Time) {
	h.Lock()
	defer h.Unlock()
	r, _ := h.get(version)
	r.Boots++
	r.note(fmt.Sprintf("boot @ %s", at.Format(time.RFC3339)))
	h.put(r)
}

// All returns every record, most recently attempted first.
func (h *History) All() []ReleaseResult {
	h.Lock()
	defer h.Unlock()
	var versions []string
	for k := range h.bc.Keys() {
		if v := strings.TrimPrefix(string(k), "rel_"); v != string(k) {
			versions = append(versions, v)
		}
	}
	var out []ReleaseResult
	for _, v := range versions {
		if r, ok := h.get(v); ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastAttempt.Equal(out[j].LastAttempt) {
			return out[i].LastAttempt.After(out[j].LastAttempt)
		}
		return out[i].Version < out[j].Version
	})
	return out
}
