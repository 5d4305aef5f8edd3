// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package housekeeping keeps the list of tasks that must run right before
// the device restarts: closing the store and the update history, flushing
// the log, syncing filesystems.
package housekeeping

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// HkFun receives true when the restart is intentional (update committed,
// operator request) and false when it follows a fatal error.
type HkFun func(success bool)

type HkTask struct {
	Name string
	Func HkFun
}

// HkList runs its tasks last-added first.
type HkList struct {
	mu    sync.Mutex
	tasks []*HkTask
}

type HkFilter func(t *HkTask) bool

// Filter returns a new list holding the tasks for which filter is true.
func (hl *HkList) Filter(filter HkFilter) *HkList {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	out := &HkList{}
	for _, entry := range hl.tasks {
		if filter(entry) {
			out.tasks = append(out.tasks, entry)
		}
	}
	return out
}

func (hl *HkList) FilterOut(filter HkFilter) *HkList {
	return hl.Filter(func(t *HkTask) bool { return !filter(t) })
}

// Perform runs and removes every task, most recently added first. A task
// that panics is logged and skipped so the remaining ones still run.
func (hl *HkList) Perform(success bool) {
	for {
		hl.mu.Lock()
		l := len(hl.tasks)
		if l == 0 {
			hl.mu.Unlock()
			return
		}
		task := hl.tasks[l-1]
		hl.tasks = hl.tasks[:l-1]
		hl.mu.Unlock()
		run(task, success)
	}
}

func run(task *HkTask, success bool) {
	defer func() {
		if x := recover(); x != nil {
			log.Logf("housekeeping task %s panicked: %v", task.Name, x)
		}
	}()
	task.Func(success)
}

func (hl *HkList) Clear() {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.tasks = nil
}

func (hl *HkList) Len() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.tasks)
}

func (hl *HkList) Add(t *HkTask) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.tasks = append(hl.tasks, t)
}

// AddFirst adds a task that will run after all others.
func (hl *HkList) AddFirst(t *HkTask) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.tasks = append([]*HkTask{t}, hl.tasks...)
}

// Remove drops every task with the given name.
func (hl *HkList) Remove(name string) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	kept := hl.tasks[:0]
	for _, t := range hl.tasks {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	hl.tasks = kept
}

// Preboots run before every restart, see pkg/hw/power.
var Preboots = &HkList{}

// AddPrebootDefaults registers the tasks that must be the very last to run:
// finalizing the log, then syncing. Calling it again replaces them.
func AddPrebootDefaults() {
	Preboots.Remove("log.Finalize")
	Preboots.Remove("sync")
	Preboots.AddFirst(&HkTask{Name: "log.Finalize", Func: func(_ bool) { log.Finalize() }})
	Preboots.AddFirst(&HkTask{Name: "sync", Func: func(_ bool) {
		start := time.Now()
		unix.Sync()
		fmt.Printf("sync: %s\n", time.Since(start))
	}})
}
