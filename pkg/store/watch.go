// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package store

import (
	"github.com/rjeczalik/notify"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Watch calls fn each time the file at path is written, until done is
// closed. The daemon uses it to notice configuration written by fwbootctl
// without waiting for the next periodic check. Writes made through this
// process trigger fn as well.
func Watch(path string, done <-chan struct{}, fn func()) error {
	events := make(chan notify.EventInfo, 1)
	if err := notify.Watch(path, events, notify.Write); err != nil {
		return err
	}
	go func() {
		defer notify.Stop(events)
		for {
			select {
			case <-done:
				return
			case ei := <-events:
				log.Logf("store: %s: %s", ei.Event(), ei.Path())
				fn()
			}
		}
	}()
	return nil
}
