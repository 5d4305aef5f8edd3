// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Test app for github.com/rmfalco89/esp-project-template/pkg/hw/led, blinking the alive-signal LED.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/hw/led"
)

func main() {
	name := flag.String("led", "", "LED name under "+led.ClassDir)
	period := flag.Duration("period", time.Second, "on/off time")
	total := flag.Duration("until", time.Minute, "stop blinking after this much time has passed")
	flag.Parse()
	l, err := led.Open(*name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening led: %s\n", err)
		os.Exit(1)
	}
	clock := device.NewSystemClock()
	hb := led.NewHeartbeat(l, *period)
	stop := time.After(*total)
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-stop:
			//leaves the LED off
			hb.Tick(clock.Millis(), false)
			return
		case <-t.C:
			hb.Tick(clock.Millis(), true)
		}
	}
}
