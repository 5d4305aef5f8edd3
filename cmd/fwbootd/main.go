// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command fwbootd keeps a device configured and its firmware current. See
// github.com/rmfalco89/esp-project-template/pkg/agent for details.
//
// Settings come from FWBOOT_* environment variables, overridden by flags;
// run with -h for the list.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/rmfalco89/esp-project-template/pkg/agent"
	"github.com/rmfalco89/esp-project-template/pkg/config"
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

// in any binary with main.buildId string, it is set at compile time to $BUILD_INFO
var buildId string

func main() {
	log.AddConsoleLog(flags.NA)
	log.FlushMemLog()
	log.AdaptStdlog(nil, 0)

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Logf("%s", err)
		os.Exit(2)
	}
	if buildId != "" {
		log.Logf("buildId: %s", buildId)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	agent.Main(ctx, cfg)
}
