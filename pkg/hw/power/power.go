// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package power restarts the device, running the pre-restart (Preboot)
// functions registered with the housekeeping pkg first.
//
// As a side-effect of import, log.Fatal is set to power.FailRestart.
package power

import (
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sys/unix"

	hk "github.com/rmfalco89/esp-project-template/pkg/init/housekeeping"
	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Defines the action taken on failure, which is to restart. Importing this
// package has the side effect of calling log.SetFatalAction() with this.
var FatalAction = log.FailAction{
	MsgPfx:     "ERROR, restarting: ",
	Terminator: FailRestart,
}

func init() {
	log.SetFatalAction(FatalAction)
}

// Method is how the process gets replaced by a fresh instance.
type Method int

const (
	// Reboot the machine. Used when running as pid 1.
	Reboot Method = iota
	// Command runs the configured restart command and exits.
	Command
	// Exec replaces the process image with a fresh copy of the executable.
	Exec
)

func (m Method) String() string {
	switch m {
	case Reboot:
		return "reboot"
	case Command:
		return "command"
	case Exec:
		return "exec"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

var (
	cfgMtx         sync.Mutex
	restartCommand string
)

// SetRestartCommand sets a command line, split with shell quoting rules,
// that restarts the service (e.g. "systemctl restart fwbootd"). It takes
// precedence over re-exec when not running as pid 1.
func SetRestartCommand(cmdline string) error {
	if cmdline != "" {
		if _, err := shlex.Split(cmdline); err != nil {
			return fmt.Errorf("restart command %q: %w", cmdline, err)
		}
	}
	cfgMtx.Lock()
	restartCommand = cmdline
	cfgMtx.Unlock()
	return nil
}

// Choose returns the method that Restart will use, and the split restart
// command when that method is Command.
func Choose() (Method, []string) {
	if os.Getpid() == 1 {
		return Reboot, nil
	}
	cfgMtx.Lock()
	cmdline := restartCommand
	cfgMtx.Unlock()
	if cmdline != "" {
		args, err := shlex.Split(cmdline)
		if err == nil && len(args) > 0 {
			return Command, args
		}
	}
	return Exec, nil
}

// Replaced in tests; does not return on success.
var perform = doRestart

// Restart after an error.
func FailRestart() {
	restart(false, "fatal error", recover())
}

// Restart intentionally, e.g. after committing a firmware image.
func Restart(reason string) {
	restart(true, reason, recover())
}

// Restart and FailRestart can be called from a defer statement, where a
// panic may be in flight. Restarting would mask it, so they recover it and
// it is logged here.
func restart(success bool, reason string, x interface{}) {
	if x != nil {
		log.Logf("panic() caught in restart(success=%t)", success)
		success = false
		log.Msgf("internal error: %s", x)
		stars := "***********************************************************"
		log.Logf("%s\nstack trace:\n%s\n%s", stars, debug.Stack(), stars)
	}
	m, args := Choose()
	log.Logf("restarting (%s) via %s", reason, m)
	hk.Preboots.Perform(success)
	perform(m, args)
}

func doRestart(m Method, args []string) {
	var err error
	switch m {
	case Reboot:
		time.Sleep(2 * time.Second)
		err = unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
	case Command:
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err = cmd.Run()
		if err == nil {
			os.Exit(0)
		}
	case Exec:
		var exe string
		exe, err = os.Executable()
		if err == nil {
			err = unix.Exec(exe, os.Args, os.Environ())
		}
	}
	// log is finalized at this point
	fmt.Fprintf(os.Stderr, "restart via %s failed: %s\n", m, err)
	os.Exit(1)
}
