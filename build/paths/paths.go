// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package paths holds locations shared by the mage targets. It must not
// import anything with generated code, or mage could not compile before
// generating it.
package paths

import (
	"errors"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

var (
	RepoRoot, ImportPath, WorkDir string

	// GoDirs limits go test and go vet to code, skipping the work dir.
	GoDirs []string

	// DaemonCmd is the package released as the firmware asset.
	DaemonCmd string
	// UtilCmds are built to check they compile; not released.
	UtilCmds []string

	// ReleaseArches are GOARCH values for linux release assets.
	ReleaseArches = []string{"amd64", "arm64", "arm"}
)

func init() {
	var err error
	RepoRoot, err = repoRoot()
	if err != nil {
		log.Logf("Cannot determine repo root: %s", err)
	}
	WorkDir = workDir()

	cmd := exec.Command("go", "list", "-m")
	cmd.Dir = RepoRoot
	out, err := cmd.Output()
	if err != nil {
		log.Logf("Cannot determine import path.")
	}
	ImportPath = strings.TrimSpace(string(out))

	GoDirs = []string{
		ImportPath + "/cmd/...",
		ImportPath + "/pkg/...",
		ImportPath + "/build/paths/...",
	}
	DaemonCmd = ImportPath + "/cmd/fwbootd"
	UtilCmds = []string{ImportPath + "/cmd/util/..."}
}

// Asset is the name of the release asset for arch, as configured in
// FWBOOT_ASSET on devices of that arch.
func Asset(arch string) string { return "fwbootd-linux-" + arch + ".bin" }

// Find repo root - from FWBOOT_ROOT env var, if set. Otherwise search
// parents for go.mod.
func repoRoot() (string, error) {
	if rr := os.Getenv("FWBOOT_ROOT"); rr != "" {
		return rr, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(fp.Join(wd, "go.mod")); err == nil {
			return wd, nil
		}
		parent := fp.Dir(wd)
		if parent == wd {
			return "", errors.New("no go.mod above working directory")
		}
		wd = parent
	}
}

// Get the working dir location from env FWBOOT_WORKDIR if set, otherwise
// use a dir adjacent to repo root so 'go test ./...' never scans it.
func workDir() string {
	if wd := os.Getenv("FWBOOT_WORKDIR"); wd != "" {
		return wd
	}
	return fp.Join(fp.Dir(RepoRoot), "work")
}
