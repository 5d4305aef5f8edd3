// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build mage
// +build mage

/*
 build file for mage build system
 list tgts with
go run magerunner.go -l

 build tgt with
go run magerunner.go tgt
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
	"github.com/ulikunitz/xz"

	"github.com/rmfalco89/esp-project-template/build/paths"
)

func BuildAll(ctx context.Context) error {
	fmt.Println("mage running")
	mg.CtxDeps(ctx, Bins.Host, Bins.Util, Bins.Release)
	return nil
}

type Bins mg.Namespace

// fwbootd for the build host
func (Bins) Host(ctx context.Context) error {
	mg.CtxDeps(ctx, workdir)
	return build(nil, "-o", fp.Join(paths.WorkDir, "fwbootd"), paths.DaemonCmd)
}

// Misc utility binaries. Output is to GOBIN since we don't specify -o.
func (Bins) Util(ctx context.Context) error {
	args := append([]string{"install"}, paths.UtilCmds...)
	return sh.Run("go", args...)
}

// xz-compressed fwbootd for each release arch, named as the release assets
func (Bins) Release(ctx context.Context) error {
	mg.CtxDeps(ctx, workdir)
	deps, err := depDirs(ctx, paths.DaemonCmd)
	if err != nil {
		return err
	}
	for _, arch := range paths.ReleaseArches {
		bin := fp.Join(paths.WorkDir, paths.Asset(arch))
		rebuild, err := target.Dir(bin+".xz", deps...)
		if err != nil {
			return err
		}
		if !rebuild {
			fmt.Println("skipping build of", bin)
			continue
		}
		env := map[string]string{"GOOS": "linux", "GOARCH": arch, "CGO_ENABLED": "0"}
		if err := build(env, "-o", bin, paths.DaemonCmd); err != nil {
			return err
		}
		if err := compress(bin); err != nil {
			return err
		}
	}
	return nil
}

// Regenerate the release manifest schema starting point. The embedded copy
// in pkg/release is hand-edited from it.
func Schema(ctx context.Context) error {
	mg.CtxDeps(ctx, workdir)
	out, err := sh.Output("go", "run", paths.ImportPath+"/cmd/util/release-schema")
	if err != nil {
		return err
	}
	dst := fp.Join(paths.WorkDir, "release-manifest.schema.json")
	fmt.Println("wrote", dst)
	return os.WriteFile(dst, []byte(out+"\n"), 0644)
}

// compress writes name.xz and removes name.
func compress(name string) error {
	in, err := os.Open(name)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(name + ".xz")
	if err != nil {
		return err
	}
	w, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err = io.Copy(w, in); err == nil {
		err = w.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}
	fmt.Println("wrote", name+".xz")
	return os.Remove(name)
}

func workdir() {
	//ignore errors
	_ = os.MkdirAll(paths.WorkDir, 0755)
}

// return paths to pkgs imported by given package.
func depDirs(ctx context.Context, pkg string) ([]string, error) {
	list := exec.CommandContext(ctx, "go", "list", "-f", "{{range .Deps}}{{.}}\n{{end}}", pkg)
	out, err := list.CombinedOutput()
	if err != nil {
		return nil, err
	}
	deps := []string{}
	for _, l := range strings.Split(string(out), "\n") {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, paths.ImportPath+"/") {
			deps = append(deps, strings.Replace(l, paths.ImportPath, paths.RepoRoot, 1))
		}
	}
	return deps, nil
}

// build go code with desired flags
var build func(env map[string]string, args ...string) error

func init() {
	version := os.Getenv("FWBOOT_VERSION")
	if version == "" {
		version, _ = sh.Output("git", "describe", "--tags", "--always")
		version = strings.TrimPrefix(version, "v")
	}
	var args []string
	for _, a := range []string{
		"build",
		"-trimpath",
		"-ldflags", "-X 'main.buildId=${BUILD_INFO}' -s -w",
	} {
		args = append(args, os.ExpandEnv(a))
	}
	if version != "" {
		args[len(args)-1] += " -X '" + paths.ImportPath + "/pkg/config.BuildVersion=" + version + "'"
	}
	build = RunWCmd(nil, "go", args...)
}

// sh.RunCmd modified to call RunWith
func RunWCmd(env map[string]string, cmd string, args ...string) func(env2 map[string]string, args ...string) error {
	return func(env2 map[string]string, args2 ...string) error {
		cenv := map[string]string{}
		for k, v := range env {
			cenv[k] = v
		}
		for k, v := range env2 {
			cenv[k] = v
		}
		return sh.RunWith(cenv, cmd, append(args, args2...)...)
	}
}
