// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build mage
// +build mage

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/rmfalco89/esp-project-template/build/paths"
)

/* Env vars
RUN - passed to go test -run. Only tests that match the given regex will run.
COUNT - passed to go test -count. Use 1 to bypass test result caching, and
    higher values to repeat tests.
*/

type Tests mg.Namespace

// runs unit tests
func (Tests) Unit(ctx context.Context) error {
	args, err := testArgs(ctx)
	if err != nil {
		return err
	}
	return gotest(ctx, args...)
}

// runs unit tests with the race detector
func (Tests) Race(ctx context.Context) error {
	args, err := testArgs(ctx)
	if err != nil {
		return err
	}
	return gotest(ctx, append([]string{"-race"}, args...)...)
}

// go vet
func (Tests) Vet(ctx context.Context) error {
	return sh.RunV("go", append([]string{"vet"}, paths.GoDirs...)...)
}

func testArgs(ctx context.Context) ([]string, error) {
	args := []string{}
	if deadline, ok := ctx.Deadline(); ok {
		//less time than the exact deadline so go test can print out message about what test it's on
		dur := time.Until(deadline) - 20*time.Second
		if dur < 0 {
			return nil, mg.Fatal(1, "deadline exceeded")
		}
		args = append(args, "-timeout", dur.String())
	}
	args = append(args, paths.GoDirs...)
	if run := os.Getenv("RUN"); run != "" {
		args = append(args, "-run", run)
	}
	if count := os.Getenv("COUNT"); count != "" {
		c, err := strconv.Atoi(count)
		if err != nil {
			return nil, mg.Fatalf(3, "COUNT must be unset or numeric: %s", err)
		}
		args = append(args, "-count", strconv.Itoa(c))
	}
	return args, nil
}

func gotest(ctx context.Context, args ...string) error {
	fmt.Printf("running go test %v...\n", args)
	return sh.RunV("go", append([]string{"test"}, args...)...)
}
