// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build ignore
// +build ignore

/* runs mage build system
usage:
go run magerunner.go <mage args>
*/

package main

import (
	"os"

	"github.com/magefile/mage/mage"
)

func main() {
	os.Exit(mage.ParseAndRun(os.Stdout, os.Stderr, os.Stdin, append([]string{"-d", "build"}, os.Args[1:]...)))
}
