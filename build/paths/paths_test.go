// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package paths

import (
	"os"
	fp "path/filepath"
	"testing"
)

func TestRepoRoot(t *testing.T) {
	if RepoRoot == "" {
		t.Fatal("repo root not found")
	}
	if _, err := os.Stat(fp.Join(RepoRoot, "go.mod")); err != nil {
		t.Error(err)
	}
	if fp.Dir(WorkDir) == RepoRoot {
		t.Errorf("work dir %s inside repo", WorkDir)
	}
}

func TestAsset(t *testing.T) {
	if got := Asset("arm64"); got != "fwbootd-linux-arm64.bin" {
		t.Error(got)
	}
}
