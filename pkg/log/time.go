// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"time"
)

// TimestampLayout is used in each rendered entry.
var TimestampLayout = "2006-01-02 15:04:05.000"

// FileTimestampLayout is used in generated log file names.
const FileTimestampLayout = "20060102_1504"

// Timestamp returns the current time formatted with FileTimestampLayout.
func Timestamp() string {
	return time.Now().Format(FileTimestampLayout)
}
