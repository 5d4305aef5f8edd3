// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package flags holds the bits attached to each log entry, deciding which
// sinks display it.
package flags

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Flag int

const (
	NA Flag = 0

	//suitable for the operator (admin portal, console in quiet mode)
	EndUser Flag = 1 << (iota - 1)
	//entry precedes a restart triggered by log.Fatalf
	Fatal
	//keep out of the on-disk log file
	NotFile
	//keep out of the ring buffer served at /logs; used for secrets
	NotWeb
)

var names = []struct {
	bit  Flag
	name string
}{
	{EndUser, "user"},
	{Fatal, "fatal"},
	{NotFile, "not file"},
	{NotWeb, "not web"},
}

func (f Flag) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

func (f Flag) String() string {
	if f == NA {
		return ""
	}
	var parts []string
	rest := f
	for _, n := range names {
		if rest&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(parts, "|")
}
