// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package release

import (
	"strconv"
	"strings"
)

// Version is major.minor.patch. Parsing never fails: a missing or
// unparsable component is 0.
type Version [3]int

// ParseVersion accepts tags such as "1.4.0", "v2.0" or "1.3.9-rc1"
// (patch 9; anything after the leading digits of a component is ignored).
func ParseVersion(s string) Version {
	var v Version
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	for i, part := range strings.SplitN(s, ".", 3) {
		end := 0
		for end < len(part) && part[end] >= '0' && part[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(part[:end])
		if err != nil {
			//empty or overflow
			n = 0
		}
		v[i] = n
	}
	return v
}

// Less compares component by component.
func (v Version) Less(o Version) bool {
	for i := range v {
		if v[i] != o[i] {
			return v[i] < o[i]
		}
	}
	return false
}

func (v Version) String() string {
	return strconv.Itoa(v[0]) + "." + strconv.Itoa(v[1]) + "." + strconv.Itoa(v[2])
}

// IsNewer reports whether candidate is strictly greater than current.
func IsNewer(current, candidate string) bool {
	return ParseVersion(current).Less(ParseVersion(candidate))
}
