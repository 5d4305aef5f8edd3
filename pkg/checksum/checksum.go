// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package checksum computes the integrity word stored in front of each
// persistent record.
//
// The algorithm is a plain byte sum modulo 2^32. It catches any single-byte
// corruption but not two corruptions that cancel out (one byte +k, another
// -k). Records written by earlier firmware use it, so it stays.
package checksum

// Size is the number of bytes the checksum occupies in storage.
const Size = 4

// Sum adds up all bytes of b with uint32 wraparound.
func Sum(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return sum
}

// Verify recomputes the sum of b and compares it with want.
func Verify(b []byte, want uint32) bool {
	return Sum(b) == want
}
