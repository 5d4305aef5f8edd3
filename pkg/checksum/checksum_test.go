// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package checksum

import (
	"testing"
)

func TestSum(t *testing.T) {
	big := make([]byte, 1<<25)
	for i := range big {
		big[i] = 0xff
	}
	for i, td := range []struct {
		in   []byte
		want uint32
	}{
		{in: nil, want: 0},
		{in: []byte{1, 2, 3}, want: 6},
		{in: []byte{0xff, 0xff}, want: 0x1fe},
		{in: []byte("Home"), want: 'H' + 'o' + 'm' + 'e'},
		// 2^25 * 255 overflows uint32
		{in: big, want: uint32((uint64(1<<25) * 255) % (1 << 32))},
	} {
		got := Sum(td.in)
		if got != td.want {
			t.Errorf("%d: want %d, got %d", i, td.want, got)
		}
	}
}

func TestVerifyDetectsSingleByteFlip(t *testing.T) {
	rec := []byte("ssid-and-password-and-token")
	sum := Sum(rec)
	if !Verify(rec, sum) {
		t.Fatal("intact record rejected")
	}
	for i := range rec {
		mod := append([]byte(nil), rec...)
		mod[i] ^= 0x10
		if Verify(mod, sum) {
			t.Errorf("flip at %d not detected", i)
		}
	}
}

// Compensating corruption is a known gap of the additive sum.
func TestVerifyCompensatingCorruption(t *testing.T) {
	rec := []byte{10, 20, 30, 40}
	sum := Sum(rec)
	rec[0] += 5
	rec[3] -= 5
	if !Verify(rec, sum) {
		t.Errorf("additive sum unexpectedly caught compensating corruption")
	}
	rec[1], rec[2] = rec[2], rec[1]
	if !Verify(rec, sum) {
		t.Errorf("additive sum unexpectedly order sensitive")
	}
}
