// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package xfer

import (
	"io"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Progress logs how far a transfer has got, at most once per interval.
type Progress struct {
	Name     string
	Total    int64 //-1 if unknown
	Interval time.Duration
	last     time.Time
}

// Update is a progress callback: written bytes so far, total (or -1).
func (p *Progress) Update(written, total int64) {
	if total >= 0 {
		p.Total = total
	}
	interval := p.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}
	now := time.Now()
	if now.Sub(p.last) < interval && (p.Total < 0 || written < p.Total) {
		return
	}
	p.last = now
	if p.Total > 0 {
		log.Logf("%s: %d/%d bytes (%d%%)", p.Name, written, p.Total, written*100/p.Total)
	} else {
		log.Logf("%s: %d bytes", p.Name, written)
	}
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
