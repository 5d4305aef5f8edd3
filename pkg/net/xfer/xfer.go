// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package xfer opens firmware images for streaming, over http(s) or from the
// local fs, retrying transient failures and transparently decompressing xz.
package xfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Stream is an open image. Size is -1 when unknown, which is always the
// case for compressed images.
type Stream struct {
	io.Reader
	Size       int64
	Compressed bool
	closer     io.Closer
}

func (s *Stream) Close() error { return s.closer.Close() }

// Getter opens streams. The zero value retries 3 times starting at 2s.
type Getter struct {
	HTTP    *http.Client
	Retries int
	Backoff time.Duration
	// Feed, if set, is called while waiting between attempts and on every
	// read from the returned stream.
	Feed func()
}

var DefaultGetter = &Getter{}

func (g *Getter) client() *http.Client {
	if g.HTTP != nil {
		return g.HTTP
	}
	//no overall timeout: the caller's context bounds a download
	return &http.Client{}
}

func (g *Getter) feed() {
	if g.Feed != nil {
		g.Feed()
	}
}

// Open retrieves src, either on local fs or via http/https.
func (g *Getter) Open(ctx context.Context, src string) (*Stream, error) {
	var (
		rc   io.ReadCloser
		size int64 = -1
		err  error
	)
	if isURL(src) {
		rc, size, err = g.getWithRetry(ctx, src)
	} else {
		var f *os.File
		f, err = os.Open(src)
		if err == nil {
			rc = f
			if fi, serr := f.Stat(); serr == nil {
				size = fi.Size()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	s, err := wrap(rc, size)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	if g.Feed != nil {
		s.Reader = &feedReader{r: s.Reader, feed: g.Feed}
	}
	return s, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// wrap detects xz by its magic rather than by name; release assets are not
// required to carry an extension.
func wrap(rc io.ReadCloser, size int64) (*Stream, error) {
	br := bufio.NewReader(rc)
	hdr, _ := br.Peek(xz.HeaderLen)
	if len(hdr) == xz.HeaderLen && xz.ValidHeader(hdr) {
		zr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		return &Stream{Reader: zr, Size: -1, Compressed: true, closer: rc}, nil
	}
	return &Stream{Reader: br, Size: size, closer: rc}, nil
}

// transient errors are retried; 4xx is not
type statusError struct {
	url    string
	status string
	code   int
}

func (e *statusError) Error() string { return fmt.Sprintf("get %s: %s", e.url, e.status) }

func (g *Getter) get(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/octet-stream")
	res, err := g.client().Do(req)
	if err != nil {
		return nil, 0, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, 0, &statusError{url: src, status: res.Status, code: res.StatusCode}
	}
	return res.Body, res.ContentLength, nil
}

// like get() but retries with exponential backoff
func (g *Getter) getWithRetry(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	retries := g.Retries
	if retries <= 0 {
		retries = 3
	}
	sleepTime := g.Backoff
	if sleepTime <= 0 {
		sleepTime = 2 * time.Second
	}
	var err error
	for attempt := 1; ; attempt++ {
		log.Logf("downloading %s", src)
		var rc io.ReadCloser
		var size int64
		rc, size, err = g.get(ctx, src)
		if err == nil {
			return rc, size, nil
		}
		log.Logf("retrieval error %s", err)
		if se, ok := err.(*statusError); ok && se.code < 500 {
			return nil, 0, err
		}
		if attempt > retries || ctx.Err() != nil {
			break
		}
		log.Logf("sleep %s, retry", sleepTime)
		if serr := g.sleep(ctx, sleepTime); serr != nil {
			break
		}
		sleepTime *= 2
	}
	return nil, 0, fmt.Errorf("gave up retrieving %s: %w", src, err)
}

// sleep in short steps so the watchdog keeps being fed
func (g *Getter) sleep(ctx context.Context, d time.Duration) error {
	const step = time.Second
	for d > 0 {
		s := step
		if d < s {
			s = d
		}
		g.feed()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s):
		}
		d -= s
	}
	g.feed()
	return nil
}

type feedReader struct {
	r    io.Reader
	feed func()
}

func (f *feedReader) Read(p []byte) (int, error) {
	f.feed()
	return f.r.Read(p)
}
