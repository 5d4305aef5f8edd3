// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package release queries the release feed for the latest firmware release
// and compares versions.
package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Info describes the latest release. DownloadURL is empty when there is
// nothing to download.
type Info struct {
	Version     string
	DownloadURL string
	Size        int64 //0 if unknown
}

// NoUpdate is returned on every failure.
var NoUpdate = Info{Version: "0.0.0"}

func (i Info) Available() bool { return i.DownloadURL != "" }

const (
	DefaultTimeout = 20 * time.Second
	maxManifest    = 4 << 20
	acceptHeader   = "application/vnd.github.v3+json"
)

// Client fetches release manifests. The zero value is usable.
type Client struct {
	HTTP *http.Client
	// Feed, if set, is called before and after the request; the device
	// watchdog must not expire while waiting on the network.
	Feed func()
}

var DefaultClient = &Client{}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) feed() {
	if c.Feed != nil {
		c.Feed()
	}
}

// LatestURL returns the latest-release endpoint for repo ("owner/name").
func LatestURL(base, repo string) (string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("repo %q: want owner/name", repo)
	}
	return strings.TrimSuffix(base, "/") + "/repos/" + url.PathEscape(parts[0]) + "/" +
		url.PathEscape(parts[1]) + "/releases/latest", nil
}

// FetchLatest uses DefaultClient.
func FetchLatest(ctx context.Context, base, repo, token, asset string) Info {
	return DefaultClient.FetchLatest(ctx, base, repo, token, asset)
}

// FetchLatest asks the feed for the latest release of repo and returns its
// tag and the download url of the asset named asset. Any failure returns
// NoUpdate and is only logged.
func (c *Client) FetchLatest(ctx context.Context, base, repo, token, asset string) Info {
	c.feed()
	defer c.feed()
	m, err := c.fetch(ctx, base, repo, token)
	if err != nil {
		log.Logf("release feed: %s", err)
		return NoUpdate
	}
	a, ok := m.Find(asset)
	if !ok {
		log.Logf("release %s has no asset named %s", m.TagName, asset)
		return NoUpdate
	}
	return Info{Version: m.TagName, DownloadURL: a.BrowserDownloadURL, Size: a.Size}
}

func (c *Client) fetch(ctx context.Context, base, repo, token string) (*Manifest, error) {
	u, err := LatestURL(base, repo)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptHeader)
	// no header without a token, so public feeds still answer; the empty
	// token 401 hint below only shows for private feeds
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	log.Logf("requesting %s", u)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		if token == "" {
			log.Msgf("release feed: got 401 Unauthorized and the auth token is empty. Check the device configuration.")
		} else {
			log.Msgf("release feed: got 401 Unauthorized. Check that the auth token is valid and not expired.")
		}
		return nil, fmt.Errorf("unauthorized")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: status %s", u, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifest))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}
