// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package release

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema"
)

// Manifest is the subset of the feed's latest-release document that is
// used. cmd/util/release-schema generates a starting point for
// manifest.schema.json from it.
type Manifest struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name,omitempty"`
	Prerelease bool    `json:"prerelease,omitempty"`
	Assets     []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size,omitempty"`
	ContentType        string `json:"content_type,omitempty"`
}

// Find returns the asset whose name is exactly name.
func (m *Manifest) Find(name string) (Asset, bool) {
	for _, a := range m.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

//go:embed manifest.schema.json
var schemaJSON []byte

// matches $id in the schema
const schemaURL = "https://github.com/rmfalco89/esp-project-template/release-manifest.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func manifestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// ParseManifest validates data against the embedded schema and decodes it.
func ParseManifest(data []byte) (*Manifest, error) {
	s, err := manifestSchema()
	if err != nil {
		return nil, fmt.Errorf("manifest schema: %w", err)
	}
	if err := s.Validate(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}
