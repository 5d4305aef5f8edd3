// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Release-schema generates a json schema for the release manifest read by
// github.com/rmfalco89/esp-project-template/pkg/release.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/jsonschema"

	"github.com/rmfalco89/esp-project-template/pkg/release"
)

const Warn = `WARNING:
	the embedded pkg/release/manifest.schema.json is hand-edited from this
	output; the feed sends many more properties than the manifest decodes,
	so additionalProperties must stay allowed and only the fields the
	updater relies on are required
`

func main() {
	fmt.Fprint(os.Stderr, Warn)
	r := jsonschema.Reflector{AllowAdditionalProperties: true}
	schem := r.Reflect(&release.Manifest{})
	data, err := json.MarshalIndent(schem, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", data)
}
