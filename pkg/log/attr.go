// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"errors"
	"sync"
)

var (
	attrs   = map[string]interface{}{}
	attrMtx sync.Mutex
)

var ErrAttrExists = errors.New("an attr with this name already exists")

// GetAttr returns an attribute registered by a sink, such as the log file
// name shown on the status page.
func GetAttr(key string) (interface{}, bool) {
	attrMtx.Lock()
	defer attrMtx.Unlock()
	v, ok := attrs[key]
	return v, ok
}

// SetAttr registers an attribute. Names are unique per stack.
func SetAttr(key string, val interface{}) error {
	attrMtx.Lock()
	defer attrMtx.Unlock()
	if _, exists := attrs[key]; exists {
		return ErrAttrExists
	}
	attrs[key] = val
	return nil
}

func ClearAttrs() {
	attrMtx.Lock()
	defer attrMtx.Unlock()
	for key := range attrs {
		delete(attrs, key)
	}
}
