// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"log"
	"strings"

	"github.com/rmfalco89/esp-project-template/pkg/log/flags"
)

// AdaptStdlog sends output of a stdlib *log.Logger (nil for the standard
// one) into this package. Time flags on the stdlib logger are cleared, since
// every entry carries its own timestamp.
func AdaptStdlog(logger *log.Logger, level flags.Flag) {
	sa := &stdAdapter{level: level}
	if logger == nil {
		log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime | log.Lmicroseconds))
		log.SetOutput(sa)
		return
	}
	logger.SetFlags(logger.Flags() &^ (log.Ldate | log.Ltime | log.Lmicroseconds))
	logger.SetOutput(sa)
}

// StdLogger returns a *log.Logger writing into this package, for libraries
// that take one (net/http.Server.ErrorLog).
func StdLogger(prefix string, level flags.Flag) *log.Logger {
	return log.New(&stdAdapter{level: level}, prefix, 0)
}

type stdAdapter struct {
	level flags.Flag
}

func (sa *stdAdapter) Write(b []byte) (int, error) {
	FlaggedLogf(sa.level, "%s", strings.TrimRight(string(b), "\n"))
	return len(b), nil
}
