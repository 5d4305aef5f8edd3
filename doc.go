// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Subpackages contain fwbootd, a daemon that brings a small networked device
// up from a checksummed configuration store and keeps its firmware current
// from a release feed.
//
// At every boot the device lands in one of two modes:
//
//   - normal: a valid configuration is stored and the previous boot outlived
//     the quick-restart grace window. The network link is brought up, the
//     release feed is polled periodically, and newer firmware is streamed
//     into the image directory, after which the device restarts into it.
//
//   - config: no valid configuration, or the previous boot died within the
//     grace window. The admin portal accepts a configuration (or a firmware
//     upload) and the device restarts once the stored configuration is valid.
//
// The admin portal and a grpc health service share one port in both modes.
// fwbootctl edits the store offline.
//
// Use `mage` to build the binaries and release assets.
package fwboot
