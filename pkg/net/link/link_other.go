// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build !linux
// +build !linux

package link

import (
	"net"
)

// Query reads interface state from the standard library.
func Query(iface string) (Status, error) {
	st := Status{Iface: iface}
	netif, err := net.InterfaceByName(iface)
	if err != nil {
		return st, err
	}
	st.Up = netif.Flags&net.FlagUp != 0
	addrs, err := netif.Addrs()
	if err != nil {
		return st, err
	}
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.String())
		if err == nil && ip.To4() != nil {
			st.IPv4 = append(st.IPv4, a.String())
		}
	}
	return st, nil
}
