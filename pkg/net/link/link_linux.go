// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package link

import (
	"net"

	"github.com/vishvananda/netlink"
)

// Query reads interface state over netlink.
func Query(iface string) (Status, error) {
	st := Status{Iface: iface}
	lnk, err := netlink.LinkByName(iface)
	if err != nil {
		return st, err
	}
	attrs := lnk.Attrs()
	st.Up = attrs.OperState == netlink.OperUp || attrs.Flags&net.FlagUp != 0
	addrs, err := netlink.AddrList(lnk, netlink.FAMILY_V4)
	if err != nil {
		return st, err
	}
	for _, a := range addrs {
		if a.IPNet != nil {
			st.IPv4 = append(st.IPv4, a.IPNet.String())
		}
	}
	return st, nil
}
