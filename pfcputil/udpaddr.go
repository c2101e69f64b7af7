// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcputil

import (
	"net"
	"strconv"
)

// CreateUDPAddr returns "ip:port", with brackets around IPv6 addresses.
func CreateUDPAddr(ipaddr string, port int) string {
	return net.JoinHostPort(ipaddr, strconv.Itoa(port))
}
