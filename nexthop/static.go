// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package nexthop resolves the link-layer destination of decapsulated packets.
package nexthop

// Static sends every packet to the same MAC address.
type Static struct {
	MAC [6]byte
}

func (s Static) Resolve(dst [4]byte) ([6]byte, bool) {
	return s.MAC, true
}
