// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package api

// NextHopResolver gives the link-layer address to which a packet for dst is sent.
// Resolve must not block.
type NextHopResolver interface {
	Resolve(dst [4]byte) ([6]byte, bool)
}
