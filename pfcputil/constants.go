// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcputil

const (
	// TODO: detect MTU of the N4 interface instead of using DEFAULT_MTU
	DEFAULT_MTU = 1500

	// The UDP Destination Port number for a Request message shall be 8805.
	// It is the registered port number for PFCP.
	PFCP_PORT = 8805
)
