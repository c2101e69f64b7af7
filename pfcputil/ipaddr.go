// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcputil

import (
	"fmt"
	"net"

	"github.com/wmnsk/go-pfcp/ie"
)

// Returns a NodeID IE from a string address
func CreateNodeID(id string) *ie.IE {
	ip := net.ParseIP(id)
	if ip == nil {
		// Node ID is a FQDN
		return ie.NewNodeID("", "", id)
	}
	if ip.To4() == nil {
		// Node ID is an IPv6 address
		return ie.NewNodeID("", id, "")
	}
	// Node ID is an IPv4 address
	return ie.NewNodeID(id, "", "")
}

// NodeIPv4 returns the IPv4 address carried by a Node ID IE.
// A FQDN is resolved.
func NodeIPv4(nodeID *ie.IE) (net.IP, error) {
	if nodeID == nil || len(nodeID.Payload) == 0 {
		return nil, ie.ErrIENotFound
	}
	id, err := nodeID.NodeID()
	if err != nil {
		return nil, err
	}
	switch nodeID.Payload[0] {
	case ie.NodeIDIPv4Address:
		return net.ParseIP(id).To4(), nil
	case ie.NodeIDFQDN:
		ip4, err := net.ResolveIPAddr("ip4", id)
		if err != nil {
			return nil, err
		}
		return ip4.IP.To4(), nil
	default:
		return nil, fmt.Errorf("node ID %s has no IPv4 address", id)
	}
}
