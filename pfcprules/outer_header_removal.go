// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import "fmt"

// OuterHeaderRemoval is the decapsulation policy applied to a matched packet.
// The zero value means no outer header is removed.
type OuterHeaderRemoval uint8

const (
	OuterHeaderRemovalNone OuterHeaderRemoval = iota
	OuterHeaderRemovalGTPUUDPIPv4
	OuterHeaderRemovalGTPUUDPIPv6
	OuterHeaderRemovalUDPIPv4
	OuterHeaderRemovalUDPIPv6
	OuterHeaderRemovalIPv4
	OuterHeaderRemovalIPv6
	OuterHeaderRemovalGTPUUDPIP
	OuterHeaderRemovalVLANSTag
	OuterHeaderRemovalSTagCTag
)

var outerHeaderRemovalNames = [...]string{
	OuterHeaderRemovalNone:        "none",
	OuterHeaderRemovalGTPUUDPIPv4: "GTP-U/UDP/IPv4",
	OuterHeaderRemovalGTPUUDPIPv6: "GTP-U/UDP/IPv6",
	OuterHeaderRemovalUDPIPv4:     "UDP/IPv4",
	OuterHeaderRemovalUDPIPv6:     "UDP/IPv6",
	OuterHeaderRemovalIPv4:        "IPv4",
	OuterHeaderRemovalIPv6:        "IPv6",
	OuterHeaderRemovalGTPUUDPIP:   "GTP-U/UDP/IP",
	OuterHeaderRemovalVLANSTag:    "VLAN S-TAG",
	OuterHeaderRemovalSTagCTag:    "S-TAG and C-TAG",
}

func (o OuterHeaderRemoval) String() string {
	if int(o) < len(outerHeaderRemovalNames) {
		return outerHeaderRemovalNames[o]
	}
	return fmt.Sprintf("OuterHeaderRemoval(%d)", uint8(o))
}

// OuterHeaderRemovalFromDescription maps the Outer Header Removal Description
// field (3GPP TS 29.244, 8.2.64) to an OuterHeaderRemoval.
func OuterHeaderRemovalFromDescription(d uint8) (OuterHeaderRemoval, error) {
	if d > 8 {
		return OuterHeaderRemovalNone, fmt.Errorf("outer header removal description %d is reserved", d)
	}
	return OuterHeaderRemoval(d + 1), nil
}

// Description returns the wire value of o. It fails for OuterHeaderRemovalNone,
// which is expressed by omitting the IE.
func (o OuterHeaderRemoval) Description() (uint8, error) {
	if o == OuterHeaderRemovalNone || int(o) >= len(outerHeaderRemovalNames) {
		return 0, fmt.Errorf("%s has no description value", o)
	}
	return uint8(o) - 1, nil
}

func ParseOuterHeaderRemoval(s string) (OuterHeaderRemoval, error) {
	for i, name := range outerHeaderRemovalNames {
		if name == s {
			return OuterHeaderRemoval(i), nil
		}
	}
	return OuterHeaderRemovalNone, fmt.Errorf("unknown outer header removal %q", s)
}

func (o *OuterHeaderRemoval) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseOuterHeaderRemoval(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o OuterHeaderRemoval) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}
