// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import (
	"fmt"
	"net/netip"
)

// OuterHeaderCreation describes the GTP-U/UDP/IPv4 tunnel to build on egress.
type OuterHeaderCreation struct {
	Description uint16
	TEID        uint32
	IPv4Address [4]byte
	Port        uint16
}

func (ohc OuterHeaderCreation) String() string {
	return fmt.Sprintf("[%s (%d)]", netip.AddrFrom4(ohc.IPv4Address), ohc.TEID)
}

// ForwardingParameters are carried by a FAR whose action is FORWARD.
type ForwardingParameters struct {
	DestinationInterface uint8
	OuterHeaderCreation  *OuterHeaderCreation
}

// FAR is a Forwarding Action Rule.
type FAR struct {
	ID                   uint32
	ApplyAction          ApplyAction
	ForwardingParameters *ForwardingParameters
}

func NewFAR(id uint32, action ApplyAction, fp *ForwardingParameters) FAR {
	return FAR{
		ID:                   id,
		ApplyAction:          action,
		ForwardingParameters: fp,
	}
}

func (far FAR) String() string {
	ohc := "No"
	if far.ForwardingParameters != nil && far.ForwardingParameters.OuterHeaderCreation != nil {
		ohc = far.ForwardingParameters.OuterHeaderCreation.String()
	}
	return fmt.Sprintf("FAR %d (ApplyAction: %s, OHC: %s)", far.ID, far.ApplyAction, ohc)
}
