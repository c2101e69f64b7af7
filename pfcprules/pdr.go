// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import (
	"fmt"
	"net/netip"
)

type MatchKind uint8

const (
	// MatchNone never matches a packet.
	MatchNone MatchKind = iota
	// MatchTEID matches uplink traffic by GTP-U tunnel endpoint identifier.
	MatchTEID
	// MatchUEAddress matches downlink traffic by UE IPv4 address.
	MatchUEAddress
)

func (k MatchKind) String() string {
	switch k {
	case MatchNone:
		return "none"
	case MatchTEID:
		return "teid"
	case MatchUEAddress:
		return "ue-address"
	default:
		return fmt.Sprintf("MatchKind(%d)", uint8(k))
	}
}

// Match is the detection criterion of a PDR. Only the field selected by Kind is meaningful.
type Match struct {
	Kind      MatchKind
	TEID      uint32
	UEAddress [4]byte
}

func TEIDMatch(teid uint32) Match {
	return Match{Kind: MatchTEID, TEID: teid}
}

func UEAddressMatch(addr [4]byte) Match {
	return Match{Kind: MatchUEAddress, UEAddress: addr}
}

func (m Match) String() string {
	switch m.Kind {
	case MatchTEID:
		return fmt.Sprintf("teid=%d", m.TEID)
	case MatchUEAddress:
		return "ue=" + netip.AddrFrom4(m.UEAddress).String()
	default:
		return m.Kind.String()
	}
}

// PDR is a Packet Detection Rule. HasFAR is false when the rule was
// installed without a FAR ID; such a rule always resolves to a drop.
type PDR struct {
	ID                 uint16
	Precedence         uint32
	Match              Match
	OuterHeaderRemoval OuterHeaderRemoval
	FARID              uint32
	HasFAR             bool
}

// NewPDR returns a PDR referencing FAR farID.
func NewPDR(id uint16, match Match, ohr OuterHeaderRemoval, farID uint32) PDR {
	return PDR{
		ID:                 id,
		Match:              match,
		OuterHeaderRemoval: ohr,
		FARID:              farID,
		HasFAR:             true,
	}
}

func (pdr PDR) String() string {
	far := "none"
	if pdr.HasFAR {
		far = fmt.Sprintf("%d", pdr.FARID)
	}
	return fmt.Sprintf("PDR %d (%s, ohr=%s, far=%s)", pdr.ID, pdr.Match, pdr.OuterHeaderRemoval, far)
}
