// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"

	"github.com/nextmn/upf-dataplane/api"
)

type Direction uint8

const (
	Uplink Direction = iota
	Downlink
)

func (d Direction) String() string {
	if d == Downlink {
		return "downlink"
	}
	return "uplink"
}

// Classify returns Downlink when dst is the UPF's own address.
func Classify(dst [4]byte, self [4]byte) Direction {
	if dst == self {
		return Downlink
	}
	return Uplink
}

// Kind is the terminal state of a packet.
type Kind uint8

const (
	OutcomeDrop Kind = iota
	OutcomeForward
	OutcomeBuffer
	OutcomeNotifyCP
	OutcomeDuplicate
	OutcomeError
	NumKinds
)

var kindNames = [NumKinds]string{
	OutcomeDrop:      "drop",
	OutcomeForward:   "forward",
	OutcomeBuffer:    "buffer",
	OutcomeNotifyCP:  "notify-cp",
	OutcomeDuplicate: "duplicate",
	OutcomeError:     "error",
}

// Kinds lists every Kind.
func Kinds() []Kind {
	k := make([]Kind, NumKinds)
	for i := range k {
		k[i] = Kind(i)
	}
	return k
}

func (k Kind) String() string {
	if k < NumKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Reason tells why a packet was not forwarded.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonMalformed
	ReasonBufferTooShort
	ReasonUnmatched
	ReasonMissingFAR
	ReasonApplyDrop
	ReasonActionNotImplemented
	ReasonUnknownAction
	ReasonNextHopUnresolved
	NumReasons
)

var reasonNames = [NumReasons]string{
	ReasonNone:                 "none",
	ReasonMalformed:            "malformed",
	ReasonBufferTooShort:       "buffer-too-short",
	ReasonUnmatched:            "unmatched",
	ReasonMissingFAR:           "missing-far",
	ReasonApplyDrop:            "apply-drop",
	ReasonActionNotImplemented: "action-not-implemented",
	ReasonUnknownAction:        "unknown-action",
	ReasonNextHopUnresolved:    "next-hop-unresolved",
}

func Reasons() []Reason {
	r := make([]Reason, NumReasons)
	for i := range r {
		r[i] = Reason(i)
	}
	return r
}

func (r Reason) String() string {
	if r < NumReasons {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// Outcome is the result of processing one packet.
// SEID, PDRID and FARID are set once the corresponding rule is resolved.
type Outcome struct {
	Kind      Kind
	Reason    Reason
	Direction Direction
	SEID      api.SEID
	PDRID     api.PDRID
	FARID     api.FARID
}

func (o Outcome) String() string {
	if o.Reason == ReasonNone {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
