// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package api

import "github.com/nextmn/upf-dataplane/pfcprules"

type SEID = uint64
type PDRID = uint16
type FARID = uint32

// Rule is a PDR together with the FAR it references.
// FAR is nil when the PDR references no installed FAR.
// Both point into an immutable snapshot and must not be modified.
type Rule struct {
	PDR *pfcprules.PDR
	FAR *pfcprules.FAR
}

type Session interface {
	SEID() SEID
	// FirstActivePDR returns the first active PDR in slot order.
	FirstActivePDR() (Rule, bool)
}

// SessionTable is the read side of the session table used on the packet path.
type SessionTable interface {
	FindBySEID(seid SEID) (Session, bool)
	FindPDRByUEAddress(addr [4]byte) (Rule, bool)
}
