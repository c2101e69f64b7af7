// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package session

import (
	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/pfcprules"
)

// Slot is one PDR position of a session. Inactive slots are free.
type Slot struct {
	Active bool
	PDR    pfcprules.PDR
	far    *pfcprules.FAR
}

// FAR returns the FAR referenced by the slot's PDR, or nil.
func (s *Slot) FAR() *pfcprules.FAR {
	return s.far
}

// Rules is an immutable snapshot of the PDRs and FARs of a session.
// A new snapshot is published on every modification.
type Rules struct {
	slots []Slot
	fars  map[api.FARID]*pfcprules.FAR
}

func emptyRules(capacity int) *Rules {
	return &Rules{
		slots: make([]Slot, capacity),
		fars:  make(map[api.FARID]*pfcprules.FAR),
	}
}

// Slots returns the slot array. It must not be modified.
func (r *Rules) Slots() []Slot {
	return r.slots
}

// FirstActivePDR scans slots in order and returns the first active one.
func (r *Rules) FirstActivePDR() (api.Rule, bool) {
	for i := range r.slots {
		if r.slots[i].Active {
			return api.Rule{PDR: &r.slots[i].PDR, FAR: r.slots[i].far}, true
		}
	}
	return api.Rule{}, false
}

func (r *Rules) PDR(id api.PDRID) (api.Rule, bool) {
	for i := range r.slots {
		if r.slots[i].Active && r.slots[i].PDR.ID == id {
			return api.Rule{PDR: &r.slots[i].PDR, FAR: r.slots[i].far}, true
		}
	}
	return api.Rule{}, false
}

func (r *Rules) FAR(id api.FARID) (*pfcprules.FAR, bool) {
	far, ok := r.fars[id]
	return far, ok
}

// FARs returns the FARs of the snapshot, unordered.
func (r *Rules) FARs() []*pfcprules.FAR {
	fars := make([]*pfcprules.FAR, 0, len(r.fars))
	for _, far := range r.fars {
		fars = append(fars, far)
	}
	return fars
}

func (r *Rules) ActivePDRs() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].Active {
			n++
		}
	}
	return n
}
