// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package session

import (
	"fmt"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/pfcprules"
)

// Tx is a set of changes to the rules of one session.
// Changes become visible to readers all at once when the Tx is committed.
type Tx struct {
	seid  api.SEID
	slots []Slot
	fars  map[api.FARID]pfcprules.FAR
}

func newTx(seid api.SEID, r *Rules) *Tx {
	tx := &Tx{
		seid:  seid,
		slots: make([]Slot, len(r.slots)),
		fars:  make(map[api.FARID]pfcprules.FAR, len(r.fars)),
	}
	copy(tx.slots, r.slots)
	for id, far := range r.fars {
		tx.fars[id] = *far
	}
	return tx
}

func (tx *Tx) slotOf(id api.PDRID) int {
	for i := range tx.slots {
		if tx.slots[i].Active && tx.slots[i].PDR.ID == id {
			return i
		}
	}
	return -1
}

// UpsertPDR replaces the PDR with the same ID, or installs it in the lowest free slot.
func (tx *Tx) UpsertPDR(pdr pfcprules.PDR) error {
	if i := tx.slotOf(pdr.ID); i >= 0 {
		tx.slots[i].PDR = pdr
		return nil
	}
	for i := range tx.slots {
		if !tx.slots[i].Active {
			tx.slots[i] = Slot{Active: true, PDR: pdr}
			return nil
		}
	}
	return fmt.Errorf("session %d, PDR %d: %w", tx.seid, pdr.ID, ErrNoFreeSlot)
}

func (tx *Tx) RemovePDR(id api.PDRID) error {
	i := tx.slotOf(id)
	if i < 0 {
		return fmt.Errorf("session %d, PDR %d: %w", tx.seid, id, ErrPDRNotFound)
	}
	tx.slots[i] = Slot{}
	return nil
}

func (tx *Tx) PDR(id api.PDRID) (pfcprules.PDR, error) {
	i := tx.slotOf(id)
	if i < 0 {
		return pfcprules.PDR{}, fmt.Errorf("session %d, PDR %d: %w", tx.seid, id, ErrPDRNotFound)
	}
	return tx.slots[i].PDR, nil
}

func (tx *Tx) UpsertFAR(far pfcprules.FAR) error {
	tx.fars[far.ID] = far
	return nil
}

// RemoveFAR fails with ErrFARInUse while an active PDR references the FAR.
func (tx *Tx) RemoveFAR(id api.FARID) error {
	if _, ok := tx.fars[id]; !ok {
		return fmt.Errorf("session %d, FAR %d: %w", tx.seid, id, ErrFARNotFound)
	}
	for i := range tx.slots {
		if tx.slots[i].Active && tx.slots[i].PDR.HasFAR && tx.slots[i].PDR.FARID == id {
			return fmt.Errorf("session %d, FAR %d referenced by PDR %d: %w", tx.seid, id, tx.slots[i].PDR.ID, ErrFARInUse)
		}
	}
	delete(tx.fars, id)
	return nil
}

func (tx *Tx) FAR(id api.FARID) (pfcprules.FAR, error) {
	far, ok := tx.fars[id]
	if !ok {
		return pfcprules.FAR{}, fmt.Errorf("session %d, FAR %d: %w", tx.seid, id, ErrFARNotFound)
	}
	return far, nil
}

// commit builds the snapshot described by tx.
func (tx *Tx) commit() *Rules {
	r := &Rules{
		slots: tx.slots,
		fars:  make(map[api.FARID]*pfcprules.FAR, len(tx.fars)),
	}
	for id, far := range tx.fars {
		far := far
		r.fars[id] = &far
	}
	for i := range r.slots {
		s := &r.slots[i]
		s.far = nil
		if s.Active && s.PDR.HasFAR {
			s.far = r.fars[s.PDR.FARID]
		}
	}
	return r
}
