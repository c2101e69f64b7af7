// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/pfcprules"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPDR is the number of PDR slots of a session when none is configured.
const DefaultMaxPDR = 16

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrPDRNotFound     = errors.New("PDR not found")
	ErrFARNotFound     = errors.New("FAR not found")
	ErrFARInUse        = errors.New("FAR is referenced by an active PDR")
	ErrNoFreeSlot      = errors.New("no free PDR slot")
)

type sessionsMapInternal = map[api.SEID]*Session

// Table maps SEIDs to sessions. It is safe for concurrent use.
// Lookups hold the read lock for a single map access.
type Table struct {
	mu       sync.RWMutex
	sessions sessionsMapInternal
	maxPDR   int
}

// NewTable creates a Table whose sessions have maxPDR PDR slots each.
func NewTable(maxPDR int) *Table {
	if maxPDR <= 0 {
		maxPDR = DefaultMaxPDR
	}
	return &Table{
		sessions: make(sessionsMapInternal),
		maxPDR:   maxPDR,
	}
}

func (t *Table) MaxPDR() int {
	return t.maxPDR
}

func (t *Table) CreateSession(seid api.SEID) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[seid]; exists {
		return nil, fmt.Errorf("session %d: %w", seid, ErrSessionExists)
	}
	s := newSession(seid, t.maxPDR)
	t.sessions[seid] = s
	return s, nil
}

// DeleteSession removes a session. Readers holding the session keep a valid
// snapshot until they drop it.
func (t *Table) DeleteSession(seid api.SEID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[seid]; !exists {
		return fmt.Errorf("session %d: %w", seid, ErrSessionNotFound)
	}
	delete(t.sessions, seid)
	return nil
}

// Session returns the session identified by seid.
func (t *Table) Session(seid api.SEID) (*Session, bool) {
	t.mu.RLock()
	s, ok := t.sessions[seid]
	t.mu.RUnlock()
	return s, ok
}

func (t *Table) FindBySEID(seid api.SEID) (api.Session, bool) {
	s, ok := t.Session(seid)
	if !ok {
		return nil, false
	}
	return s, true
}

// FindPDRByUEAddress is the downlink lookup. There is no index from UE
// address to session yet, so it never finds a rule.
func (t *Table) FindPDRByUEAddress(addr [4]byte) (api.Rule, bool) {
	return api.Rule{}, false
}

// Modify applies f atomically to the rules of session seid.
func (t *Table) Modify(seid api.SEID, f func(tx *Tx) error) error {
	s, ok := t.Session(seid)
	if !ok {
		return fmt.Errorf("session %d: %w", seid, ErrSessionNotFound)
	}
	return s.Modify(f)
}

func (t *Table) UpsertPDR(seid api.SEID, pdr pfcprules.PDR) error {
	return t.Modify(seid, func(tx *Tx) error { return tx.UpsertPDR(pdr) })
}

func (t *Table) RemovePDR(seid api.SEID, id api.PDRID) error {
	return t.Modify(seid, func(tx *Tx) error { return tx.RemovePDR(id) })
}

func (t *Table) UpsertFAR(seid api.SEID, far pfcprules.FAR) error {
	return t.Modify(seid, func(tx *Tx) error { return tx.UpsertFAR(far) })
}

func (t *Table) RemoveFAR(seid api.SEID, id api.FARID) error {
	return t.Modify(seid, func(tx *Tx) error { return tx.RemoveFAR(id) })
}

// Sessions returns the SEIDs of all sessions, sorted.
func (t *Table) Sessions() []api.SEID {
	t.mu.RLock()
	seids := make([]api.SEID, 0, len(t.sessions))
	for seid := range t.sessions {
		seids = append(seids, seid)
	}
	t.mu.RUnlock()
	sort.Slice(seids, func(i, j int) bool { return seids[i] < seids[j] })
	return seids
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// LogRules logs the rules of every session at debug level.
func (t *Table) LogRules(logger logrus.FieldLogger) {
	for _, seid := range t.Sessions() {
		s, ok := t.Session(seid)
		if !ok {
			continue
		}
		rules := s.Rules()
		logger.WithFields(logrus.Fields{"seid": seid, "active-pdrs": rules.ActivePDRs()}).Debug("PFCP Session")
		for i, slot := range rules.Slots() {
			if !slot.Active {
				continue
			}
			far := "none"
			if slot.FAR() != nil {
				far = slot.FAR().String()
			}
			logger.WithFields(logrus.Fields{"seid": seid, "slot": i, "far": far}).Debug(slot.PDR.String())
		}
	}
}
