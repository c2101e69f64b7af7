// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package session

import (
	"sync"
	"sync/atomic"

	"github.com/nextmn/upf-dataplane/api"
)

// Session holds the rules of one PFCP session.
// Readers load the current snapshot without locking; writers are serialized.
type Session struct {
	seid     api.SEID
	atomicMu sync.Mutex // serializes modifications
	rules    atomic.Pointer[Rules]
}

func newSession(seid api.SEID, capacity int) *Session {
	s := &Session{seid: seid}
	s.rules.Store(emptyRules(capacity))
	return s
}

func (s *Session) SEID() api.SEID {
	return s.seid
}

// Rules returns the current snapshot.
func (s *Session) Rules() *Rules {
	return s.rules.Load()
}

func (s *Session) FirstActivePDR() (api.Rule, bool) {
	return s.rules.Load().FirstActivePDR()
}

// Modify runs f on a copy of the current rules and publishes the result if f succeeds.
// When f returns an error, the session is left unchanged.
func (s *Session) Modify(f func(tx *Tx) error) error {
	s.atomicMu.Lock()
	defer s.atomicMu.Unlock()
	tx := newTx(s.seid, s.rules.Load())
	if err := f(tx); err != nil {
		return err
	}
	s.rules.Store(tx.commit())
	return nil
}
