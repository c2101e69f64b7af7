// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package n4

import (
	"fmt"
	"sync"

	"github.com/nextmn/upf-dataplane/api"
)

// AssociationsMap tracks the PFCP associations of the UP function and the
// sessions each one owns, with the SEID allocated by the CP function.
type AssociationsMap struct {
	associations   map[string]map[api.SEID]uint64 // node ID -> local SEID -> remote SEID
	owners         map[api.SEID]string
	muAssociations sync.RWMutex
}

func NewAssociationsMap() *AssociationsMap {
	return &AssociationsMap{
		associations: make(map[string]map[api.SEID]uint64),
		owners:       make(map[api.SEID]string),
	}
}

// Setup installs an association with nid. When one already exists, it is
// replaced and the local SEIDs of its sessions are returned.
func (a *AssociationsMap) Setup(nid string) []api.SEID {
	a.muAssociations.Lock()
	defer a.muAssociations.Unlock()
	stale := a.release(nid)
	a.associations[nid] = make(map[api.SEID]uint64)
	return stale
}

// Release removes the association with nid and returns the local SEIDs of its sessions.
func (a *AssociationsMap) Release(nid string) ([]api.SEID, error) {
	a.muAssociations.Lock()
	defer a.muAssociations.Unlock()
	if _, exists := a.associations[nid]; !exists {
		return nil, fmt.Errorf("no association with node %s", nid)
	}
	return a.release(nid), nil
}

func (a *AssociationsMap) release(nid string) []api.SEID {
	sessions, exists := a.associations[nid]
	if !exists {
		return nil
	}
	seids := make([]api.SEID, 0, len(sessions))
	for seid := range sessions {
		seids = append(seids, seid)
		delete(a.owners, seid)
	}
	delete(a.associations, nid)
	return seids
}

// Returns true if an association with nid is established
func (a *AssociationsMap) Exists(nid string) bool {
	a.muAssociations.RLock()
	defer a.muAssociations.RUnlock()
	_, exists := a.associations[nid]
	return exists
}

func (a *AssociationsMap) Len() int {
	a.muAssociations.RLock()
	defer a.muAssociations.RUnlock()
	return len(a.associations)
}

// AddSession attaches a session to the association with nid.
func (a *AssociationsMap) AddSession(nid string, local api.SEID, remote uint64) error {
	a.muAssociations.Lock()
	defer a.muAssociations.Unlock()
	sessions, exists := a.associations[nid]
	if !exists {
		return fmt.Errorf("no association with node %s", nid)
	}
	sessions[local] = remote
	a.owners[local] = nid
	return nil
}

// Session returns the owner and the remote SEID of a local session.
func (a *AssociationsMap) Session(local api.SEID) (nid string, remote uint64, ok bool) {
	a.muAssociations.RLock()
	defer a.muAssociations.RUnlock()
	nid, ok = a.owners[local]
	if !ok {
		return "", 0, false
	}
	return nid, a.associations[nid][local], true
}

// SetRemoteSEID records a new CP F-SEID for a local session.
func (a *AssociationsMap) SetRemoteSEID(local api.SEID, remote uint64) {
	a.muAssociations.Lock()
	defer a.muAssociations.Unlock()
	if nid, ok := a.owners[local]; ok {
		a.associations[nid][local] = remote
	}
}

func (a *AssociationsMap) RemoveSession(local api.SEID) {
	a.muAssociations.Lock()
	defer a.muAssociations.Unlock()
	if nid, ok := a.owners[local]; ok {
		delete(a.associations[nid], local)
		delete(a.owners, local)
	}
}
