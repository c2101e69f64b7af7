// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package n4

import (
	"sync"

	"github.com/nextmn/upf-dataplane/api"
)

// PoolFirstSEID is above every TEID, so that pool allocated SEIDs never
// collide with SEIDs derived from an uplink F-TEID.
const PoolFirstSEID api.SEID = 1 << 32

// SessionIDPool is a generator of session IDs
type SessionIDPool struct {
	currentSessionID api.SEID
	muSessionID      sync.Mutex
}

// Create a SessionIDPool
func NewSessionIDPool(first api.SEID) *SessionIDPool {
	return &SessionIDPool{
		currentSessionID: first,
	}
}

// Get next id available in SessionIDPool. Zero is never returned.
func (pool *SessionIDPool) GetNext() api.SEID {
	pool.muSessionID.Lock()
	defer pool.muSessionID.Unlock()
	if pool.currentSessionID == 0 {
		pool.currentSessionID = PoolFirstSEID
	}
	id := pool.currentSessionID
	pool.currentSessionID = id + 1
	return id
}
