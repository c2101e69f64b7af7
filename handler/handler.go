// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package handler is the per-packet entry point called by the packet I/O layer.
package handler

import (
	"github.com/nextmn/upf-dataplane/engine"
	"github.com/nextmn/upf-dataplane/pktbuf"
)

// Action is the signal returned to the packet I/O layer.
type Action uint8

const (
	ActionDrop Action = iota
	ActionForward
)

func (a Action) String() string {
	if a == ActionForward {
		return "FORWARD"
	}
	return "DROP"
}

// Meta is the per-packet metadata exchanged with the packet I/O layer.
type Meta struct {
	// Port is the ingress port as given by the I/O layer.
	Port    uint16
	Action  Action
	Outcome engine.Outcome
}

type Processor interface {
	Process(buf *pktbuf.Buffer) engine.Outcome
}

type Handler struct {
	processor Processor
}

func New(p Processor) *Handler {
	return &Handler{processor: p}
}

// Handle processes one packet. Only a FORWARD outcome forwards the packet;
// every other outcome drops it.
func (h *Handler) Handle(buf *pktbuf.Buffer, meta *Meta) Action {
	meta.Action = ActionDrop
	meta.Outcome = h.processor.Process(buf)
	if meta.Outcome.Kind == engine.OutcomeForward {
		meta.Action = ActionForward
	}
	return meta.Action
}
