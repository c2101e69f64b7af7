// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package engine classifies packets against session rules and applies the
// resulting outer header removal and forwarding action.
package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"net/netip"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/gtpu"
	"github.com/nextmn/upf-dataplane/pfcprules"
	"github.com/nextmn/upf-dataplane/pktbuf"
	"github.com/sirupsen/logrus"
)

const (
	ipv4Offset      = gtpu.EthernetHeaderLen
	udpOffset       = ipv4Offset + gtpu.IPv4HeaderLen
	innerIPv4Offset = gtpu.OuterHeaderLen
	ipv4DstOffset   = 16
	ipv4Version     = 4
	ipv4MinIHL      = 5
)

var (
	ErrNoSessionTable = errors.New("session table is required")
	ErrNoNextHop      = errors.New("next hop resolver is required")
)

type Config struct {
	// SelfAddress is the UPF address; packets sent to it are downlink.
	SelfAddress [4]byte
	// LocalMAC is the source address of Ethernet headers built by the engine.
	LocalMAC    [6]byte
	Table       api.SessionTable
	NextHop     api.NextHopResolver
	Diagnostics Diagnostics
	Logger      *logrus.Logger
}

// Engine processes packets. It holds no per-packet state and is safe for
// concurrent use by any number of workers.
type Engine struct {
	self     [4]byte
	localMAC [6]byte
	table    api.SessionTable
	nextHop  api.NextHopResolver
	diag     Diagnostics
	logger   *logrus.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Table == nil {
		return nil, ErrNoSessionTable
	}
	if cfg.NextHop == nil {
		return nil, ErrNoNextHop
	}
	e := &Engine{
		self:     cfg.SelfAddress,
		localMAC: cfg.LocalMAC,
		table:    cfg.Table,
		nextHop:  cfg.NextHop,
		diag:     cfg.Diagnostics,
		logger:   cfg.Logger,
	}
	if e.diag == nil {
		e.diag = Discard{}
	}
	if e.logger == nil {
		e.logger = discardLogger()
	}
	return e, nil
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// Process runs the packet in buf through the pipeline and returns its outcome.
// buf holds an Ethernet frame and is modified in place; the engine keeps no
// reference to it.
func (e *Engine) Process(buf *pktbuf.Buffer) Outcome {
	o := e.process(buf)
	e.diag.Outcome(o)
	return o
}

func (e *Engine) process(buf *pktbuf.Buffer) Outcome {
	pkt := buf.Bytes()
	if len(pkt) < udpOffset ||
		binary.BigEndian.Uint16(pkt[ipv4Offset-2:]) != gtpu.EtherTypeIPv4 ||
		pkt[ipv4Offset]>>4 != ipv4Version ||
		pkt[ipv4Offset]&0x0f < ipv4MinIHL {
		e.diag.Event(EventInfo{Event: EventMalformed})
		return Outcome{Kind: OutcomeDrop, Reason: ReasonMalformed}
	}
	ip := pkt[ipv4Offset:udpOffset]
	var dst [4]byte
	copy(dst[:], ip[ipv4DstOffset:])
	if e.logger.IsLevelEnabled(logrus.DebugLevel) {
		e.logIPv4Header(ip)
	}

	o := Outcome{Direction: Classify(dst, e.self)}
	var rule api.Rule
	var found bool
	var teid uint32
	switch o.Direction {
	case Downlink:
		rule, found = e.table.FindPDRByUEAddress(dst)
	case Uplink:
		// The session is looked up with the TEID as SEID: the N4 server
		// allocates SEIDs so that both are equal.
		if ip[0]&0x0f != ipv4MinIHL {
			e.diag.Event(EventInfo{Event: EventMalformed, Direction: o.Direction})
			o.Kind, o.Reason = OutcomeDrop, ReasonMalformed
			return o
		}
		var ok bool
		teid, ok = gtpu.ExtractTEID(pkt, udpOffset)
		if ok {
			if e.logger.IsLevelEnabled(logrus.DebugLevel) {
				e.logger.WithFields(logrus.Fields{"teid": teid}).Debug("GTP packet received")
			}
			if s, ok := e.table.FindBySEID(api.SEID(teid)); ok {
				o.SEID = s.SEID()
				rule, found = s.FirstActivePDR()
			}
		}
	}
	if !found {
		e.diag.Event(EventInfo{Event: EventUnmatched, Direction: o.Direction, TEID: teid})
		o.Kind, o.Reason = OutcomeDrop, ReasonUnmatched
		return o
	}
	pdr := rule.PDR
	o.PDRID = pdr.ID
	o.FARID = pdr.FARID
	if rule.FAR == nil {
		e.diag.Event(EventInfo{
			Event:     EventMissingFAR,
			Direction: o.Direction,
			SEID:      o.SEID,
			PDRID:     pdr.ID,
			FARID:     pdr.FARID,
		})
		o.Kind, o.Reason = OutcomeDrop, ReasonMissingFAR
		return o
	}
	far := rule.FAR
	info := EventInfo{
		Direction:          o.Direction,
		SEID:               o.SEID,
		PDRID:              pdr.ID,
		FARID:              far.ID,
		OuterHeaderRemoval: pdr.OuterHeaderRemoval,
		ApplyAction:        far.ApplyAction,
	}

	switch pdr.OuterHeaderRemoval {
	case pfcprules.OuterHeaderRemovalNone:
	case pfcprules.OuterHeaderRemovalGTPUUDPIPv4:
		if reason, ok := e.decapsulate(buf, o.Direction, teid); !ok {
			o.Kind, o.Reason = OutcomeDrop, reason
			if reason == ReasonNextHopUnresolved {
				o.Kind = OutcomeError
			}
			return o
		}
	default:
		// no transform: the packet is passed through unmodified
		info.Event = EventUnimplementedPolicy
		e.diag.Event(info)
	}

	switch far.ApplyAction {
	case pfcprules.ApplyActionDrop:
		o.Kind, o.Reason = OutcomeDrop, ReasonApplyDrop
		return o
	case pfcprules.ApplyActionForward:
		o.Kind = OutcomeForward
		return o
	case pfcprules.ApplyActionBuffer:
		o.Kind = OutcomeBuffer
	case pfcprules.ApplyActionNotifyCP:
		o.Kind = OutcomeNotifyCP
	case pfcprules.ApplyActionDuplicate:
		o.Kind = OutcomeDuplicate
	default:
		info.Event = EventUnknownAction
		e.diag.Event(info)
		o.Kind, o.Reason = OutcomeError, ReasonUnknownAction
		return o
	}
	// This Action is not implemented yet
	info.Event = EventUnimplementedPolicy
	e.diag.Event(info)
	o.Reason = ReasonActionNotImplemented
	return o
}

// decapsulate removes the GTP-U/UDP/IPv4 outer headers and addresses the
// inner packet to the next hop of its destination.
func (e *Engine) decapsulate(buf *pktbuf.Buffer, dir Direction, teid uint32) (Reason, bool) {
	pkt := buf.Bytes()
	if len(pkt) < innerIPv4Offset+gtpu.IPv4HeaderLen {
		e.diag.Event(EventInfo{Event: EventBufferTooShort, Direction: dir, TEID: teid})
		return ReasonBufferTooShort, false
	}
	if err := gtpu.CheckGPDU(pkt); err != nil {
		e.diag.Event(EventInfo{Event: EventMalformed, Direction: dir, TEID: teid})
		return ReasonMalformed, false
	}
	var innerDst [4]byte
	copy(innerDst[:], pkt[innerIPv4Offset+ipv4DstOffset:])
	mac, ok := e.nextHop.Resolve(innerDst)
	if !ok {
		e.diag.Event(EventInfo{Event: EventNextHopUnresolved, Direction: dir, TEID: teid})
		return ReasonNextHopUnresolved, false
	}
	if err := gtpu.DecapsulateGTPIPv4(buf, mac, e.localMAC); err != nil {
		e.diag.Event(EventInfo{Event: EventBufferTooShort, Direction: dir, TEID: teid})
		return ReasonBufferTooShort, false
	}
	return ReasonNone, true
}

func (e *Engine) logIPv4Header(ip []byte) {
	var src, dst [4]byte
	copy(src[:], ip[12:16])
	copy(dst[:], ip[16:20])
	e.logger.WithFields(logrus.Fields{
		"version":  ip[0] >> 4,
		"ihl":      ip[0] & 0x0f,
		"tos":      ip[1],
		"length":   binary.BigEndian.Uint16(ip[2:]),
		"id":       binary.BigEndian.Uint16(ip[4:]),
		"ttl":      ip[8],
		"protocol": ip[9],
		"src":      netip.AddrFrom4(src).String(),
		"dst":      netip.AddrFrom4(dst).String(),
	}).Debug("IPv4 header")
}
