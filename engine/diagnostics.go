// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/pfcprules"
	"github.com/sirupsen/logrus"
)

type Event uint8

const (
	EventMalformed Event = iota
	EventBufferTooShort
	EventUnmatched
	EventMissingFAR
	EventUnimplementedPolicy
	EventUnknownAction
	EventNextHopUnresolved
	NumEvents
)

var eventNames = [NumEvents]string{
	EventMalformed:           "malformed",
	EventBufferTooShort:      "buffer-too-short",
	EventUnmatched:           "unmatched",
	EventMissingFAR:          "missing-far",
	EventUnimplementedPolicy: "unimplemented-policy",
	EventUnknownAction:       "unknown-action",
	EventNextHopUnresolved:   "next-hop-unresolved",
}

var eventMessages = [NumEvents]string{
	EventMalformed:           "Malformed packet",
	EventBufferTooShort:      "Packet too short for outer header removal",
	EventUnmatched:           "No PDR matching packet",
	EventMissingFAR:          "PDR references a FAR that does not exist",
	EventUnimplementedPolicy: "This policy is not implemented yet",
	EventUnknownAction:       "Unknown apply action",
	EventNextHopUnresolved:   "Could not resolve next hop",
}

var eventLevels = [NumEvents]logrus.Level{
	EventMalformed:           logrus.DebugLevel,
	EventBufferTooShort:      logrus.InfoLevel,
	EventUnmatched:           logrus.DebugLevel,
	EventMissingFAR:          logrus.WarnLevel,
	EventUnimplementedPolicy: logrus.InfoLevel,
	EventUnknownAction:       logrus.ErrorLevel,
	EventNextHopUnresolved:   logrus.WarnLevel,
}

func Events() []Event {
	e := make([]Event, NumEvents)
	for i := range e {
		e[i] = Event(i)
	}
	return e
}

func (e Event) String() string {
	if e < NumEvents {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

func (e Event) Level() logrus.Level {
	if e < NumEvents {
		return eventLevels[e]
	}
	return logrus.ErrorLevel
}

// EventInfo is the context of an Event.
// Fields that do not apply to the event are left to their zero value.
type EventInfo struct {
	Event              Event
	Direction          Direction
	TEID               uint32
	SEID               api.SEID
	PDRID              api.PDRID
	FARID              api.FARID
	OuterHeaderRemoval pfcprules.OuterHeaderRemoval
	ApplyAction        pfcprules.ApplyAction
}

func (i EventInfo) fields() logrus.Fields {
	f := logrus.Fields{
		"event":     i.Event.String(),
		"direction": i.Direction.String(),
	}
	switch i.Event {
	case EventMissingFAR:
		f["seid"] = i.SEID
		f["pdr-id"] = i.PDRID
		f["far-id"] = i.FARID
	case EventUnimplementedPolicy, EventUnknownAction:
		f["seid"] = i.SEID
		f["pdr-id"] = i.PDRID
		f["far-id"] = i.FARID
		f["outer-header-removal"] = i.OuterHeaderRemoval.String()
		f["apply-action"] = i.ApplyAction.String()
	case EventUnmatched, EventNextHopUnresolved:
		f["teid"] = i.TEID
	}
	return f
}

// Diagnostics receives the events and outcomes of the packet path.
// Implementations are called concurrently and must not block.
type Diagnostics interface {
	Event(info EventInfo)
	Outcome(o Outcome)
}

// Discard ignores everything.
type Discard struct{}

func (Discard) Event(EventInfo) {}
func (Discard) Outcome(Outcome) {}

// Tee forwards to every Diagnostics it holds.
type Tee []Diagnostics

func (t Tee) Event(info EventInfo) {
	for _, d := range t {
		d.Event(info)
	}
}

func (t Tee) Outcome(o Outcome) {
	for _, d := range t {
		d.Outcome(o)
	}
}

// LogDiagnostics logs events with logrus, each at its own level.
type LogDiagnostics struct {
	Logger *logrus.Logger
}

func NewLogDiagnostics(logger *logrus.Logger) *LogDiagnostics {
	if logger == nil {
		logger = discardLogger()
	}
	return &LogDiagnostics{Logger: logger}
}

func (d *LogDiagnostics) Event(info EventInfo) {
	level := info.Event.Level()
	if !d.Logger.IsLevelEnabled(level) || info.Event >= NumEvents {
		return
	}
	d.Logger.WithFields(info.fields()).Log(level, eventMessages[info.Event])
}

func (d *LogDiagnostics) Outcome(o Outcome) {
	if !d.Logger.IsLevelEnabled(logrus.TraceLevel) {
		return
	}
	d.Logger.WithFields(logrus.Fields{
		"direction": o.Direction.String(),
		"seid":      o.SEID,
		"pdr-id":    o.PDRID,
		"far-id":    o.FARID,
	}).Trace("Outcome: " + o.String())
}
