// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextmn/upf-dataplane/engine"
)

type fixedLen int

func (f fixedLen) Len() int { return int(f) }

func TestCounters(t *testing.T) {
	c := &Counters{}
	c.Outcome(engine.Outcome{Kind: engine.OutcomeForward})
	c.Outcome(engine.Outcome{Kind: engine.OutcomeDrop, Reason: engine.ReasonUnmatched})
	c.Outcome(engine.Outcome{Kind: engine.OutcomeError, Reason: engine.ReasonUnknownAction})
	c.Event(engine.EventInfo{Event: engine.EventUnmatched})

	assert.Equal(t, uint64(1), c.Packets(engine.OutcomeForward))
	assert.Equal(t, uint64(1), c.Packets(engine.OutcomeDrop))
	assert.Equal(t, uint64(1), c.Drops(engine.ReasonUnmatched))
	assert.Equal(t, uint64(1), c.Drops(engine.ReasonUnknownAction))
	assert.Equal(t, uint64(0), c.Drops(engine.ReasonNone))
	assert.Equal(t, uint64(1), c.Events(engine.EventUnmatched))

	allocs := testing.AllocsPerRun(100, func() {
		c.Outcome(engine.Outcome{Kind: engine.OutcomeForward})
		c.Event(engine.EventInfo{Event: engine.EventMissingFAR})
	})
	assert.Zero(t, allocs)
}

func TestCollector(t *testing.T) {
	c := &Counters{}
	c.Outcome(engine.Outcome{Kind: engine.OutcomeDrop, Reason: engine.ReasonMissingFAR})
	c.Outcome(engine.Outcome{Kind: engine.OutcomeDrop, Reason: engine.ReasonMissingFAR})
	registry, err := NewRegistry(c, fixedLen(3))
	require.NoError(t, err)

	expected := `
# HELP upf_dataplane_sessions Number of installed PFCP sessions.
# TYPE upf_dataplane_sessions gauge
upf_dataplane_sessions 3
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "upf_dataplane_sessions"))

	n, err := testutil.GatherAndCount(registry, "upf_dataplane_drops_total")
	require.NoError(t, err)
	assert.Equal(t, int(engine.NumReasons)-1, n)
}

func TestPFCPMessages(t *testing.T) {
	messages := NewPFCPMessages()
	registry, err := NewRegistry(&Counters{}, nil, messages)
	require.NoError(t, err)
	messages.WithLabelValues("Heartbeat Request", "none").Inc()
	messages.WithLabelValues("Session Establishment Request", "request-accepted").Add(2)

	expected := `
# HELP upf_dataplane_pfcp_messages_total PFCP requests handled, by message type and response cause.
# TYPE upf_dataplane_pfcp_messages_total counter
upf_dataplane_pfcp_messages_total{cause="none",message_type="Heartbeat Request"} 1
upf_dataplane_pfcp_messages_total{cause="request-accepted",message_type="Session Establishment Request"} 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "upf_dataplane_pfcp_messages_total"))
}
