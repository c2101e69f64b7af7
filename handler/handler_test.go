// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package handler_test

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextmn/upf-dataplane/engine"
	"github.com/nextmn/upf-dataplane/gtpu"
	"github.com/nextmn/upf-dataplane/gtpu/gtputest"
	"github.com/nextmn/upf-dataplane/handler"
	"github.com/nextmn/upf-dataplane/nexthop"
	"github.com/nextmn/upf-dataplane/pfcprules"
	"github.com/nextmn/upf-dataplane/pktbuf"
	"github.com/nextmn/upf-dataplane/session"
)

type fixed engine.Outcome

func (f fixed) Process(*pktbuf.Buffer) engine.Outcome { return engine.Outcome(f) }

func TestHandleMapsOutcomes(t *testing.T) {
	buf := pktbuf.New(0, 0)
	for _, k := range engine.Kinds() {
		h := handler.New(fixed{Kind: k})
		meta := &handler.Meta{Action: handler.ActionForward}
		action := h.Handle(buf, meta)
		if k == engine.OutcomeForward {
			assert.Equal(t, handler.ActionForward, action)
		} else {
			assert.Equal(t, handler.ActionDrop, action, k.String())
		}
		assert.Equal(t, action, meta.Action)
		assert.Equal(t, k, meta.Outcome.Kind)
	}
}

func newHandler(t *testing.T, table *session.Table) *handler.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	e, err := engine.New(engine.Config{
		SelfAddress: [4]byte{10, 0, 0, 1},
		LocalMAC:    [6]byte{0x02, 0, 0, 0, 0, 0x01},
		Table:       table,
		NextHop:     nexthop.Static{MAC: [6]byte{0x02, 0, 0, 0, 0, 0x02}},
		Logger:      logger,
	})
	require.NoError(t, err)
	return handler.New(e)
}

// Session 1001 forwards uplink traffic of TEID 1001 after GTP-U decapsulation.
func TestEndToEndUplinkForward(t *testing.T) {
	table := session.NewTable(session.DefaultMaxPDR)
	_, err := table.CreateSession(1001)
	require.NoError(t, err)
	require.NoError(t, table.Modify(1001, func(tx *session.Tx) error {
		if err := tx.UpsertFAR(pfcprules.NewFAR(1, pfcprules.ApplyActionForward, &pfcprules.ForwardingParameters{})); err != nil {
			return err
		}
		return tx.UpsertPDR(pfcprules.NewPDR(1, pfcprules.TEIDMatch(1001), pfcprules.OuterHeaderRemovalGTPUUDPIPv4, 1))
	}))
	h := newHandler(t, table)

	frame, err := gtputest.GTP(&gtputest.Frame{
		OuterSrc: net.ParseIP("10.0.0.10"),
		OuterDst: net.ParseIP("10.0.0.2"),
		TEID:     1001,
		InnerSrc: net.ParseIP("10.45.0.3"),
		InnerDst: net.ParseIP("1.1.1.1"),
		Payload:  []byte("end-to-end"),
	})
	require.NoError(t, err)
	buf := pktbuf.New(pktbuf.DefaultHeadroom, 2048)
	require.NoError(t, buf.Reset(frame, pktbuf.DefaultHeadroom))

	meta := &handler.Meta{}
	require.Equal(t, handler.ActionForward, h.Handle(buf, meta))
	assert.Equal(t, engine.OutcomeForward, meta.Outcome.Kind)

	out := buf.Bytes()
	require.Equal(t, len(frame)-gtpu.OuterHeaderLen+gtpu.EthernetHeaderLen, len(out))
	assert.Equal(t, uint16(gtpu.EtherTypeIPv4), binary.BigEndian.Uint16(out[12:14]))

	packet := gopacket.NewPacket(out, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, packet.ErrorLayer())
	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}, eth.DstMAC)
	ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.True(t, ip.DstIP.Equal(net.ParseIP("1.1.1.1")))
	assert.Nil(t, packet.Layer(layers.LayerTypeGTPv1U))
	assert.Equal(t, []byte("end-to-end"), packet.ApplicationLayer().Payload())
}

func TestDefaultActionIsDrop(t *testing.T) {
	h := newHandler(t, session.NewTable(1))
	buf := pktbuf.New(pktbuf.DefaultHeadroom, 64)
	meta := &handler.Meta{Action: handler.ActionForward}
	assert.Equal(t, handler.ActionDrop, h.Handle(buf, meta))
	assert.Equal(t, engine.ReasonMalformed, meta.Outcome.Reason)
}
