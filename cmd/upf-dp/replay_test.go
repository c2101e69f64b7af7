// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextmn/upf-dataplane/config"
	"github.com/nextmn/upf-dataplane/engine"
	"github.com/nextmn/upf-dataplane/gtpu"
	"github.com/nextmn/upf-dataplane/gtpu/gtputest"
	"github.com/nextmn/upf-dataplane/handler"
	"github.com/nextmn/upf-dataplane/nexthop"
	"github.com/nextmn/upf-dataplane/session"
)

const confDoc = `
self-address: 10.0.0.1
local-mac: 02:00:00:00:00:01
next-hop: {static-mac: 02:00:00:00:00:02}
log: {level: warning}
sessions:
  - seid: 1001
    fars:
      - {id: 1, apply-action: FORWARD}
    pdrs:
      - {id: 1, precedence: 10, teid: 1001, outer-header-removal: GTP-U/UDP/IPv4, far-id: 1}
`

func uplink(t *testing.T, teid uint32) []byte {
	t.Helper()
	frame, err := gtputest.GTP(&gtputest.Frame{
		OuterSrc: net.ParseIP("10.0.0.10"),
		OuterDst: net.ParseIP("10.0.0.20"),
		TEID:     teid,
		InnerSrc: net.ParseIP("10.45.0.3"),
		InnerDst: net.ParseIP("8.8.8.8"),
		Payload:  []byte("payload"),
	})
	require.NoError(t, err)
	return frame
}

func capture(t *testing.T, frames ...[]byte) []byte {
	t.Helper()
	var b bytes.Buffer
	w := pcapgo.NewWriter(&b)
	require.NoError(t, w.WriteFileHeader(snapLen, layers.LinkTypeEthernet))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return b.Bytes()
}

func readCapture(t *testing.T, r io.Reader) [][]byte {
	t.Helper()
	pr, err := pcapgo.NewReader(r)
	require.NoError(t, err)
	var frames [][]byte
	for {
		data, _, err := pr.ReadPacketData()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, data)
	}
}

func newHandler(t *testing.T) (*handler.Handler, *logrus.Logger) {
	t.Helper()
	conf, err := config.Parse([]byte(confDoc))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	table := session.NewTable(conf.MaxPDRPerSession)
	require.NoError(t, conf.Provision(table, logger))
	e, err := engine.New(engine.Config{
		SelfAddress: [4]byte{10, 0, 0, 1},
		LocalMAC:    [6]byte{0x02, 0, 0, 0, 0, 0x01},
		Table:       table,
		NextHop:     nexthop.Static{MAC: [6]byte{0x02, 0, 0, 0, 0, 0x02}},
		Diagnostics: engine.Discard{},
		Logger:      logger,
	})
	require.NoError(t, err)
	return handler.New(e), logger
}

func TestReplay(t *testing.T) {
	h, logger := newHandler(t)
	known := uplink(t, 1001)
	in := capture(t, known, uplink(t, 1002), []byte{0x01, 0x02})

	var out bytes.Buffer
	stats, err := Replay(context.Background(), h, bytes.NewReader(in), &out, logger)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Frames: 3, Forwarded: 1, Dropped: 2}, stats)

	frames := readCapture(t, &out)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0x02}, frames[0][0:6])
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0x01}, frames[0][6:12])
	assert.Equal(t, known[gtpu.OuterHeaderLen:], frames[0][gtpu.EthernetHeaderLen:])
}

func TestReplayWithoutOutput(t *testing.T) {
	h, logger := newHandler(t)
	in := capture(t, uplink(t, 1001), uplink(t, 1001))
	stats, err := Replay(context.Background(), h, bytes.NewReader(in), nil, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Forwarded)
}

func TestReplayRejectsLinkType(t *testing.T) {
	h, logger := newHandler(t)
	var b bytes.Buffer
	require.NoError(t, pcapgo.NewWriter(&b).WriteFileHeader(snapLen, layers.LinkTypeRaw))
	_, err := Replay(context.Background(), h, &b, nil, logger)
	assert.ErrorContains(t, err, "unsupported link type")
}

func TestReplayCancelled(t *testing.T) {
	h, logger := newHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := Replay(ctx, h, bytes.NewReader(capture(t, uplink(t, 1001))), nil, logger)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Frames)
}

func TestRun(t *testing.T) {
	conf, err := config.Parse([]byte(confDoc))
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out := filepath.Join(dir, "out.pcap")
	require.NoError(t, os.WriteFile(in, capture(t, uplink(t, 1001), uplink(t, 7)), 0o600))

	require.NoError(t, run(context.Background(), conf, logger, in, out))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Capture replayed", entry.Message)
	assert.Equal(t, 2, entry.Data["frames"])
	assert.Equal(t, 1, entry.Data["forwarded"])

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, readCapture(t, f), 1)
}

func TestServeExitCode(t *testing.T) {
	conf, err := config.Parse([]byte(confDoc))
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	require.NoError(t, os.WriteFile(in, capture(t, uplink(t, 1001)), 0o600))
	assert.Equal(t, 0, serve(conf, logger, in, ""))

	assert.Equal(t, 1, serve(conf, logger, filepath.Join(dir, "missing.pcap"), ""))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "upf-dp stopped", entry.Message)
}
