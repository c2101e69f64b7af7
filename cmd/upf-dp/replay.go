// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nextmn/upf-dataplane/handler"
	"github.com/nextmn/upf-dataplane/pktbuf"
)

const snapLen = 65536

// ReplayStats counts the frames of a replayed capture.
type ReplayStats struct {
	Frames    int
	Forwarded int
	Dropped   int
}

// Replay feeds every frame of the pcap stream in through h. Forwarded frames
// are written to out, unless out is nil.
func Replay(ctx context.Context, h *handler.Handler, in io.Reader, out io.Writer, logger logrus.FieldLogger) (ReplayStats, error) {
	var stats ReplayStats
	r, err := pcapgo.NewReader(in)
	if err != nil {
		return stats, errors.Wrap(err, "pcap input")
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		return stats, errors.Errorf("pcap input: unsupported link type %s", r.LinkType())
	}
	var w *pcapgo.Writer
	if out != nil {
		w = pcapgo.NewWriter(out)
		if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
			return stats, errors.Wrap(err, "pcap output")
		}
	}

	buf := pktbuf.New(pktbuf.DefaultHeadroom, snapLen)
	var meta handler.Meta
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, errors.Wrapf(err, "pcap input: frame %d", stats.Frames+1)
		}
		stats.Frames++
		if err := buf.Reset(data, pktbuf.DefaultHeadroom); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{"frame": stats.Frames}).Warn("Skipped frame")
			stats.Dropped++
			continue
		}
		if h.Handle(buf, &meta) != handler.ActionForward {
			stats.Dropped++
			continue
		}
		stats.Forwarded++
		if w == nil {
			continue
		}
		ci.CaptureLength = buf.Len()
		ci.Length = buf.Len()
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			return stats, errors.Wrapf(err, "pcap output: frame %d", stats.Frames)
		}
	}
}
