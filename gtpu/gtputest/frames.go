// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package gtputest builds GTP-U frames for tests.
package gtputest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	GNBMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0a}
	UPFMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
)

// Frame describes an uplink frame carrying a UDP datagram from a UE.
type Frame struct {
	OuterSrc net.IP
	OuterDst net.IP
	TEID     uint32
	InnerSrc net.IP
	InnerDst net.IP
	Payload  []byte
}

func serialize(l ...gopacket.SerializableLayer) ([]byte, error) {
	options := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	buffer := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buffer, options, l...); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func innerLayers(f *Frame) (*layers.IPv4, *layers.UDP) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    f.InnerSrc.To4(),
		DstIP:    f.InnerDst.To4(),
	}
	udp := &layers.UDP{
		SrcPort: 40000,
		DstPort: 40001,
	}
	udp.SetNetworkLayerForChecksum(ip)
	return ip, udp
}

// GTP returns [Ethernet][IPv4][UDP][GTP-U][IPv4][UDP][payload].
func GTP(f *Frame) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       GNBMAC,
		DstMAC:       UPFMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	outer := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    f.OuterSrc.To4(),
		DstIP:    f.OuterDst.To4(),
	}
	outerUDP := &layers.UDP{
		SrcPort: layers.UDPPort(2152),
		DstPort: layers.UDPPort(2152),
	}
	outerUDP.SetNetworkLayerForChecksum(outer)
	gtp := &layers.GTPv1U{
		Version:      1,
		ProtocolType: 1,
		MessageType:  255,
		TEID:         f.TEID,
	}
	ip, udp := innerLayers(f)
	return serialize(eth, outer, outerUDP, gtp, ip, udp, gopacket.Payload(f.Payload))
}

// Plain returns [Ethernet][IPv4][UDP][payload] built from the inner fields of f.
func Plain(f *Frame) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       GNBMAC,
		DstMAC:       UPFMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip, udp := innerLayers(f)
	return serialize(eth, ip, udp, gopacket.Payload(f.Payload))
}
