// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package gtpu removes and adds GTP-U/UDP/IPv4 outer headers in place on a
// packet buffer. No function of this package allocates.
package gtpu

import (
	"encoding/binary"
	"errors"

	"github.com/nextmn/upf-dataplane/pktbuf"
)

const (
	EthernetHeaderLen = 14
	IPv4HeaderLen     = 20
	UDPHeaderLen      = 8
	// HeaderLen is the length of a GTPv1-U header without optional fields.
	HeaderLen = 8
	// OuterHeaderLen is the length of the Ethernet/IPv4/UDP/GTP-U stack removed on decapsulation.
	OuterHeaderLen = EthernetHeaderLen + IPv4HeaderLen + UDPHeaderLen + HeaderLen

	Port            = 2152
	MessageTypeGPDU = 255
	EtherTypeIPv4   = 0x0800

	// teidOffset is the offset of the TEID inside the GTP-U header.
	teidOffset = 4
	// flagsV1PT is version 1 with protocol type GTP and no optional field.
	flagsV1PT = 0x30
	// flagsOptional are the E, S and PN flags announcing the 4 optional header bytes.
	flagsOptional = 0x07
	flagsVersion  = 0xf0
	gtpOffset     = EthernetHeaderLen + IPv4HeaderLen + UDPHeaderLen
	ipProtoUDP    = 17
	defaultTTL    = 64
	ipv4VerIHL    = 0x45
	ethDstOffset  = 0
	ethSrcOffset  = 6
	ethTypeOffset = 12
)

var (
	ErrBufferTooShort = errors.New("buffer too short for GTP-U/UDP/IPv4 outer headers")
	ErrNotGPDU        = errors.New("GTP-U header is not a G-PDU without optional fields")
	ErrInnerNotIPv4   = errors.New("inner packet is not IPv4")
)

// CheckGPDU verifies that the Ethernet frame pkt carries a GTPv1-U G-PDU
// with the fixed 8-byte header around an IPv4 packet, the only layout
// DecapsulateGTPIPv4 removes.
func CheckGPDU(pkt []byte) error {
	if len(pkt) < OuterHeaderLen {
		return ErrBufferTooShort
	}
	gtp := pkt[gtpOffset:]
	if gtp[0]&flagsVersion != flagsV1PT || gtp[0]&flagsOptional != 0 || gtp[1] != MessageTypeGPDU {
		return ErrNotGPDU
	}
	if len(pkt) == OuterHeaderLen || pkt[OuterHeaderLen]>>4 != 4 {
		return ErrInnerNotIPv4
	}
	return nil
}

// ExtractTEID returns the TEID of the GTP-U header following the UDP header
// at udpOffset in pkt. It reports false when pkt is too short to hold it.
func ExtractTEID(pkt []byte, udpOffset int) (uint32, bool) {
	gtp := udpOffset + UDPHeaderLen
	if udpOffset < 0 || len(pkt) < gtp+HeaderLen {
		return 0, false
	}
	return binary.BigEndian.Uint32(pkt[gtp+teidOffset:]), true
}

func writeEthernet(hdr []byte, dst, src [6]byte) {
	copy(hdr[ethDstOffset:], dst[:])
	copy(hdr[ethSrcOffset:], src[:])
	binary.BigEndian.PutUint16(hdr[ethTypeOffset:], EtherTypeIPv4)
}

// DecapsulateGTPIPv4 strips the [Ethernet][IPv4][UDP][GTP-U] headers of the
// packet in buf and prepends a new Ethernet header addressed to dst.
// When buf is shorter than OuterHeaderLen, ErrBufferTooShort is returned; when
// it is not a G-PDU without optional fields carrying IPv4, the CheckGPDU
// error is. In both cases buf is left untouched.
func DecapsulateGTPIPv4(buf *pktbuf.Buffer, dst, src [6]byte) error {
	if err := CheckGPDU(buf.Bytes()); err != nil {
		return err
	}
	if err := buf.Adj(OuterHeaderLen); err != nil {
		return err
	}
	hdr, err := buf.Prepend(EthernetHeaderLen)
	if err != nil {
		return err
	}
	writeEthernet(hdr, dst, src)
	return nil
}

// EncapParams describes the tunnel built by EncapsulateGTPIPv4.
type EncapParams struct {
	SrcMAC  [6]byte
	DstMAC  [6]byte
	SrcAddr [4]byte
	DstAddr [4]byte
	TEID    uint32
}

// EncapsulateGTPIPv4 replaces the Ethernet header of the frame in buf with
// an [Ethernet][IPv4][UDP][GTP-U] stack carrying the inner IPv4 packet.
func EncapsulateGTPIPv4(buf *pktbuf.Buffer, p *EncapParams) error {
	if buf.Len() < EthernetHeaderLen+IPv4HeaderLen {
		return ErrBufferTooShort
	}
	if buf.Headroom()+EthernetHeaderLen < OuterHeaderLen {
		return pktbuf.ErrNoHeadroom
	}
	if err := buf.Adj(EthernetHeaderLen); err != nil {
		return err
	}
	inner := buf.Len()
	hdr, err := buf.Prepend(OuterHeaderLen)
	if err != nil {
		return err
	}
	writeEthernet(hdr, p.DstMAC, p.SrcMAC)

	ip := hdr[EthernetHeaderLen : EthernetHeaderLen+IPv4HeaderLen]
	ip[0] = ipv4VerIHL
	ip[1] = 0
	binary.BigEndian.PutUint16(ip[2:], uint16(IPv4HeaderLen+UDPHeaderLen+HeaderLen+inner))
	binary.BigEndian.PutUint16(ip[4:], 0) // identification
	binary.BigEndian.PutUint16(ip[6:], 0) // flags and fragment offset
	ip[8] = defaultTTL
	ip[9] = ipProtoUDP
	binary.BigEndian.PutUint16(ip[10:], 0)
	copy(ip[12:16], p.SrcAddr[:])
	copy(ip[16:20], p.DstAddr[:])
	binary.BigEndian.PutUint16(ip[10:], IPv4Checksum(ip))

	udp := hdr[EthernetHeaderLen+IPv4HeaderLen : EthernetHeaderLen+IPv4HeaderLen+UDPHeaderLen]
	binary.BigEndian.PutUint16(udp[0:], Port)
	binary.BigEndian.PutUint16(udp[2:], Port)
	binary.BigEndian.PutUint16(udp[4:], uint16(UDPHeaderLen+HeaderLen+inner))
	binary.BigEndian.PutUint16(udp[6:], 0) // checksum is optional over IPv4

	gtp := hdr[OuterHeaderLen-HeaderLen : OuterHeaderLen]
	gtp[0] = flagsV1PT
	gtp[1] = MessageTypeGPDU
	binary.BigEndian.PutUint16(gtp[2:], uint16(inner))
	binary.BigEndian.PutUint32(gtp[teidOffset:], p.TEID)
	return nil
}

// IPv4Checksum computes the ones-complement checksum of an IPv4 header.
// The checksum field must be zero.
func IPv4Checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		sum += uint32(hdr[i])<<8 | uint32(hdr[i+1])
	}
	if len(hdr)%2 != 0 {
		sum += uint32(hdr[len(hdr)-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}
