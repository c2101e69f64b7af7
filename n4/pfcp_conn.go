// Copyright 2024 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package n4

import (
	"fmt"
	"net"

	"github.com/nextmn/upf-dataplane/pfcputil"
	"github.com/wmnsk/go-pfcp/message"
)

type PFCPConn struct {
	*net.UDPConn
}

// ListenPFCP listens on laddr. A zero port selects the PFCP port.
func ListenPFCP(network string, laddr *net.UDPAddr) (*PFCPConn, error) {
	switch network {
	case "udp", "udp4", "udp6":
	default:
		return nil, fmt.Errorf("unknown network")
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return &PFCPConn{UDPConn: conn}, nil
}

// ResolvePFCPAddr returns the PFCP UDP address of ip.
func ResolvePFCPAddr(network string, ip string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr(network, pfcputil.CreateUDPAddr(ip, pfcputil.PFCP_PORT))
}

func (conn *PFCPConn) Write(m *OutcomingMessage) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	if _, err := conn.WriteTo(b, m.Destination); err != nil {
		return err
	}
	return nil
}

// ReadMessage blocks until a datagram is received. A datagram that is not
// a PFCP message is returned with a parse error and its sender.
func (conn *PFCPConn) ReadMessage(buf []byte) (message.Message, net.Addr, error) {
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}
	msg, err := message.Parse(buf[:n])
	if err != nil {
		return nil, addr, &ParseError{Err: err}
	}
	return msg, addr, nil
}

// ParseError is returned by ReadMessage for undecodable datagrams.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("undecodable PFCP message: %s", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
