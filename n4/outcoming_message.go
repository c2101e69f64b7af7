// Copyright 2024 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package n4

import (
	"net"

	"github.com/wmnsk/go-pfcp/message"
)

type OutcomingMessage struct {
	message.Message
	Destination net.Addr
}

// Marshal returns the wire form of the message.
func (m *OutcomingMessage) Marshal() ([]byte, error) {
	//XXX: message.Message interface does not implement Marshal()
	b := make([]byte, m.MarshalLen())
	if err := m.MarshalTo(b); err != nil {
		return nil, err
	}
	return b, nil
}
