// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package n4 is the PFCP server of the UP function. It applies the session
// rules requested by the CP function to a session table.
package n4

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/nextmn/upf-dataplane/pfcputil"
	"github.com/nextmn/upf-dataplane/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/wmnsk/go-pfcp/ie"
	"github.com/wmnsk/go-pfcp/message"
)

type PFCPMessageHandler = func(ctx context.Context, receivedMessage ReceivedMessage) (*OutcomingMessage, error)

var ErrNoHandler = errors.New("received unexpected PFCP message type")

type Entity struct {
	nodeID            *ie.IE
	localAddr         net.IP // advertised in UP F-SEID
	recoveryTimeStamp *ie.IE
	handlers          map[pfcputil.MessageType]PFCPMessageHandler
	started           atomic.Bool
	table             *session.Table
	associations      *AssociationsMap
	seidPool          *SessionIDPool
	logger            logrus.FieldLogger
	messages          *prometheus.CounterVec
}

func newDefaultPFCPEntityHandlers() map[pfcputil.MessageType]PFCPMessageHandler {
	m := make(map[pfcputil.MessageType]PFCPMessageHandler)
	m[message.MsgTypeHeartbeatRequest] = DefaultHeartbeatRequestHandler
	m[message.MsgTypeAssociationSetupRequest] = DefaultAssociationSetupRequestHandler
	m[message.MsgTypeAssociationReleaseRequest] = DefaultAssociationReleaseRequestHandler
	m[message.MsgTypeSessionEstablishmentRequest] = DefaultSessionEstablishmentRequestHandler
	m[message.MsgTypeSessionModificationRequest] = DefaultSessionModificationRequestHandler
	m[message.MsgTypeSessionDeletionRequest] = DefaultSessionDeletionRequestHandler
	return m
}

// NewEntity creates the UP function entity identified by nodeID, installing
// sessions in table. nodeID must be, or resolve to, an IPv4 address.
func NewEntity(nodeID string, table *session.Table, logger logrus.FieldLogger) (*Entity, error) {
	if table == nil {
		return nil, fmt.Errorf("session table is nil")
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		discard.SetLevel(logrus.PanicLevel)
		logger = discard
	}
	nid := pfcputil.CreateNodeID(nodeID)
	addr, err := pfcputil.NodeIPv4(nid)
	if err != nil {
		return nil, err
	}
	return &Entity{
		nodeID:            nid,
		localAddr:         addr,
		recoveryTimeStamp: ie.NewRecoveryTimeStamp(time.Now()),
		handlers:          newDefaultPFCPEntityHandlers(),
		table:             table,
		associations:      NewAssociationsMap(),
		seidPool:          NewSessionIDPool(PoolFirstSEID),
		logger:            logger,
	}, nil
}

func (e *Entity) NodeID() *ie.IE {
	return e.nodeID
}

func (e *Entity) RecoveryTimeStamp() *ie.IE {
	return e.recoveryTimeStamp
}

func (e *Entity) Associations() *AssociationsMap {
	return e.associations
}

// SetMessageCounter counts handled requests by message type and response cause.
func (e *Entity) SetMessageCounter(c *prometheus.CounterVec) {
	e.messages = c
}

func (e *Entity) GetHandler(t pfcputil.MessageType) (h PFCPMessageHandler, err error) {
	if f, exists := e.handlers[t]; exists {
		return f, nil
	}
	return nil, ErrNoHandler
}

func (e *Entity) AddHandler(t pfcputil.MessageType, h PFCPMessageHandler) error {
	if e.started.Load() {
		return fmt.Errorf("cannot add handler to already started PFCP Entity")
	}
	if !pfcputil.IsMessageTypeRequest(t) {
		return fmt.Errorf("only request messages can have a handler")
	}
	e.handlers[t] = h
	return nil
}

// Handle runs the handler of msg and returns the response to send, if any.
func (e *Entity) Handle(ctx context.Context, msg message.Message, sender net.Addr) (*OutcomingMessage, error) {
	f, err := e.GetHandler(msg.MessageType())
	if err != nil {
		return nil, err
	}
	out, err := f(ctx, ReceivedMessage{Message: msg, SenderAddr: sender, Entity: e})
	if err != nil {
		return nil, err
	}
	e.observe(msg, out)
	return out, nil
}

func (e *Entity) observe(msg message.Message, out *OutcomingMessage) {
	if e.messages == nil || out == nil {
		return
	}
	e.messages.WithLabelValues(msg.MessageTypeName(), causeName(responseCause(out.Message))).Inc()
}

// Serve handles requests received on conn until ctx is done.
func (e *Entity) Serve(ctx context.Context, conn *PFCPConn) error {
	e.started.Store(true)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	e.logger.WithFields(logrus.Fields{"listen": conn.LocalAddr().String()}).Info("PFCP server started")
	buf := make([]byte, pfcputil.DEFAULT_MTU)
	for {
		msg, addr, err := conn.ReadMessage(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var perr *ParseError
			if errors.As(err, &perr) {
				e.logger.WithError(err).WithFields(logrus.Fields{"sender": addr}).Debug("Dropped PFCP datagram")
				continue
			}
			return err
		}
		out, err := e.Handle(ctx, msg, addr)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"sender":       addr,
				"message-type": msg.MessageTypeName(),
			}).Info("Could not handle PFCP message")
			continue
		}
		if out == nil {
			continue
		}
		if err := conn.Write(out); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{"destination": out.Destination}).Warn("Could not send PFCP response")
		}
	}
}

// ListenAndServe listens on the PFCP port of listen and serves until ctx is done.
func (e *Entity) ListenAndServe(ctx context.Context, listen string) error {
	laddr, err := ResolvePFCPAddr("udp", listen)
	if err != nil {
		return err
	}
	conn, err := ListenPFCP("udp", laddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return e.Serve(ctx, conn)
}
