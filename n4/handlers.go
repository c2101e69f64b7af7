// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package n4

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/pfcprules"
	"github.com/nextmn/upf-dataplane/session"
	"github.com/sirupsen/logrus"
	"github.com/wmnsk/go-pfcp/ie"
	"github.com/wmnsk/go-pfcp/message"
)

// ieCause maps an error returned by an IE accessor to a Cause.
func ieCause(err error) uint8 {
	switch err {
	case io.ErrUnexpectedEOF:
		return ie.CauseInvalidLength
	case ie.ErrIENotFound:
		return ie.CauseMandatoryIEMissing
	default:
		return ie.CauseMandatoryIEIncorrect
	}
}

func DefaultHeartbeatRequestHandler(ctx context.Context, msg ReceivedMessage) (*OutcomingMessage, error) {
	msg.Entity.logger.WithFields(logrus.Fields{"sender": msg.SenderAddr}).Debug("Received Heartbeat Request")
	res := message.NewHeartbeatResponse(msg.Sequence(), msg.Entity.RecoveryTimeStamp())
	return msg.NewResponse(res)
}

// removeSessions deletes sessions whose association is gone.
func (e *Entity) removeSessions(seids []api.SEID) {
	for _, seid := range seids {
		if err := e.table.DeleteSession(seid); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{"seid": seid}).Warn("Could not delete session of released association")
		}
	}
}

func DefaultAssociationSetupRequestHandler(ctx context.Context, msg ReceivedMessage) (*OutcomingMessage, error) {
	e := msg.Entity
	m, ok := msg.Message.(*message.AssociationSetupRequest)
	if !ok {
		return nil, fmt.Errorf("issue with Association Setup Request")
	}
	e.logger.WithFields(logrus.Fields{"sender": msg.SenderAddr}).Debug("Received Association Setup Request")
	if m.NodeID == nil {
		res := message.NewAssociationSetupResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ie.CauseMandatoryIEMissing), ie.NewOffendingIE(ie.NodeID), e.RecoveryTimeStamp())
		return msg.NewResponse(res)
	}
	nid, err := m.NodeID.NodeID()
	if err != nil {
		res := message.NewAssociationSetupResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ieCause(err)), ie.NewOffendingIE(ie.NodeID), e.RecoveryTimeStamp())
		return msg.NewResponse(res)
	}

	// A new Association Setup Request from an associated node replaces the
	// existing association, and the sessions of the old one are deleted.
	if stale := e.associations.Setup(nid); len(stale) > 0 {
		e.logger.WithFields(logrus.Fields{"node-id": nid, "sessions": len(stale)}).Info("Association replaced")
		e.removeSessions(stale)
	}
	e.logger.WithFields(logrus.Fields{"node-id": nid}).Info("Association accepted")
	res := message.NewAssociationSetupResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ie.CauseRequestAccepted), e.RecoveryTimeStamp())
	return msg.NewResponse(res)
}

func DefaultAssociationReleaseRequestHandler(ctx context.Context, msg ReceivedMessage) (*OutcomingMessage, error) {
	e := msg.Entity
	m, ok := msg.Message.(*message.AssociationReleaseRequest)
	if !ok {
		return nil, fmt.Errorf("issue with Association Release Request")
	}
	e.logger.WithFields(logrus.Fields{"sender": msg.SenderAddr}).Debug("Received Association Release Request")
	if m.NodeID == nil {
		res := message.NewAssociationReleaseResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ie.CauseMandatoryIEMissing))
		return msg.NewResponse(res)
	}
	nid, err := m.NodeID.NodeID()
	if err != nil {
		res := message.NewAssociationReleaseResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ieCause(err)))
		return msg.NewResponse(res)
	}
	seids, err := e.associations.Release(nid)
	if err != nil {
		res := message.NewAssociationReleaseResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ie.CauseNoEstablishedPFCPAssociation))
		return msg.NewResponse(res)
	}
	e.removeSessions(seids)
	e.logger.WithFields(logrus.Fields{"node-id": nid, "sessions": len(seids)}).Info("Association released")
	res := message.NewAssociationReleaseResponse(msg.Sequence(), e.NodeID(), ie.NewCause(ie.CauseRequestAccepted))
	return msg.NewResponse(res)
}

// createSession creates the session that will hold pdrs. The local SEID is
// the TEID of the first uplink F-TEID, so that uplink traffic finds its
// session from the tunnel header. Sessions without F-TEID get a pool SEID.
func (e *Entity) createSession(pdrs []pfcprules.PDR) (api.SEID, error) {
	for _, pdr := range pdrs {
		if pdr.Match.Kind == pfcprules.MatchTEID && pdr.Match.TEID != 0 {
			seid := api.SEID(pdr.Match.TEID)
			if _, err := e.table.CreateSession(seid); err != nil {
				return 0, err
			}
			return seid, nil
		}
	}
	for {
		seid := e.seidPool.GetNext()
		_, err := e.table.CreateSession(seid)
		if errors.Is(err, session.ErrSessionExists) {
			continue
		}
		return seid, err
	}
}

// checkTEID rejects a PDR whose F-TEID would not lead uplink traffic to the
// session: its TEID must be the local SEID.
func checkTEID(seid api.SEID, pdr pfcprules.PDR) error {
	if pdr.Match.Kind == pfcprules.MatchTEID && api.SEID(pdr.Match.TEID) != seid {
		return fmt.Errorf("PDR %d: TEID %d does not select session %d", pdr.ID, pdr.Match.TEID, seid)
	}
	return nil
}

func DefaultSessionEstablishmentRequestHandler(ctx context.Context, msg ReceivedMessage) (*OutcomingMessage, error) {
	e := msg.Entity
	m, ok := msg.Message.(*message.SessionEstablishmentRequest)
	if !ok {
		return nil, fmt.Errorf("issue with Session Establishment Request")
	}
	e.logger.WithFields(logrus.Fields{"sender": msg.SenderAddr}).Debug("Received Session Establishment Request")

	// If F-SEID is missing or malformed, SEID shall be set to 0
	var rseid uint64 = 0
	reject := func(cause uint8, offendingIE ...uint16) (*OutcomingMessage, error) {
		ies := []*ie.IE{e.NodeID(), ie.NewCause(cause)}
		for _, o := range offendingIE {
			ies = append(ies, ie.NewOffendingIE(o))
		}
		res := message.NewSessionEstablishmentResponse(0, 0, rseid, msg.Sequence(), 0, ies...)
		return msg.NewResponse(res)
	}

	// CP F-SEID is a mandatory IE
	if m.CPFSEID == nil {
		return reject(ie.CauseMandatoryIEMissing, ie.FSEID)
	}
	fseid, err := m.CPFSEID.FSEID()
	if err != nil {
		return reject(ieCause(err), ie.FSEID)
	}
	rseid = fseid.SEID

	// NodeID is a mandatory IE
	if m.NodeID == nil {
		return reject(ie.CauseMandatoryIEMissing, ie.NodeID)
	}
	nid, err := m.NodeID.NodeID()
	if err != nil {
		return reject(ieCause(err), ie.NodeID)
	}

	// NodeID is used to define which PFCP Association is associated the PFCP Session.
	// When the PFCP Association is released, associated PFCP Sessions are deleted as well.
	if !e.associations.Exists(nid) {
		e.logger.WithFields(logrus.Fields{"node-id": nid}).Debug("No association")
		return reject(ie.CauseNoEstablishedPFCPAssociation)
	}

	// CreatePDR and CreateFAR are Mandatory IEs
	if len(m.CreatePDR) == 0 {
		return reject(ie.CauseMandatoryIEMissing, ie.CreatePDR)
	}
	if len(m.CreateFAR) == 0 {
		return reject(ie.CauseMandatoryIEMissing, ie.CreateFAR)
	}

	fars := make([]pfcprules.FAR, 0, len(m.CreateFAR))
	for _, x := range m.CreateFAR {
		far, err, cause, offendingIE := pfcprules.NewFARFromIE(x)
		if err != nil {
			e.logger.WithError(err).Debug("Rejected Create FAR")
			return reject(cause, offendingIE)
		}
		fars = append(fars, far)
	}
	pdrs := make([]pfcprules.PDR, 0, len(m.CreatePDR))
	for _, x := range m.CreatePDR {
		pdr, err, cause, offendingIE := pfcprules.NewPDRFromIE(x)
		if err != nil {
			e.logger.WithError(err).Debug("Rejected Create PDR")
			return reject(cause, offendingIE)
		}
		pdrs = append(pdrs, pdr)
	}

	seid, err := e.createSession(pdrs)
	if err != nil {
		e.logger.WithError(err).Info("Could not create session")
		return reject(ie.CauseRuleCreationModificationFailure, ie.CreatePDR)
	}
	err = e.table.Modify(seid, func(tx *session.Tx) error {
		for _, far := range fars {
			if err := tx.UpsertFAR(far); err != nil {
				return err
			}
		}
		for _, pdr := range pdrs {
			if err := checkTEID(seid, pdr); err != nil {
				return err
			}
			if err := tx.UpsertPDR(pdr); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		err = e.associations.AddSession(nid, seid, rseid)
	}
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{"seid": seid}).Info("Could not install session rules")
		if errDel := e.table.DeleteSession(seid); errDel != nil {
			e.logger.WithError(errDel).WithFields(logrus.Fields{"seid": seid}).Warn("Could not roll back session")
		}
		return reject(ie.CauseRuleCreationModificationFailure, ie.CreatePDR)
	}

	e.logger.WithFields(logrus.Fields{
		"seid":        seid,
		"remote-seid": rseid,
		"node-id":     nid,
		"pdrs":        len(pdrs),
		"fars":        len(fars),
	}).Info("Session established")
	res := message.NewSessionEstablishmentResponse(0, 0, rseid, msg.Sequence(), 0,
		e.NodeID(),
		ie.NewCause(ie.CauseRequestAccepted),
		ie.NewFSEID(uint64(seid), e.localAddr, nil),
	)
	return msg.NewResponse(res)
}

// ruleError carries the Cause and Offending IE of a rejected rule change.
type ruleError struct {
	err         error
	cause       uint8
	offendingIE uint16
}

func (r *ruleError) Error() string {
	return r.err.Error()
}

func (r *ruleError) Unwrap() error {
	return r.err
}

func newRuleError(err error, cause uint8, offendingIE uint16) error {
	return &ruleError{err: err, cause: cause, offendingIE: offendingIE}
}

// applyModification applies the rule changes of m in the order
// Remove PDR, Remove FAR, Create/Update FAR, Create/Update PDR.
func applyModification(tx *session.Tx, seid api.SEID, m *message.SessionModificationRequest) error {
	for _, x := range m.RemovePDR {
		id, err := x.PDRID()
		if err != nil {
			return newRuleError(err, ieCause(err), ie.PDRID)
		}
		if err := tx.RemovePDR(id); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.RemovePDR)
		}
	}
	for _, x := range m.RemoveFAR {
		id, err := x.FARID()
		if err != nil {
			return newRuleError(err, ieCause(err), ie.FARID)
		}
		if err := tx.RemoveFAR(id); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.RemoveFAR)
		}
	}
	for _, x := range m.CreateFAR {
		far, err, cause, offendingIE := pfcprules.NewFARFromIE(x)
		if err != nil {
			return newRuleError(err, cause, offendingIE)
		}
		if err := tx.UpsertFAR(far); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.CreateFAR)
		}
	}
	for _, x := range m.UpdateFAR {
		id, err := x.FARID()
		if err != nil {
			return newRuleError(err, ieCause(err), ie.FARID)
		}
		old, err := tx.FAR(id)
		if err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.UpdateFAR)
		}
		far, err, cause, offendingIE := pfcprules.UpdateFARFromIE(old, x)
		if err != nil {
			return newRuleError(err, cause, offendingIE)
		}
		if err := tx.UpsertFAR(far); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.UpdateFAR)
		}
	}
	for _, x := range m.CreatePDR {
		pdr, err, cause, offendingIE := pfcprules.NewPDRFromIE(x)
		if err != nil {
			return newRuleError(err, cause, offendingIE)
		}
		if err := checkTEID(seid, pdr); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.CreatePDR)
		}
		if err := tx.UpsertPDR(pdr); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.CreatePDR)
		}
	}
	for _, x := range m.UpdatePDR {
		id, err := x.PDRID()
		if err != nil {
			return newRuleError(err, ieCause(err), ie.PDRID)
		}
		old, err := tx.PDR(id)
		if err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.UpdatePDR)
		}
		pdr, err, cause, offendingIE := pfcprules.UpdatePDRFromIE(old, x)
		if err != nil {
			return newRuleError(err, cause, offendingIE)
		}
		if err := checkTEID(seid, pdr); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.UpdatePDR)
		}
		if err := tx.UpsertPDR(pdr); err != nil {
			return newRuleError(err, ie.CauseRuleCreationModificationFailure, ie.UpdatePDR)
		}
	}
	return nil
}

func DefaultSessionModificationRequestHandler(ctx context.Context, msg ReceivedMessage) (*OutcomingMessage, error) {
	e := msg.Entity
	m, ok := msg.Message.(*message.SessionModificationRequest)
	if !ok {
		return nil, fmt.Errorf("issue with Session Modification Request")
	}
	seid := api.SEID(msg.SEID())
	logger := e.logger.WithFields(logrus.Fields{"seid": seid})
	logger.Debug("Received Session Modification Request")

	// PFCP session related messages for sessions that are already established are sent to the IP address received
	// in the F-SEID allocated by the peer function or to the IP address of an alternative SMF in the SMF set.
	// Therefore the sender association is not checked: the session is found by its local SEID.
	_, rseid, ok := e.associations.Session(seid)
	if !ok {
		res := message.NewSessionModificationResponse(0, 0, 0, msg.Sequence(), 0, ie.NewCause(ie.CauseSessionContextNotFound))
		return msg.NewResponse(res)
	}

	// The UP function shall use the new CP F-SEID for subsequent
	// PFCP Session related messages for this PFCP Session
	if m.CPFSEID != nil {
		if fseid, err := m.CPFSEID.FSEID(); err == nil {
			rseid = fseid.SEID
			e.associations.SetRemoteSEID(seid, rseid)
		}
	}

	err := e.table.Modify(seid, func(tx *session.Tx) error {
		return applyModification(tx, seid, m)
	})
	var rerr *ruleError
	switch {
	case err == nil:
	case errors.As(err, &rerr):
		logger.WithError(err).Info("Rejected Session Modification Request")
		res := message.NewSessionModificationResponse(0, 0, rseid, msg.Sequence(), 0, ie.NewCause(rerr.cause), ie.NewOffendingIE(rerr.offendingIE))
		return msg.NewResponse(res)
	case errors.Is(err, session.ErrSessionNotFound):
		res := message.NewSessionModificationResponse(0, 0, rseid, msg.Sequence(), 0, ie.NewCause(ie.CauseSessionContextNotFound))
		return msg.NewResponse(res)
	default:
		logger.WithError(err).Info("Rejected Session Modification Request")
		res := message.NewSessionModificationResponse(0, 0, rseid, msg.Sequence(), 0, ie.NewCause(ie.CauseRequestRejected))
		return msg.NewResponse(res)
	}

	logger.Info("Session modified")
	res := message.NewSessionModificationResponse(0, 0, rseid, msg.Sequence(), 0, ie.NewCause(ie.CauseRequestAccepted))
	return msg.NewResponse(res)
}

func DefaultSessionDeletionRequestHandler(ctx context.Context, msg ReceivedMessage) (*OutcomingMessage, error) {
	e := msg.Entity
	if _, ok := msg.Message.(*message.SessionDeletionRequest); !ok {
		return nil, fmt.Errorf("issue with Session Deletion Request")
	}
	seid := api.SEID(msg.SEID())
	logger := e.logger.WithFields(logrus.Fields{"seid": seid})
	logger.Debug("Received Session Deletion Request")

	_, rseid, ok := e.associations.Session(seid)
	if !ok {
		res := message.NewSessionDeletionResponse(0, 0, 0, msg.Sequence(), 0, ie.NewCause(ie.CauseSessionContextNotFound))
		return msg.NewResponse(res)
	}
	e.associations.RemoveSession(seid)
	if err := e.table.DeleteSession(seid); err != nil {
		logger.WithError(err).Warn("Session already deleted from table")
	}
	logger.Info("Session deleted")
	res := message.NewSessionDeletionResponse(0, 0, rseid, msg.Sequence(), 0, ie.NewCause(ie.CauseRequestAccepted))
	return msg.NewResponse(res)
}

// responseCause returns the Cause IE of a response, or nil.
func responseCause(m message.Message) *ie.IE {
	switch res := m.(type) {
	case *message.AssociationSetupResponse:
		return res.Cause
	case *message.AssociationReleaseResponse:
		return res.Cause
	case *message.SessionEstablishmentResponse:
		return res.Cause
	case *message.SessionModificationResponse:
		return res.Cause
	case *message.SessionDeletionResponse:
		return res.Cause
	default:
		return nil
	}
}

var causeNames = map[uint8]string{
	ie.CauseRequestAccepted:                 "request-accepted",
	ie.CauseRequestRejected:                 "request-rejected",
	ie.CauseSessionContextNotFound:          "session-context-not-found",
	ie.CauseMandatoryIEMissing:              "mandatory-ie-missing",
	ie.CauseMandatoryIEIncorrect:            "mandatory-ie-incorrect",
	ie.CauseInvalidLength:                   "invalid-length",
	ie.CauseNoEstablishedPFCPAssociation:    "no-established-pfcp-association",
	ie.CauseRuleCreationModificationFailure: "rule-creation-modification-failure",
}

func causeName(c *ie.IE) string {
	if c == nil {
		return "none"
	}
	v, err := c.Cause()
	if err != nil {
		return "invalid"
	}
	if name, ok := causeNames[v]; ok {
		return name
	}
	return fmt.Sprintf("cause-%d", v)
}
