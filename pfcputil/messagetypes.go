// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcputil

import (
	"github.com/wmnsk/go-pfcp/message"
)

type MessageType = uint8

// Returns true when message is a PFCP Request.
// Not written as !IsMessageTypeResponse because new message types may be defined.
func IsMessageTypeRequest(msgType MessageType) bool {
	switch msgType {
	case message.MsgTypeHeartbeatRequest,
		message.MsgTypePFDManagementRequest,
		message.MsgTypeAssociationSetupRequest,
		message.MsgTypeAssociationUpdateRequest,
		message.MsgTypeAssociationReleaseRequest,
		message.MsgTypeNodeReportRequest,
		message.MsgTypeSessionSetDeletionRequest,
		message.MsgTypeSessionEstablishmentRequest,
		message.MsgTypeSessionModificationRequest,
		message.MsgTypeSessionDeletionRequest,
		message.MsgTypeSessionReportRequest:
		return true
	default:
		return false
	}
}

// Returns true when message is a PFCP Response
func IsMessageTypeResponse(msgType MessageType) bool {
	switch msgType {
	case message.MsgTypeHeartbeatResponse,
		message.MsgTypePFDManagementResponse,
		message.MsgTypeAssociationSetupResponse,
		message.MsgTypeAssociationUpdateResponse,
		message.MsgTypeAssociationReleaseResponse,
		message.MsgTypeVersionNotSupportedResponse,
		message.MsgTypeNodeReportResponse,
		message.MsgTypeSessionSetDeletionResponse,
		message.MsgTypeSessionEstablishmentResponse,
		message.MsgTypeSessionModificationResponse,
		message.MsgTypeSessionDeletionResponse,
		message.MsgTypeSessionReportResponse:
		return true
	default:
		return false
	}
}

// IsSessionMessage reports whether the header of msgType carries a SEID.
func IsSessionMessage(msgType MessageType) bool {
	return msgType >= message.MsgTypeSessionEstablishmentRequest
}
