// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wmnsk/go-pfcp/ie"
)

func TestNewPDRFromIEUplink(t *testing.T) {
	createPDR := ie.NewCreatePDR(
		ie.NewPDRID(1),
		ie.NewPrecedence(100),
		ie.NewPDI(
			ie.NewSourceInterface(ie.SrcInterfaceAccess),
			ie.NewFTEID(0x01, 1001, net.ParseIP("10.0.0.1"), nil, 0),
		),
		ie.NewOuterHeaderRemoval(0, 0),
		ie.NewFARID(7),
	)
	pdr, err, _, _ := NewPDRFromIE(createPDR)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), pdr.ID)
	assert.Equal(t, uint32(100), pdr.Precedence)
	assert.Equal(t, TEIDMatch(1001), pdr.Match)
	assert.Equal(t, OuterHeaderRemovalGTPUUDPIPv4, pdr.OuterHeaderRemoval)
	assert.True(t, pdr.HasFAR)
	assert.Equal(t, uint32(7), pdr.FARID)
}

func TestNewPDRFromIEDownlinkWithoutFAR(t *testing.T) {
	createPDR := ie.NewCreatePDR(
		ie.NewPDRID(2),
		ie.NewPrecedence(200),
		ie.NewPDI(
			ie.NewSourceInterface(ie.SrcInterfaceCore),
			ie.NewUEIPAddress(0x02, "10.45.0.3", "", 0, 0),
		),
	)
	pdr, err, _, _ := NewPDRFromIE(createPDR)
	require.NoError(t, err)
	assert.Equal(t, UEAddressMatch([4]byte{10, 45, 0, 3}), pdr.Match)
	assert.Equal(t, OuterHeaderRemovalNone, pdr.OuterHeaderRemoval)
	assert.False(t, pdr.HasFAR)
}

func TestNewPDRFromIEMissingID(t *testing.T) {
	createPDR := ie.NewCreatePDR(
		ie.NewPrecedence(100),
		ie.NewPDI(ie.NewSourceInterface(ie.SrcInterfaceAccess)),
	)
	_, err, cause, offending := NewPDRFromIE(createPDR)
	require.Error(t, err)
	assert.Equal(t, uint8(ie.CauseMandatoryIEMissing), cause)
	assert.Equal(t, uint16(ie.PDRID), offending)
}

func TestNewFARFromIE(t *testing.T) {
	createFAR := ie.NewCreateFAR(
		ie.NewFARID(1),
		ie.NewApplyAction(0x02),
		ie.NewForwardingParameters(
			ie.NewDestinationInterface(ie.DstInterfaceAccess),
			ie.NewOuterHeaderCreation(0x0100, 42, "10.0.0.2", "", 0, 0, 0),
		),
	)
	far, err, _, _ := NewFARFromIE(createFAR)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), far.ID)
	assert.Equal(t, ApplyActionForward, far.ApplyAction)
	require.NotNil(t, far.ForwardingParameters)
	assert.Equal(t, uint8(ie.DstInterfaceAccess), far.ForwardingParameters.DestinationInterface)
	require.NotNil(t, far.ForwardingParameters.OuterHeaderCreation)
	assert.Equal(t, uint32(42), far.ForwardingParameters.OuterHeaderCreation.TEID)
	assert.Equal(t, [4]byte{10, 0, 0, 2}, far.ForwardingParameters.OuterHeaderCreation.IPv4Address)
}

func TestNewFARFromIEForwardWithoutParameters(t *testing.T) {
	createFAR := ie.NewCreateFAR(ie.NewFARID(3), ie.NewApplyAction(0x02))
	_, err, cause, offending := NewFARFromIE(createFAR)
	require.True(t, errors.Is(err, ErrMissingForwardingParameters))
	assert.Equal(t, uint8(ie.CauseMandatoryIEIncorrect), cause)
	assert.Equal(t, uint16(ie.CreateFAR), offending)
}

func TestUpdateFARFromIE(t *testing.T) {
	old := NewFAR(4, ApplyActionBuffer, nil)
	far, err, _, _ := UpdateFARFromIE(old, ie.NewUpdateFAR(ie.NewFARID(4), ie.NewApplyAction(0x01)))
	require.NoError(t, err)
	assert.Equal(t, ApplyActionDrop, far.ApplyAction)
	assert.Equal(t, ApplyActionBuffer, old.ApplyAction)
}

func TestApplyActionFromFlags(t *testing.T) {
	assert.Equal(t, ApplyActionDrop, applyActionFromFlags([]uint8{0x03}))
	assert.Equal(t, ApplyActionBuffer, applyActionFromFlags([]uint8{0x0c}))
	assert.Equal(t, ApplyActionDuplicate, applyActionFromFlags([]uint8{0x10}))
	assert.False(t, applyActionFromFlags([]uint8{0x40}).IsValid())
	assert.False(t, applyActionFromFlags(nil).IsValid())
}

func TestOuterHeaderRemovalDescription(t *testing.T) {
	for d := uint8(0); d <= 8; d++ {
		ohr, err := OuterHeaderRemovalFromDescription(d)
		require.NoError(t, err)
		back, err := ohr.Description()
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
	_, err := OuterHeaderRemovalFromDescription(9)
	assert.Error(t, err)
	_, err = OuterHeaderRemovalNone.Description()
	assert.Error(t, err)
}
