// Copyright 2022 Louis Royer and the go-pfcp-networking contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import (
	"errors"
	"fmt"
	"io"

	"github.com/wmnsk/go-pfcp/ie"
)

var ErrMissingForwardingParameters = errors.New("forwarding parameters are mandatory when apply action is FORW")

// causeOf maps an IE decoding error to a PFCP Cause and Offending IE.
func causeOf(err error, field uint16, container uint16) (uint8, uint16) {
	switch err {
	case io.ErrUnexpectedEOF:
		return ie.CauseInvalidLength, field
	case ie.ErrIENotFound:
		return ie.CauseMandatoryIEMissing, field
	default:
		return ie.CauseMandatoryIEIncorrect, container
	}
}

// applyActionFromFlags reduces the Apply Action flags octet to a single action.
// When several flags are set, DROP wins over FORW, FORW over BUFF, and so on.
// An octet with none of the five flags is returned as is and is invalid.
func applyActionFromFlags(flags []uint8) ApplyAction {
	if len(flags) == 0 {
		return 0
	}
	for _, a := range []ApplyAction{ApplyActionDrop, ApplyActionForward, ApplyActionBuffer, ApplyActionNotifyCP, ApplyActionDuplicate} {
		if flags[0]&uint8(a) != 0 {
			return a
		}
	}
	return ApplyAction(flags[0])
}

// matchFromPDI builds a Match from the content of a PDI IE.
// A local F-TEID takes precedence over a UE IP address.
func matchFromPDI(pdi []*ie.IE) (Match, error) {
	var ue *ie.UEIPAddressFields
	for _, x := range pdi {
		switch x.Type {
		case ie.FTEID:
			fteid, err := x.FTEID()
			if err != nil {
				return Match{}, err
			}
			return TEIDMatch(fteid.TEID), nil
		case ie.UEIPAddress:
			u, err := x.UEIPAddress()
			if err != nil {
				return Match{}, err
			}
			ue = u
		}
	}
	if ue != nil {
		if v4 := ue.IPv4Address.To4(); v4 != nil {
			var addr [4]byte
			copy(addr[:], v4)
			return UEAddressMatch(addr), nil
		}
	}
	return Match{Kind: MatchNone}, nil
}

func outerHeaderRemovalFromIE(pdr *ie.IE) (OuterHeaderRemoval, bool, error) {
	ohr, err := pdr.OuterHeaderRemoval()
	if err != nil {
		if err == ie.ErrIENotFound {
			return OuterHeaderRemovalNone, false, nil
		}
		return OuterHeaderRemovalNone, false, err
	}
	if len(ohr) == 0 {
		return OuterHeaderRemovalNone, false, io.ErrUnexpectedEOF
	}
	v, err := OuterHeaderRemovalFromDescription(ohr[0])
	if err != nil {
		return OuterHeaderRemovalNone, false, err
	}
	return v, true, nil
}

// NewPDRFromIE converts a Create PDR IE. On error, cause and offendingIE
// are suitable for a PFCP response.
func NewPDRFromIE(pdr *ie.IE) (p PDR, err error, cause uint8, offendingIE uint16) {
	p.ID, err = pdr.PDRID()
	if err != nil {
		cause, offendingIE = causeOf(err, ie.PDRID, ie.CreatePDR)
		return PDR{}, err, cause, offendingIE
	}
	p.Precedence, err = pdr.Precedence()
	if err != nil {
		cause, offendingIE = causeOf(err, ie.Precedence, ie.CreatePDR)
		return PDR{}, err, cause, offendingIE
	}
	pdi, err := pdr.PDI()
	if err != nil {
		cause, offendingIE = causeOf(err, ie.PDI, ie.CreatePDR)
		return PDR{}, err, cause, offendingIE
	}
	p.Match, err = matchFromPDI(pdi)
	if err != nil {
		return PDR{}, err, ie.CauseMandatoryIEIncorrect, ie.PDI
	}
	p.OuterHeaderRemoval, _, err = outerHeaderRemovalFromIE(pdr)
	if err != nil {
		return PDR{}, err, ie.CauseMandatoryIEIncorrect, ie.OuterHeaderRemoval
	}
	// FAR ID is conditional: a PDR without one drops every matched packet.
	farid, err := pdr.FARID()
	switch err {
	case nil:
		p.FARID = farid
		p.HasFAR = true
	case ie.ErrIENotFound:
	default:
		return PDR{}, err, ie.CauseMandatoryIEIncorrect, ie.FARID
	}
	return p, nil, 0, 0
}

// UpdatePDRFromIE applies an Update PDR IE on top of old.
func UpdatePDRFromIE(old PDR, pdr *ie.IE) (p PDR, err error, cause uint8, offendingIE uint16) {
	p = old
	if precedence, err := pdr.Precedence(); err == nil {
		p.Precedence = precedence
	}
	if pdi, err := pdr.PDI(); err == nil {
		p.Match, err = matchFromPDI(pdi)
		if err != nil {
			return old, err, ie.CauseMandatoryIEIncorrect, ie.PDI
		}
	}
	ohr, ok, err := outerHeaderRemovalFromIE(pdr)
	if err != nil {
		return old, err, ie.CauseMandatoryIEIncorrect, ie.OuterHeaderRemoval
	}
	if ok {
		p.OuterHeaderRemoval = ohr
	}
	if farid, err := pdr.FARID(); err == nil {
		p.FARID = farid
		p.HasFAR = true
	}
	return p, nil, 0, 0
}

func forwardingParametersFromIE(fp []*ie.IE) (*ForwardingParameters, error) {
	params := &ForwardingParameters{}
	for _, x := range fp {
		switch x.Type {
		case ie.DestinationInterface:
			d, err := x.DestinationInterface()
			if err != nil {
				return nil, err
			}
			params.DestinationInterface = d
		case ie.OuterHeaderCreation:
			ohc, err := x.OuterHeaderCreation()
			if err != nil {
				return nil, err
			}
			c := &OuterHeaderCreation{
				Description: ohc.OuterHeaderCreationDescription,
				TEID:        ohc.TEID,
				Port:        ohc.PortNumber,
			}
			if v4 := ohc.IPv4Address.To4(); v4 != nil {
				copy(c.IPv4Address[:], v4)
			}
			params.OuterHeaderCreation = c
		}
	}
	return params, nil
}

// NewFARFromIE converts a Create FAR IE.
func NewFARFromIE(far *ie.IE) (f FAR, err error, cause uint8, offendingIE uint16) {
	f.ID, err = far.FARID()
	if err != nil {
		cause, offendingIE = causeOf(err, ie.FARID, ie.CreateFAR)
		return FAR{}, err, cause, offendingIE
	}
	aa, err := far.ApplyAction()
	if err != nil {
		cause, offendingIE = causeOf(err, ie.ApplyAction, ie.CreateFAR)
		return FAR{}, err, cause, offendingIE
	}
	f.ApplyAction = applyActionFromFlags(aa)

	// This IE shall be present when the Apply Action requests
	// the packets to be forwarded. It may be present otherwise.
	fp, err := far.ForwardingParameters()
	switch {
	case err == nil:
		f.ForwardingParameters, err = forwardingParametersFromIE(fp)
		if err != nil {
			return FAR{}, err, ie.CauseMandatoryIEIncorrect, ie.ForwardingParameters
		}
	case f.ApplyAction == ApplyActionForward:
		return FAR{}, fmt.Errorf("FAR %d: %w", f.ID, ErrMissingForwardingParameters), ie.CauseMandatoryIEIncorrect, ie.CreateFAR
	}
	return f, nil, 0, 0
}

// UpdateFARFromIE applies an Update FAR IE on top of old.
func UpdateFARFromIE(old FAR, far *ie.IE) (f FAR, err error, cause uint8, offendingIE uint16) {
	f = old
	if aa, err := far.ApplyAction(); err == nil {
		f.ApplyAction = applyActionFromFlags(aa)
	}
	if fp, err := far.UpdateForwardingParameters(); err == nil {
		f.ForwardingParameters, err = forwardingParametersFromIE(fp)
		if err != nil {
			return old, err, ie.CauseMandatoryIEIncorrect, ie.UpdateForwardingParameters
		}
	}
	if f.ApplyAction == ApplyActionForward && f.ForwardingParameters == nil {
		return old, fmt.Errorf("FAR %d: %w", f.ID, ErrMissingForwardingParameters), ie.CauseMandatoryIEIncorrect, ie.UpdateFAR
	}
	return f, nil, 0, 0
}
