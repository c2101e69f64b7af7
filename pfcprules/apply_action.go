// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import "fmt"

// ApplyAction is the action a FAR requests for matched traffic.
// Values are the Apply Action IE flag bits (3GPP TS 29.244, 8.2.26).
type ApplyAction uint8

const (
	ApplyActionDrop      ApplyAction = 1 << iota // DROP
	ApplyActionForward                           // FORW
	ApplyActionBuffer                            // BUFF
	ApplyActionNotifyCP                          // NOCP
	ApplyActionDuplicate                         // DUPL
)

var applyActionNames = map[ApplyAction]string{
	ApplyActionDrop:      "DROP",
	ApplyActionForward:   "FORWARD",
	ApplyActionBuffer:    "BUFFER",
	ApplyActionNotifyCP:  "NOTIFY_CP",
	ApplyActionDuplicate: "DUPLICATE",
}

// IsValid reports whether a is one of the five declared actions.
func (a ApplyAction) IsValid() bool {
	_, ok := applyActionNames[a]
	return ok
}

func (a ApplyAction) String() string {
	if s, ok := applyActionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("ApplyAction(%d)", uint8(a))
}

// ParseApplyAction returns the ApplyAction named s.
func ParseApplyAction(s string) (ApplyAction, error) {
	for a, name := range applyActionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown apply action %q", s)
}

func (a *ApplyAction) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseApplyAction(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a ApplyAction) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}
