// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pfcprules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestEnumsYAML(t *testing.T) {
	var v struct {
		Action ApplyAction        `yaml:"action"`
		OHR    OuterHeaderRemoval `yaml:"ohr"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("action: NOTIFY_CP\nohr: GTP-U/UDP/IPv4\n"), &v))
	assert.Equal(t, ApplyActionNotifyCP, v.Action)
	assert.Equal(t, OuterHeaderRemovalGTPUUDPIPv4, v.OHR)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "action: NOTIFY_CP\nohr: GTP-U/UDP/IPv4\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("action: TELEPORT\n"), &v))
	assert.Error(t, yaml.Unmarshal([]byte("ohr: IPX\n"), &v))
}

func TestApplyActionString(t *testing.T) {
	assert.Equal(t, "FORWARD", ApplyActionForward.String())
	assert.Equal(t, "ApplyAction(3)", ApplyAction(3).String())
	assert.True(t, ApplyActionDuplicate.IsValid())
	assert.False(t, ApplyAction(0).IsValid())
}
