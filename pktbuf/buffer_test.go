// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package pktbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAdjPrepend(t *testing.T) {
	b := New(16, 64)
	require.NoError(t, b.Reset([]byte{1, 2, 3, 4, 5, 6}, 16))
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, 16, b.Headroom())

	require.NoError(t, b.Adj(4))
	assert.Equal(t, []byte{5, 6}, b.Bytes())

	hdr, err := b.Prepend(2)
	require.NoError(t, err)
	copy(hdr, []byte{0xaa, 0xbb})
	assert.Equal(t, []byte{0xaa, 0xbb, 5, 6}, b.Bytes())
}

func TestBufferBounds(t *testing.T) {
	b := New(4, 8)
	require.NoError(t, b.Reset([]byte{1, 2, 3}, 4))
	assert.ErrorIs(t, b.Adj(4), ErrAdjTooLong)
	assert.Equal(t, 3, b.Len())

	_, err := b.Prepend(5)
	assert.ErrorIs(t, err, ErrNoHeadroom)
	assert.Equal(t, 3, b.Len())

	assert.ErrorIs(t, b.Reset(make([]byte, 9), 4), ErrFrameTooLarge)
}

func TestBufferNoAllocs(t *testing.T) {
	b := New(DefaultHeadroom, 256)
	frame := make([]byte, 100)
	allocs := testing.AllocsPerRun(100, func() {
		_ = b.Reset(frame, DefaultHeadroom)
		_ = b.Adj(50)
		_, _ = b.Prepend(14)
	})
	assert.Zero(t, allocs)
}
