// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package pktbuf provides a contiguous packet buffer whose data start can be
// moved forward (header removal) and backward (header insertion) without copying
// the payload.
package pktbuf

import "errors"

// DefaultHeadroom leaves room for an outer Ethernet/IPv4/UDP/GTP-U stack.
const DefaultHeadroom = 128

var (
	ErrAdjTooLong     = errors.New("adjust length exceeds packet length")
	ErrNoHeadroom     = errors.New("not enough headroom to prepend")
	ErrFrameTooLarge  = errors.New("frame does not fit in buffer")
	ErrInvalidPrepend = errors.New("invalid prepend length")
)

// Buffer is a packet buffer. The zero value is an empty buffer with no capacity.
// A Buffer is owned by a single goroutine at a time.
type Buffer struct {
	mem   []byte
	start int
	end   int
}

// New returns a Buffer able to hold frames of up to size bytes behind headroom bytes.
func New(headroom int, size int) *Buffer {
	return &Buffer{
		mem:   make([]byte, headroom+size),
		start: headroom,
		end:   headroom,
	}
}

// Reset copies frame into the buffer, headroom bytes from the start of the backing array.
func (b *Buffer) Reset(frame []byte, headroom int) error {
	if headroom < 0 || headroom+len(frame) > len(b.mem) {
		return ErrFrameTooLarge
	}
	b.start = headroom
	b.end = headroom + copy(b.mem[headroom:], frame)
	return nil
}

// Bytes returns the current packet data. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.mem[b.start:b.end]
}

func (b *Buffer) Len() int {
	return b.end - b.start
}

// Headroom is the number of bytes available to Prepend.
func (b *Buffer) Headroom() int {
	return b.start
}

// Adj removes n bytes from the front of the packet.
func (b *Buffer) Adj(n int) error {
	if n < 0 || n > b.Len() {
		return ErrAdjTooLong
	}
	b.start += n
	return nil
}

// Prepend adds n bytes at the front of the packet and returns them.
// The returned bytes hold whatever was previously stored there.
func (b *Buffer) Prepend(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidPrepend
	}
	if n > b.start {
		return nil, ErrNoHeadroom
	}
	b.start -= n
	return b.mem[b.start : b.start+n], nil
}
