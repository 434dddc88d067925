// The MIT License (MIT)
//
// Copyright (c) 2025 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package wire defines the tag conventions, the packed TaggedEpoch key,
// and the received-message sum type shared between the send/recv
// progress loops and the callback dispatch workers.
package wire

import (
	"encoding/binary"
	"fmt"
)

// ControlTag is the reserved transport tag carrying Flush-Or-Close (FOC)
// control messages. All application tags must be strictly greater than
// this value.
const ControlTag int32 = 0

// ControlPayloadSize is the wire size of a FOC control message: a packed
// TaggedEpoch.
const ControlPayloadSize = 8

// TaggedEpoch packs (tag, epoch) into a single 64-bit value, used both as
// a map key and as the 8-byte control message payload.
type TaggedEpoch uint64

// Pack builds a TaggedEpoch from a controlled tag and an epoch counter.
func Pack(tag int32, epoch uint32) TaggedEpoch {
	return TaggedEpoch(uint64(uint32(tag))<<32 | uint64(epoch))
}

// Tag returns the controlled tag half of the pair.
func (te TaggedEpoch) Tag() int32 { return int32(uint32(te >> 32)) }

// Epoch returns the epoch half of the pair.
func (te TaggedEpoch) Epoch() uint32 { return uint32(te) }

func (te TaggedEpoch) String() string {
	return fmt.Sprintf("tag=%d epoch=%d", te.Tag(), te.Epoch())
}

// EncodeControlPayload serializes a TaggedEpoch as the 8-byte FOC payload.
func EncodeControlPayload(te TaggedEpoch) []byte {
	buf := make([]byte, ControlPayloadSize)
	binary.LittleEndian.PutUint64(buf, uint64(te))
	return buf
}

// DecodeControlPayload parses an 8-byte FOC payload back into a TaggedEpoch.
func DecodeControlPayload(buf []byte) (TaggedEpoch, error) {
	if len(buf) != ControlPayloadSize {
		return 0, fmt.Errorf("wire: control payload must be %d bytes, got %d", ControlPayloadSize, len(buf))
	}
	return TaggedEpoch(binary.LittleEndian.Uint64(buf)), nil
}

// Kind discriminates the two message families carried over the receive queue.
type Kind int

const (
	// KindData carries an application payload for a registered tag.
	KindData Kind = iota
	// KindControl is a synthetic message synthesized once RecvProgress has
	// observed a FOC from every peer for a given TaggedEpoch.
	KindControl
)

// Received is the tagged sum type pushed onto the receive queue. Exactly
// one of the Data-family or Control-family fields is meaningful,
// discriminated by Kind — not by a type hierarchy.
type Received struct {
	Kind Kind

	// Data fields.
	Tag    int32
	Source int
	Bytes  []byte

	// Control fields.
	Epoch TaggedEpoch
}
