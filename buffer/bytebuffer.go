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

// Package buffer implements the fixed-capacity, lock-free append-only
// byte buffer used to batch producer writes before handoff to the send
// queue, plus the pool that recycles them.
package buffer

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Outcome is the result of an Append call.
type Outcome int

const (
	// Inserted means the payload was copied in and the buffer is not yet full.
	Inserted Outcome = iota
	// Full means the payload was copied in (or, for an overflowing
	// reservation, was NOT copied in) and the buffer is now sealed.
	Full
	// Failed means the buffer was already sealed; the caller must retry
	// against a fresh buffer.
	Failed
)

// ErrZeroLength is returned by Append when n == 0.
var ErrZeroLength = errors.New("buffer: zero-length append")

// ErrOversized is returned by Append when n exceeds the buffer's capacity:
// oversized payloads are rejected outright rather than split.
var ErrOversized = errors.New("buffer: append exceeds capacity")

// ByteBuffer is a fixed-capacity append-only buffer with a lock-free
// reservation path and an explicit block/unblock/clear lifecycle.
//
// Lifecycle: Writable (after unblock+clear) -> Sealing (blocked, writers
// draining) -> Readable (drained, is_reading()==true) -> Released (clear,
// back to Writable on next acquire).
type ByteBuffer struct {
	data     []byte
	capacity uint32

	// reserved is the next free offset. A value > capacity means the
	// buffer is sealed/blocked: no further reservations succeed.
	reserved atomic.Uint32
	// end is the offset at which the buffer was sealed.
	end atomic.Uint32
	// written is the count of bytes whose memcpy has completed.
	written atomic.Uint32

	// index is a slab identity assigned at creation; it stays the same
	// across the pool's Release/Acquire cycles.
	index uint64
}

// New allocates a ByteBuffer of the given capacity. It starts in the
// blocked (Released) state, matching the state a pool hands out before
// Unblock is called on acquire.
func New(capacity uint32, index uint64) *ByteBuffer {
	b := &ByteBuffer{data: make([]byte, capacity), capacity: capacity, index: index}
	b.reserved.Store(capacity + 1)
	b.end.Store(0)
	b.written.Store(0)
	return b
}

// Capacity returns the buffer's fixed capacity.
func (b *ByteBuffer) Capacity() uint32 { return b.capacity }

// Index returns the buffer's slab identity (stable across Acquire/Release cycles).
func (b *ByteBuffer) Index() uint64 { return b.index }

// Bytes returns the written region of the buffer. Only safe to call once
// the buffer is readable (IsReading); the caller owns the returned slice
// until the buffer is next cleared.
func (b *ByteBuffer) Bytes() []byte {
	return b.data[:b.written.Load()]
}

// casMinEnd atomically lowers end to candidate if candidate is smaller
// than the current value, so that concurrent sealers agree on the
// smallest observed cutoff.
func (b *ByteBuffer) casMinEnd(candidate uint32) {
	for {
		cur := b.end.Load()
		if candidate >= cur {
			return
		}
		if b.end.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

// Append reserves n bytes atomically and, if the reservation lands
// entirely within capacity, copies data in. The second return value
// reports whether this call's payload was actually copied: a reservation
// that crosses capacity seals the buffer without writing, and the caller
// must redirect the payload to a freshly swapped-in buffer.
func (b *ByteBuffer) Append(data []byte) (Outcome, bool, error) {
	n := uint32(len(data))
	if n == 0 {
		return Failed, false, ErrZeroLength
	}
	if n > b.capacity {
		return Failed, false, ErrOversized
	}

	for {
		prior := b.reserved.Load()
		if prior >= b.capacity {
			// Already exactly full, sealed or blocked.
			return Failed, false, nil
		}
		next := prior + n
		if !b.reserved.CompareAndSwap(prior, next) {
			continue
		}

		if next > b.capacity {
			// First writer to cross the line: seal, perform no write.
			b.casMinEnd(prior)
			return Full, false, nil
		}

		copy(b.data[prior:next], data)
		b.written.Add(n)
		if next == b.capacity {
			// Full-with-write: seal at capacity.
			b.casMinEnd(next)
			b.reserved.Store(b.capacity + 1)
			return Full, true, nil
		}
		return Inserted, true, nil
	}
}

// Block seals the buffer: no further reservations succeed after this
// returns. Safe to call concurrently with in-flight Append calls; it
// must correctly observe the smallest in-flight reservation cutoff.
// Single coordinator thread only.
func (b *ByteBuffer) Block() {
	prior := b.reserved.Swap(b.capacity + 1)
	if prior <= b.capacity {
		b.casMinEnd(prior)
	}
}

// Unblock restores the buffer to a writable state, reinstating reserved
// from end and resetting end to the sentinel. Single coordinator thread only.
func (b *ByteBuffer) Unblock() {
	end := b.end.Swap(b.capacity + 1)
	for {
		cur := b.reserved.Load()
		if cur <= b.capacity {
			return // already writable
		}
		if b.reserved.CompareAndSwap(cur, end) {
			return
		}
	}
}

// Clear resets all positions and leaves the buffer sealed (Released
// state), ready for the pool to hand out via Acquire (Unblock). Only
// valid when IsReading() is true.
func (b *ByteBuffer) Clear() {
	b.reserved.Store(b.capacity + 1)
	b.end.Store(0)
	b.written.Store(0)
}

// IsWriting reports whether any reserved byte has not yet completed memcpy.
func (b *ByteBuffer) IsWriting() bool {
	return b.written.Load() < b.end.Load()
}

// IsFull reports whether the buffer is sealed/blocked (reserved > capacity).
func (b *ByteBuffer) IsFull() bool {
	return b.reserved.Load() > b.capacity
}

// IsReading reports whether the buffer is sealed and all in-flight
// writes have completed.
func (b *ByteBuffer) IsReading() bool {
	return b.IsFull() && !b.IsWriting()
}

// IsEmpty reports whether no bytes have been written.
func (b *ByteBuffer) IsEmpty() bool {
	return b.written.Load() == 0
}
