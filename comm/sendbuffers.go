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

package comm

import (
	"runtime"
	"sync/atomic"

	"github.com/xtaci/rankmux/buffer"
)

// SendBuffers holds, for a single tag, the current append target buffer
// for every destination rank. Append appends to the current buffer for
// dst, swapping in a fresh one when the current one seals; FlushRank
// forces a swap regardless of fullness.
type SendBuffers struct {
	pool    *buffer.Pool
	current []atomic.Pointer[buffer.ByteBuffer]
}

// NewSendBuffers allocates per-rank slots for a communicator of the given
// size, backed by pool for fresh buffers.
func NewSendBuffers(pool *buffer.Pool, size int) *SendBuffers {
	return &SendBuffers{pool: pool, current: make([]atomic.Pointer[buffer.ByteBuffer], size)}
}

// Append copies data into the current buffer for dst, swapping in a
// fresh buffer when the current one seals. If a buffer sealed as a
// result of this call, it is returned as sealed so the caller (the
// façade's Send path) can hand it to the send queue.
func (sb *SendBuffers) Append(data []byte, dst int) (sealed *buffer.ByteBuffer, err error) {
	for {
		cur := sb.current[dst].Load()
		if cur == nil {
			fresh := sb.pool.Acquire()
			if sb.current[dst].CompareAndSwap(nil, fresh) {
				cur = fresh
			} else {
				sb.pool.Release(fresh)
				continue
			}
		}

		outcome, wrote, appendErr := cur.Append(data)
		if appendErr != nil {
			return nil, appendErr
		}

		switch outcome {
		case buffer.Inserted:
			return nil, nil
		case buffer.Failed:
			// Another append sealed cur concurrently; the new current
			// buffer may not be installed yet. Spin until it is.
			runtime.Gosched()
			continue
		case buffer.Full:
			fresh := sb.pool.Acquire()
			if !sb.current[dst].CompareAndSwap(cur, fresh) {
				// A concurrent FlushRank swapped cur out and now owns it:
				// bytes this call wrote leave with that flush, an
				// overflowing payload is retried on the new current buffer.
				sb.pool.Release(fresh)
				if wrote {
					return nil, nil
				}
				continue
			}
			if wrote {
				for cur.IsWriting() {
					runtime.Gosched()
				}
				return cur, nil
			}
			// Overflowing reservation: cur got no bytes, redirect this
			// payload onto the buffer we just installed.
			continue
		}
	}
}

// FlushRank swaps the current buffer for dst with a freshly acquired
// empty one and returns the old buffer sealed, or nil if it was empty.
func (sb *SendBuffers) FlushRank(dst int) *buffer.ByteBuffer {
	fresh := sb.pool.Acquire()
	old := sb.current[dst].Swap(fresh)
	if old == nil {
		return nil
	}
	old.Block()
	for old.IsWriting() {
		runtime.Gosched()
	}
	if old.IsEmpty() {
		sb.pool.Release(old)
		return nil
	}
	return old
}

// Size returns the number of destination slots (the communicator size).
func (sb *SendBuffers) Size() int { return len(sb.current) }
