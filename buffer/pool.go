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

package buffer

import (
	"runtime"
	"sync/atomic"
)

// Pool is a bounded, reusable set of same-capacity ByteBuffers. Acquire
// hands out a buffer in the Writable state (Clear then Unblock); Release
// seals and clears the buffer and returns it to the pool. Safe under
// concurrent Acquire/Release.
//
// Every ByteBuffer the pool creates gets the next value of a
// monotonically increasing slab index. The index is fixed for the life
// of the buffer and does not change across Release/Acquire cycles, and
// SendBuffers compares buffers by pointer, so a recycled buffer is not
// distinguished from its earlier use (no ABA guard).
type Pool struct {
	capacity uint32
	free     chan *ByteBuffer
	nextIdx  atomic.Uint64
}

// NewPool creates a pool of size buffers, each of the given capacity,
// pre-allocated and ready for Acquire.
func NewPool(size int, capacity uint32) *Pool {
	p := &Pool{capacity: capacity, free: make(chan *ByteBuffer, size)}
	for i := 0; i < size; i++ {
		p.free <- New(capacity, p.nextIdx.Add(1))
	}
	return p
}

// Acquire takes a buffer from the pool, or allocates a fresh one if the
// pool is momentarily empty (the pool is a cache, not a hard cap: a
// producer burst must not deadlock waiting for a release).
func (p *Pool) Acquire() *ByteBuffer {
	select {
	case b := <-p.free:
		b.Clear()
		b.Unblock()
		return b
	default:
		b := New(p.capacity, p.nextIdx.Add(1))
		b.Clear()
		b.Unblock()
		return b
	}
}

// Release seals b and returns it to the pool. If the pool is at
// capacity the buffer is simply dropped for the garbage collector,
// since Pool is a reuse cache, not an accounting structure.
func (p *Pool) Release(b *ByteBuffer) {
	b.Block()
	for b.IsWriting() {
		// Single-coordinator caller: drain in-flight writers that
		// raced with Block before handing the buffer back.
		runtime.Gosched()
	}
	b.Clear()
	select {
	case p.free <- b:
	default:
	}
}

// Capacity returns the fixed capacity shared by all buffers in the pool.
func (p *Pool) Capacity() uint32 { return p.capacity }
