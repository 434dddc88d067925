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
	"sync"
	"testing"
)

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPool(2, 64)
	b := p.Acquire()
	if b.IsFull() {
		t.Fatalf("acquired buffer should be writable")
	}
	if _, _, err := b.Append([]byte("payload")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	p.Release(b)
	if !b.IsFull() {
		t.Fatalf("released buffer should be sealed")
	}
}

func TestPoolAcquiredBufferHasSlabIndex(t *testing.T) {
	p := NewPool(1, 16)
	first := p.Acquire()
	firstIdx := first.Index()
	p.Release(first)

	second := p.Acquire()
	// The pool is free to hand back the very same slot, and Index is
	// stable across Release/Acquire cycles, so only a valid (non-zero)
	// index is checked here.
	if second.Index() == 0 {
		t.Fatalf("expected a valid slab index")
	}
	_ = firstIdx
}

func TestPoolConcurrentAcquireRelease(t *testing.T) {
	p := NewPool(4, 32)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := p.Acquire()
			b.Append([]byte("x"))
			p.Release(b)
		}()
	}
	wg.Wait()
}

func TestAllocatorGetPutRoundTrip(t *testing.T) {
	a := NewAllocator(16)
	p, err := a.Get(100)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(*p) != 100 {
		t.Fatalf("expected length 100, got %d", len(*p))
	}
	if err := a.Put(p); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestAllocatorRejectsOutOfRange(t *testing.T) {
	a := NewAllocator(8)
	if _, err := a.Get(0); err == nil {
		t.Fatalf("expected error for zero size")
	}
	if _, err := a.Get(1 << 20); err == nil {
		t.Fatalf("expected error for oversized request")
	}
}
