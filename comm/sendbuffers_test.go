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
	"sync"
	"testing"

	"github.com/xtaci/rankmux/buffer"
)

func TestSendBuffersAppendAccumulatesUntilFlush(t *testing.T) {
	pool := buffer.NewPool(4, 64)
	sb := NewSendBuffers(pool, 2)

	sealed, err := sb.Append([]byte("hello"), 1)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if sealed != nil {
		t.Fatalf("small append should not seal a buffer, got sealed=%v", sealed)
	}

	sealed = sb.FlushRank(1)
	if sealed == nil {
		t.Fatal("FlushRank should return the buffer holding \"hello\"")
	}
	if string(sealed.Bytes()) != "hello" {
		t.Fatalf("sealed bytes = %q, want %q", sealed.Bytes(), "hello")
	}
}

func TestSendBuffersFlushEmptyRankReturnsNil(t *testing.T) {
	pool := buffer.NewPool(4, 64)
	sb := NewSendBuffers(pool, 2)
	if sealed := sb.FlushRank(0); sealed != nil {
		t.Fatalf("FlushRank on an untouched rank should return nil, got %v", sealed)
	}
}

func TestSendBuffersSealsOnExactFillAndSwapsInFreshBuffer(t *testing.T) {
	pool := buffer.NewPool(4, 8)
	sb := NewSendBuffers(pool, 1)

	// First append exactly fills the 8-byte buffer (Full-with-write).
	sealed, err := sb.Append([]byte("12345678"), 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if sealed == nil {
		t.Fatal("an append that exactly fills the buffer should seal it")
	}
	if string(sealed.Bytes()) != "12345678" {
		t.Fatalf("sealed bytes = %q, want %q", sealed.Bytes(), "12345678")
	}

	// The next append lands on a freshly installed buffer.
	sealed2, err := sb.Append([]byte("ab"), 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if sealed2 != nil {
		t.Fatalf("a small append on a fresh buffer should not seal, got %v", sealed2)
	}
	final := sb.FlushRank(0)
	if final == nil || string(final.Bytes()) != "ab" {
		t.Fatalf("expected flushed buffer to contain %q, got %v", "ab", final)
	}
}

func TestSendBuffersConcurrentAppendsToDistinctRanksDontCollide(t *testing.T) {
	pool := buffer.NewPool(8, 4096)
	const ranks = 4
	sb := NewSendBuffers(pool, ranks)

	var wg sync.WaitGroup
	for r := 0; r < ranks; r++ {
		rank := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := sb.Append([]byte{byte(rank)}, rank); err != nil {
					t.Errorf("rank %d append: %v", rank, err)
				}
			}
		}()
	}
	wg.Wait()

	for r := 0; r < ranks; r++ {
		sealed := sb.FlushRank(r)
		if sealed == nil {
			t.Fatalf("rank %d: expected a sealed buffer after 100 appends", r)
		}
		for _, b := range sealed.Bytes() {
			if int(b) != r {
				t.Fatalf("rank %d: buffer contains byte from rank %d", r, b)
			}
		}
		if len(sealed.Bytes()) != 100 {
			t.Fatalf("rank %d: sealed buffer has %d bytes, want 100", r, len(sealed.Bytes()))
		}
	}
}
