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

	"github.com/pkg/errors"
)

// ErrAllocSize is returned when Get/Put is asked to handle a size outside
// the allocator's supported range, or Put is given a slice whose cap isn't
// a power of two bucket.
var ErrAllocSize = errors.New("allocator: incorrect buffer size")

var debruijnPos = [...]byte{0, 9, 1, 10, 13, 21, 2, 29, 11, 14, 16, 18, 22, 25, 3, 30, 8, 12, 20, 28, 15, 17, 24, 7, 19, 27, 23, 6, 26, 5, 4, 31}

// Allocator is a size-classed []byte pool for receive-side payload
// buffers: RecvProgress sizes a buffer per probed message, so a single
// fixed-capacity pool is the wrong shape; instead we keep one sync.Pool
// per power-of-two bucket, wasting no more than 50% per allocation.
type Allocator struct {
	buckets []sync.Pool
}

// NewAllocator builds an allocator for payloads up to 1<<maxBits bytes.
func NewAllocator(maxBits int) *Allocator {
	a := &Allocator{buckets: make([]sync.Pool, maxBits+1)}
	for k := range a.buckets {
		i := k
		a.buckets[k].New = func() any {
			b := make([]byte, 1<<uint(i))
			return &b
		}
	}
	return a
}

// Get returns a buffer with length exactly size from the smallest bucket
// that can hold it.
func (a *Allocator) Get(size int) (*[]byte, error) {
	if size <= 0 || size > 1<<uint(len(a.buckets)-1) {
		return nil, ErrAllocSize
	}
	bits := msb(size)
	var p *[]byte
	if size == 1<<bits {
		p = a.buckets[bits].Get().(*[]byte)
	} else {
		p = a.buckets[bits+1].Get().(*[]byte)
	}
	*p = (*p)[:size]
	return p, nil
}

// Put returns a buffer to the pool. cap(*p) must be exactly a bucket size.
func (a *Allocator) Put(p *[]byte) error {
	if p == nil {
		return ErrAllocSize
	}
	c := cap(*p)
	if c == 0 || c > 1<<uint(len(a.buckets)-1) {
		return ErrAllocSize
	}
	bits := msb(c)
	if c != 1<<bits {
		return ErrAllocSize
	}
	*p = (*p)[:cap(*p)]
	a.buckets[bits].Put(p)
	return nil
}

// msb returns the position of the most significant set bit, used to pick
// the smallest power-of-two bucket that contains size.
func msb(size int) byte {
	v := uint32(size)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return debruijnPos[(v*0x07C4ACDD)>>27]
}
