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

// Package queue implements the bounded, blocking MPMC queue used to hand
// work between producers, SendProgress, RecvProgress and the callback
// dispatch workers.
package queue

const (
	ringMin = 8
	ringExp = 1024
)

// ring is a generic circular buffer with amortized constant time push/pop
// and automatic growth, used as BoundedBlockingQueue's backing storage.
type ring[T any] struct {
	head     int
	tail     int
	elements []T
}

func newRing[T any](size int) *ring[T] {
	if size <= ringMin {
		size = ringMin
	}
	return &ring[T]{elements: make([]T, size)}
}

func (r *ring[T]) len() int {
	if r.head <= r.tail {
		return r.tail - r.head
	}
	return len(r.elements[r.head:]) + len(r.elements[:r.tail])
}

func (r *ring[T]) isFull() bool {
	return (r.tail+1)%len(r.elements) == r.head
}

func (r *ring[T]) push(v T) {
	if r.isFull() {
		r.grow()
	}
	r.elements[r.tail] = v
	r.tail = (r.tail + 1) % len(r.elements)
}

func (r *ring[T]) pop() (T, bool) {
	var zero T
	if r.len() == 0 {
		return zero, false
	}
	v := r.elements[r.head]
	r.elements[r.head] = zero
	r.head = (r.head + 1) % len(r.elements)
	return v, true
}

// grow doubles capacity below ringExp, then grows by 10% beyond it.
func (r *ring[T]) grow() {
	n := r.len()
	cur := len(r.elements)
	var size int
	switch {
	case cur < ringMin:
		size = ringMin
	case cur < ringExp:
		size = cur * 2
	default:
		size = cur + (cur+9)/10
	}
	fresh := make([]T, size)
	if r.head < r.tail {
		copy(fresh, r.elements[r.head:r.tail])
	} else {
		k := copy(fresh, r.elements[r.head:])
		copy(fresh[k:], r.elements[:r.tail])
	}
	r.head = 0
	r.tail = n
	r.elements = fresh
}
