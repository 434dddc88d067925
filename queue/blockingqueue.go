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

package queue

import "sync"

// PushResult is the outcome of a push attempt.
type PushResult int

const (
	Ok PushResult = iota
	Rejected
)

// state mirrors the Open -> PushDisabled -> Drained lifecycle.
type state int

const (
	stateOpen state = iota
	statePushDisabled
	stateDrained
)

// BoundedBlockingQueue is an MPMC queue with a bounded capacity, blocking
// push/pop, and an explicit push-disable/drain lifecycle. FIFO ordering
// is preserved for any single producer; ordering across producers is
// unspecified.
type BoundedBlockingQueue[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond
	r        *ring[T]
	capacity int
	st       state
}

// NewBoundedBlockingQueue creates a queue that holds up to capacity items.
func NewBoundedBlockingQueue[T any](capacity int) *BoundedBlockingQueue[T] {
	q := &BoundedBlockingQueue[T]{r: newRing[T](capacity), capacity: capacity}
	q.notEmpty.L = &q.mu
	q.notFull.L = &q.mu
	return q
}

// TryPush attempts a non-blocking push. It is Rejected if the queue is
// push-disabled or currently at capacity.
func (q *BoundedBlockingQueue[T]) TryPush(v T) PushResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.st != stateOpen {
		return Rejected
	}
	if q.r.len() >= q.capacity {
		return Rejected
	}
	q.r.push(v)
	q.notEmpty.Signal()
	return Ok
}

// WaitPush blocks while the queue is open and full, then pushes. It
// returns Rejected iff the queue became push-disabled before room freed up.
func (q *BoundedBlockingQueue[T]) WaitPush(v T) PushResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.st == stateOpen && q.r.len() >= q.capacity {
		q.notFull.Wait()
	}
	if q.st != stateOpen {
		return Rejected
	}
	q.r.push(v)
	q.notEmpty.Signal()
	return Ok
}

// WaitPop blocks while the queue is Open and empty. It returns (zero,
// false) once the queue is push-disabled and drained.
func (q *BoundedBlockingQueue[T]) WaitPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.st == stateOpen && q.r.len() == 0 {
		q.notEmpty.Wait()
	}
	v, ok := q.r.pop()
	if q.r.len() < q.capacity {
		q.notFull.Signal()
	}
	if !ok && q.st != stateOpen {
		q.st = stateDrained
	}
	return v, ok
}

// TryPop is a non-blocking pop: (zero, false) if currently empty, whether
// or not the queue has been disabled.
func (q *BoundedBlockingQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.r.pop()
	if ok && q.r.len() < q.capacity {
		q.notFull.Signal()
	}
	return v, ok
}

// DisablePush idempotently transitions the queue to PushDisabled and
// wakes every blocked pop/push waiter so they can observe the new state.
func (q *BoundedBlockingQueue[T]) DisablePush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.st == stateOpen {
		q.st = statePushDisabled
	}
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// CanPush reports whether the queue currently accepts pushes.
func (q *BoundedBlockingQueue[T]) CanPush() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.st == stateOpen
}

// CanPop reports whether a pop could still (now or eventually) return an item.
func (q *BoundedBlockingQueue[T]) CanPop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.st == stateOpen || q.r.len() > 0
}

// Len returns the current queue depth (for stats/metrics).
func (q *BoundedBlockingQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.r.len()
}
