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

	"github.com/xtaci/rankmux/buffer"
)

// CallbackFunc is invoked for every data message received for a tag.
// Callbacks run on a dispatch worker goroutine and may run concurrently
// with each other if more than one dispatch worker is configured; making
// a callback safe for concurrent invocation is the application's
// responsibility.
type CallbackFunc func(data []byte, sourceRank int)

// TagState holds the per-tag metadata: the epoch counter used to
// disambiguate flush rounds, the finished flag, the condition variable
// waiters block on, and the tag's SendBuffers. Created on first
// registration, never destroyed before finalize.
type TagState struct {
	mu   sync.Mutex
	cond *sync.Cond

	tag      int32
	callback CallbackFunc

	nextEpoch uint32
	finished  bool

	// completed records epochs whose FOC barrier has closed, as reported
	// by CallbackDispatch under this same mutex. Waiters check membership
	// under the lock before sleeping on cond, so a completion that lands
	// between the check and the wait is never missed.
	completed map[uint32]struct{}

	Send *SendBuffers
}

func newTagState(tag int32, pool *buffer.Pool, commSize int) *TagState {
	ts := &TagState{
		tag:       tag,
		completed: make(map[uint32]struct{}),
		Send:      NewSendBuffers(pool, commSize),
	}
	ts.cond = sync.NewCond(&ts.mu)
	return ts
}

// nextEpochLocked allocates and returns the next epoch for a flush/finish
// call. Caller must hold ts.mu.
func (ts *TagState) nextEpochLocked() uint32 {
	e := ts.nextEpoch
	ts.nextEpoch++
	return e
}

// markFinishedLocked sets the finished flag; idempotent. Caller must hold ts.mu.
func (ts *TagState) markFinishedLocked() {
	ts.finished = true
}

// isFinished reports whether Finish has already been called for this tag.
func (ts *TagState) isFinished() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.finished
}

// markEpochComplete records that epoch's FOC barrier has closed and wakes
// any waiter blocked on it. Called by CallbackDispatch when it pops the
// synthetic control message for this tag off the receive queue.
func (ts *TagState) markEpochComplete(epoch uint32) {
	ts.mu.Lock()
	ts.completed[epoch] = struct{}{}
	ts.cond.Broadcast()
	ts.mu.Unlock()
}

// waitEpoch blocks until epoch has been marked complete, then clears the
// record so the completed set doesn't grow without bound.
func (ts *TagState) waitEpoch(epoch uint32) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for {
		if _, done := ts.completed[epoch]; done {
			delete(ts.completed, epoch)
			return
		}
		ts.cond.Wait()
	}
}
