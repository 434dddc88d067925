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
	"testing"
	"time"

	"github.com/xtaci/rankmux/buffer"
)

func TestTagStateEpochsStrictlyIncreasing(t *testing.T) {
	ts := newTagState(1, buffer.NewPool(4, 1024), 2)
	ts.mu.Lock()
	e0 := ts.nextEpochLocked()
	e1 := ts.nextEpochLocked()
	e2 := ts.nextEpochLocked()
	ts.mu.Unlock()

	if e0 != 0 || e1 != 1 || e2 != 2 {
		t.Fatalf("epochs = %d,%d,%d, want 0,1,2", e0, e1, e2)
	}
}

func TestTagStateWaitEpochDoesNotMissConcurrentComplete(t *testing.T) {
	ts := newTagState(1, buffer.NewPool(4, 1024), 2)

	done := make(chan struct{})
	go func() {
		ts.waitEpoch(0)
		close(done)
	}()

	// Give the waiter a chance to block on the condition variable before
	// completion is signalled, exercising the check-then-wait path rather
	// than the already-complete fast path.
	time.Sleep(10 * time.Millisecond)
	ts.markEpochComplete(0)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitEpoch missed a concurrent markEpochComplete")
	}
}

func TestTagStateWaitEpochObservesAlreadyCompleted(t *testing.T) {
	ts := newTagState(1, buffer.NewPool(4, 1024), 2)
	ts.markEpochComplete(3)

	done := make(chan struct{})
	go func() {
		ts.waitEpoch(3)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitEpoch did not observe a completion recorded before the call")
	}
}

func TestTagStateFinishedFlagIsMonotonic(t *testing.T) {
	ts := newTagState(1, buffer.NewPool(4, 1024), 2)
	if ts.isFinished() {
		t.Fatal("new TagState should not be finished")
	}
	ts.mu.Lock()
	ts.markFinishedLocked()
	ts.mu.Unlock()
	if !ts.isFinished() {
		t.Fatal("TagState should be finished after markFinishedLocked")
	}
}

// Only one controller thread waits on a given tag at a time in practice,
// but distinct epochs on the same TagState must complete independently:
// completing epoch 1 out of order must not satisfy a waiter blocked on
// epoch 0.
func TestTagStateDistinctEpochsCompleteIndependently(t *testing.T) {
	ts := newTagState(1, buffer.NewPool(4, 1024), 2)

	doneEarly := make(chan struct{})
	go func() {
		ts.waitEpoch(0)
		close(doneEarly)
	}()

	time.Sleep(10 * time.Millisecond)
	ts.markEpochComplete(1)

	select {
	case <-doneEarly:
		t.Fatal("waitEpoch(0) returned after only epoch 1 completed")
	case <-time.After(50 * time.Millisecond):
	}

	ts.markEpochComplete(0)
	select {
	case <-doneEarly:
	case <-time.After(2 * time.Second):
		t.Fatal("waitEpoch(0) did not return after epoch 0 completed")
	}
}
