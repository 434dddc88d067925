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

import (
	"sync"
	"testing"
	"time"
)

func TestTryPushRejectedAfterDisable(t *testing.T) {
	q := NewBoundedBlockingQueue[int](4)
	q.DisablePush()
	if r := q.TryPush(1); r != Rejected {
		t.Fatalf("expected Rejected, got %v", r)
	}
}

func TestWaitPopDrainsThenReturnsFalse(t *testing.T) {
	q := NewBoundedBlockingQueue[int](4)
	q.TryPush(1)
	q.TryPush(2)
	q.DisablePush()

	v, ok := q.WaitPop()
	if !ok || v != 1 {
		t.Fatalf("expected (1,true), got (%v,%v)", v, ok)
	}
	v, ok = q.WaitPop()
	if !ok || v != 2 {
		t.Fatalf("expected (2,true), got (%v,%v)", v, ok)
	}
	_, ok = q.WaitPop()
	if ok {
		t.Fatalf("expected drained queue to return false")
	}
}

func TestWaitPopBlocksUntilPush(t *testing.T) {
	q := NewBoundedBlockingQueue[int](4)
	done := make(chan int)
	go func() {
		v, ok := q.WaitPop()
		if !ok {
			t.Errorf("expected item, got closed")
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	q.TryPush(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitPop did not unblock")
	}
}

func TestWaitPushBlocksWhenFull(t *testing.T) {
	q := NewBoundedBlockingQueue[int](1)
	q.TryPush(1)

	pushed := make(chan PushResult, 1)
	go func() {
		pushed <- q.WaitPush(2)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-pushed:
		t.Fatalf("WaitPush should still be blocked while queue is full")
	default:
	}

	q.WaitPop()

	select {
	case r := <-pushed:
		if r != Ok {
			t.Fatalf("expected Ok once room freed, got %v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitPush did not unblock after pop")
	}
}

func TestDisablePushWakesAllWaiters(t *testing.T) {
	q := NewBoundedBlockingQueue[int](1)
	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.WaitPop()
			results <- ok
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.DisablePush()
	wg.Wait()
	close(results)
	for ok := range results {
		if ok {
			t.Fatalf("expected all waiters to observe drained empty queue")
		}
	}
}

func TestFIFOOrderingSingleProducer(t *testing.T) {
	q := NewBoundedBlockingQueue[int](16)
	for i := 0; i < 10; i++ {
		q.TryPush(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, v, ok)
		}
	}
}
