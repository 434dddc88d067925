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
	"log"
	"sync"

	"github.com/xtaci/rankmux/queue"
	"github.com/xtaci/rankmux/wire"
)

// CallbackDispatch runs a pool of worker goroutines that pop delivered
// messages off the receive queue and act on them: data messages invoke
// the registered callback for their tag, control messages close out the
// matching epoch on the tag's TagState.
type CallbackDispatch struct {
	recvQueue *queue.BoundedBlockingQueue[wire.Received]
	lookup    func(tag int32) (*TagState, bool)
	workers   int
	wg        sync.WaitGroup
}

func newCallbackDispatch(recvQueue *queue.BoundedBlockingQueue[wire.Received], lookup func(tag int32) (*TagState, bool), workers int) *CallbackDispatch {
	if workers < 1 {
		workers = 1
	}
	return &CallbackDispatch{recvQueue: recvQueue, lookup: lookup, workers: workers}
}

// Run launches the worker goroutines and returns immediately; call Stop
// to wait for them to drain and exit.
func (cd *CallbackDispatch) Run() {
	for i := 0; i < cd.workers; i++ {
		cd.wg.Add(1)
		go cd.loop()
	}
}

// Stop blocks until every worker has observed a closed, drained queue.
func (cd *CallbackDispatch) Stop() { cd.wg.Wait() }

func (cd *CallbackDispatch) loop() {
	defer cd.wg.Done()
	for {
		msg, ok := cd.recvQueue.WaitPop()
		if !ok {
			return
		}
		cd.handle(msg)
	}
}

func (cd *CallbackDispatch) handle(msg wire.Received) {
	switch msg.Kind {
	case wire.KindControl:
		ts, ok := cd.lookup(msg.Epoch.Tag())
		if !ok {
			log.Printf("rankmux: dispatch: control message for unknown tag %d", msg.Epoch.Tag())
			return
		}
		ts.markEpochComplete(msg.Epoch.Epoch())
	case wire.KindData:
		ts, ok := cd.lookup(msg.Tag)
		if !ok {
			log.Printf("rankmux: dispatch: data message for unknown tag %d", msg.Tag)
			return
		}
		cd.invoke(ts, msg)
	}
}

// invoke calls the tag's callback with panic recovery: a panicking
// callback is logged and treated as terminal for this one message, it
// never brings down the dispatch worker.
func (cd *CallbackDispatch) invoke(ts *TagState, msg wire.Received) {
	ts.mu.Lock()
	cb := ts.callback
	ts.mu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rankmux: dispatch: callback for tag %d panicked: %v", msg.Tag, r)
		}
	}()
	cb(msg.Bytes, msg.Source)
}
