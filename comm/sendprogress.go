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
	"runtime"
	"time"

	"github.com/golang/snappy"
	"github.com/xtaci/rankmux/buffer"
	"github.com/xtaci/rankmux/queue"
	"github.com/xtaci/rankmux/transport"
	"github.com/xtaci/rankmux/wire"
)

const sendDrainBatch = 64

// sendItem is one unit of work handed from SendBuffers (via Layer) to
// SendProgress: either a sealed data buffer for a tag/destination, or a
// control (FOC) payload.
type sendItem struct {
	dst      int
	tag      int32
	dataBuf  *buffer.ByteBuffer // non-nil for data messages; owns the pool buffer
	ctrlPayload []byte          // non-nil for control messages
}

type inflightSend struct {
	req     transport.Request
	dataBuf *buffer.ByteBuffer // released to pool on completion, if non-nil
}

// SendProgress is the single thread draining the send queue, issuing
// non-blocking/buffered sends and reaping completions.
type SendProgress struct {
	tr         transport.Transport
	sendQueue  *queue.BoundedBlockingQueue[sendItem]
	recvQueue  *queue.BoundedBlockingQueue[wire.Received]
	localCtrl  chan wire.TaggedEpoch
	pool       *buffer.Pool
	compress   bool
	stats      *layerStats
	failure    *failureFlag
	done       chan struct{}
}

func newSendProgress(tr transport.Transport, sendQueue *queue.BoundedBlockingQueue[sendItem], recvQueue *queue.BoundedBlockingQueue[wire.Received], localCtrl chan wire.TaggedEpoch, pool *buffer.Pool, compress bool, stats *layerStats, failure *failureFlag) *SendProgress {
	return &SendProgress{
		tr: tr, sendQueue: sendQueue, recvQueue: recvQueue, localCtrl: localCtrl,
		pool: pool, compress: compress, stats: stats, failure: failure,
		done: make(chan struct{}),
	}
}

// Run drains the send queue until it is closed and drained and no sends
// remain in flight. Intended to run on its own goroutine.
func (sp *SendProgress) Run() {
	defer close(sp.done)
	inflight := make([]inflightSend, 0, 32)

	for {
		drained := 0
		for i := 0; i < sendDrainBatch; i++ {
			item, ok := sp.sendQueue.TryPop()
			if !ok {
				break
			}
			drained++
			if req, buf, err := sp.dispatch(item); err != nil {
				sp.fail("send-progress dispatch", err)
			} else if req != nil {
				inflight = append(inflight, inflightSend{req: req, dataBuf: buf})
			}
		}

		inflight = sp.reap(inflight)

		if drained == 0 && len(inflight) == 0 && !sp.sendQueue.CanPop() {
			return
		}
		if drained == 0 {
			runtime.Gosched()
			time.Sleep(time.Microsecond)
		}
	}
}

// Stop blocks until Run has returned.
func (sp *SendProgress) Stop() { <-sp.done }

// dispatch issues the transport operation (or the self-loopback bypass)
// for one item and returns a pollable request to reap, if any.
func (sp *SendProgress) dispatch(item sendItem) (transport.Request, *buffer.ByteBuffer, error) {
	if item.dst == sp.tr.Rank() {
		return nil, nil, sp.dispatchLocal(item)
	}

	if item.ctrlPayload != nil {
		if err := sp.tr.BSend(item.ctrlPayload, item.dst, wire.ControlTag); err != nil {
			return nil, nil, err
		}
		sp.stats.addControlSent()
		return nil, nil, nil
	}

	payload := item.dataBuf.Bytes()
	if sp.compress {
		payload = snappy.Encode(nil, payload)
	}
	req, err := sp.tr.ISend(payload, item.dst, item.tag)
	if err != nil {
		return nil, nil, err
	}
	sp.stats.addDataSent(len(payload))
	return req, item.dataBuf, nil
}

func (sp *SendProgress) dispatchLocal(item sendItem) error {
	if item.ctrlPayload != nil {
		te, err := wire.DecodeControlPayload(item.ctrlPayload)
		if err != nil {
			return err
		}
		sp.localCtrl <- te
		sp.stats.addControlSent()
		return nil
	}

	bytesCopy := append([]byte(nil), item.dataBuf.Bytes()...)
	sp.pool.Release(item.dataBuf)
	sp.stats.addDataSent(len(bytesCopy))
	if sp.recvQueue.WaitPush(wire.Received{Kind: wire.KindData, Tag: item.tag, Source: sp.tr.Rank(), Bytes: bytesCopy}) == queue.Rejected {
		return errShuttingDown
	}
	return nil
}

// reap tests every in-flight request, releasing data buffers and
// dropping entries that have completed, and returns the still-pending subset.
func (sp *SendProgress) reap(inflight []inflightSend) []inflightSend {
	remaining := inflight[:0]
	for _, f := range inflight {
		done, err := sp.tr.Test(f.req)
		if err != nil {
			sp.fail("send-progress reap", err)
			continue
		}
		if !done {
			remaining = append(remaining, f)
			continue
		}
		if f.dataBuf != nil {
			sp.pool.Release(f.dataBuf)
		}
	}
	return remaining
}

func (sp *SendProgress) fail(op string, err error) {
	sp.failure.set(wrapErr(op, TransportFailure, err))
	log.Printf("rankmux: %s: %v", op, err)
}
