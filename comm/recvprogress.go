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
	"errors"
	"log"
	"runtime"
	"time"

	"github.com/golang/snappy"
	"github.com/xtaci/rankmux/buffer"
	"github.com/xtaci/rankmux/queue"
	"github.com/xtaci/rankmux/transport"
	"github.com/xtaci/rankmux/wire"
)

// errShuttingDown is returned internally when an enqueue races a closed queue.
var errShuttingDown = errors.New("comm: queue closed during shutdown")

// terminationEpoch is the epoch number finish_all's single CONTROL flush
// always uses: the CONTROL tag's TagState never issues any other flush.
const terminationEpoch uint32 = 0

type inflightRecv struct {
	req  transport.Request
	buf  *[]byte
	info transport.ProbeInfo
}

// RecvProgress is the single thread probing the transport, posting
// receives and tracking FOC completion per epoch. EpochPending — the
// countdown to zero peers still owing a FOC for a given TaggedEpoch — is
// owned exclusively by this goroutine.
type RecvProgress struct {
	tr        transport.Transport
	recvQueue *queue.BoundedBlockingQueue[wire.Received]
	localCtrl chan wire.TaggedEpoch
	alloc     *buffer.Allocator
	compress  bool
	stats     *layerStats
	failure   *failureFlag

	pending    map[wire.TaggedEpoch]int
	terminated bool
	done       chan struct{}
}

func newRecvProgress(tr transport.Transport, recvQueue *queue.BoundedBlockingQueue[wire.Received], localCtrl chan wire.TaggedEpoch, alloc *buffer.Allocator, compress bool, stats *layerStats, failure *failureFlag) *RecvProgress {
	rp := &RecvProgress{
		tr: tr, recvQueue: recvQueue, localCtrl: localCtrl, alloc: alloc,
		compress: compress, stats: stats, failure: failure,
		pending: make(map[wire.TaggedEpoch]int),
		done:    make(chan struct{}),
	}
	// Seed the application-termination epoch: finish_all's single flush
	// on CONTROL always allocates epoch 0, so the countdown can be primed
	// before that flush is ever issued.
	rp.pending[wire.Pack(wire.ControlTag, terminationEpoch)] = tr.Size()
	return rp
}

// Run probes for incoming messages until the application-termination
// epoch's countdown reaches zero and no receives remain in flight.
func (rp *RecvProgress) Run() {
	defer close(rp.done)
	inflight := make([]inflightRecv, 0, 32)

	for {
		rp.drainLocalControl()

		if info, ok, err := rp.tr.IProbe(); err != nil {
			rp.fail("recv-progress probe", err)
		} else if ok {
			p, allocErr := rp.alloc.Get(info.Size)
			if allocErr != nil {
				rp.fail("recv-progress alloc", allocErr)
			} else {
				req, recvErr := rp.tr.IRecv(*p, info.Source, info.Tag)
				if recvErr != nil {
					rp.fail("recv-progress irecv", recvErr)
					rp.alloc.Put(p)
				} else {
					inflight = append(inflight, inflightRecv{req: req, buf: p, info: info})
				}
			}
		}

		inflight = rp.reap(inflight)

		if rp.terminated && len(inflight) == 0 {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Microsecond)
	}
}

// Stop blocks until Run has returned.
func (rp *RecvProgress) Stop() { <-rp.done }

// drainLocalControl folds self-addressed FOC messages (delivered by
// SendProgress's loopback bypass) into the same countdown bookkeeping a
// real transport receive would produce.
func (rp *RecvProgress) drainLocalControl() {
	for {
		select {
		case te := <-rp.localCtrl:
			rp.countDown(te)
		default:
			return
		}
	}
}

func (rp *RecvProgress) reap(inflight []inflightRecv) []inflightRecv {
	remaining := inflight[:0]
	for _, f := range inflight {
		done, err := rp.tr.Test(f.req)
		if err != nil {
			rp.fail("recv-progress reap", err)
			continue
		}
		if !done {
			remaining = append(remaining, f)
			continue
		}
		rp.deliver(f)
	}
	return remaining
}

func (rp *RecvProgress) deliver(f inflightRecv) {
	if f.info.Tag == wire.ControlTag {
		te, err := wire.DecodeControlPayload(*f.buf)
		rp.alloc.Put(f.buf)
		if err != nil {
			rp.fail("recv-progress decode control", err)
			return
		}
		rp.stats.addControlRecv()
		rp.countDown(te)
		return
	}

	payload := append([]byte(nil), *f.buf...)
	rp.alloc.Put(f.buf)
	if rp.compress {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			rp.fail("recv-progress snappy decode", err)
			return
		}
		payload = decoded
	}
	rp.stats.addDataRecv(len(payload))
	rp.recvQueue.WaitPush(wire.Received{Kind: wire.KindData, Tag: f.info.Tag, Source: f.info.Source, Bytes: payload})
}

// countDown decrements the pending count for te, and once every peer has
// been heard from, removes the entry and enqueues a single synthetic
// control message so CallbackDispatch can wake the matching waiter. A
// completed entry is deleted rather than left at zero, so completion of
// the application-termination key is reported here directly rather than
// by having Run re-read the map afterward.
func (rp *RecvProgress) countDown(te wire.TaggedEpoch) {
	n, ok := rp.pending[te]
	if !ok {
		n = rp.tr.Size()
	}
	n--
	if n > 0 {
		rp.pending[te] = n
		return
	}
	delete(rp.pending, te)
	rp.recvQueue.WaitPush(wire.Received{Kind: wire.KindControl, Epoch: te})
	if te == wire.Pack(wire.ControlTag, terminationEpoch) {
		rp.terminated = true
		rp.recvQueue.DisablePush()
	}
}

func (rp *RecvProgress) fail(op string, err error) {
	rp.failure.set(wrapErr(op, TransportFailure, err))
	log.Printf("rankmux: %s: %v", op, err)
}
