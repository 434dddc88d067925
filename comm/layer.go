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

// Package comm implements the point-to-point communication layer: a
// façade over a bounded rank-addressed transport providing buffered,
// per-tag sends, callback-driven receives, and flush/finish barriers
// built from epoch-tagged control messages rather than any collective
// primitive.
package comm

import (
	"sync"
	"sync/atomic"

	"github.com/xtaci/rankmux/buffer"
	"github.com/xtaci/rankmux/queue"
	"github.com/xtaci/rankmux/stats"
	"github.com/xtaci/rankmux/transport"
	"github.com/xtaci/rankmux/wire"
)

const (
	defaultBufferCapacity = 64 * 1024
	defaultPoolBuffers    = 256
	defaultQueueDepth     = 1024
	defaultAllocMaxBits   = 24 // 16 MiB ceiling per received message
	defaultDispatchers    = 1
)

// Options configures a Layer at construction time. The zero value of
// every field selects a sane default.
type Options struct {
	// BufferCapacity is the size in bytes of each batching ByteBuffer.
	BufferCapacity uint32
	// PoolBuffers is the number of ByteBuffers kept warm in the pool.
	PoolBuffers int
	// QueueDepth bounds the send and receive BoundedBlockingQueues.
	QueueDepth int
	// Dispatchers is the number of CallbackDispatch worker goroutines.
	Dispatchers int
	// Compress enables snappy compression of data payloads on the wire.
	Compress bool
}

func (o Options) withDefaults() Options {
	if o.BufferCapacity == 0 {
		o.BufferCapacity = defaultBufferCapacity
	}
	if o.PoolBuffers == 0 {
		o.PoolBuffers = defaultPoolBuffers
	}
	if o.QueueDepth == 0 {
		o.QueueDepth = defaultQueueDepth
	}
	if o.Dispatchers == 0 {
		o.Dispatchers = defaultDispatchers
	}
	return o
}

// Layer is the public communication layer façade: one instance wraps a
// single transport.Transport for the lifetime of the process.
type Layer struct {
	tr   transport.Transport
	pool *buffer.Pool
	opts Options

	registryMu sync.Mutex
	registry   map[int32]*TagState

	sendQueue *queue.BoundedBlockingQueue[sendItem]
	recvQueue *queue.BoundedBlockingQueue[wire.Received]
	localCtrl chan wire.TaggedEpoch

	send     *SendProgress
	recv     *RecvProgress
	dispatch *CallbackDispatch

	stats   layerStats
	failure failureFlag

	finalizeOnce sync.Once
	finalized    atomic.Bool
}

// New constructs and starts a Layer over tr. The control tag's TagState
// is pre-registered internally; application tags are added via
// RegisterCallback.
func New(tr transport.Transport, opts Options) *Layer {
	opts = opts.withDefaults()

	l := &Layer{
		tr:        tr,
		pool:      buffer.NewPool(opts.PoolBuffers, opts.BufferCapacity),
		opts:      opts,
		registry:  make(map[int32]*TagState),
		sendQueue: queue.NewBoundedBlockingQueue[sendItem](opts.QueueDepth),
		recvQueue: queue.NewBoundedBlockingQueue[wire.Received](opts.QueueDepth),
		localCtrl: make(chan wire.TaggedEpoch, tr.Size()),
	}

	l.registry[wire.ControlTag] = newTagState(wire.ControlTag, l.pool, tr.Size())

	l.send = newSendProgress(tr, l.sendQueue, l.recvQueue, l.localCtrl, l.pool, opts.Compress, &l.stats, &l.failure)
	l.recv = newRecvProgress(tr, l.recvQueue, l.localCtrl, buffer.NewAllocator(defaultAllocMaxBits), opts.Compress, &l.stats, &l.failure)
	l.dispatch = newCallbackDispatch(l.recvQueue, l.lookupTag, opts.Dispatchers)

	go l.send.Run()
	go l.recv.Run()
	l.dispatch.Run()

	return l
}

func (l *Layer) lookupTag(tag int32) (*TagState, bool) {
	l.registryMu.Lock()
	defer l.registryMu.Unlock()
	ts, ok := l.registry[tag]
	return ts, ok
}

// CommSize returns the fixed communicator size.
func (l *Layer) CommSize() int { return l.tr.Size() }

// CommRank returns this process's rank.
func (l *Layer) CommRank() int { return l.tr.Rank() }

// Stats implements stats.Source.
func (l *Layer) Stats() stats.Snapshot {
	return l.stats.snapshot(l.sendQueue.Len(), l.recvQueue.Len())
}

// RegisterCallback associates fn with tag: every data message received
// for tag is subsequently dispatched to fn. tag must be greater than
// the reserved control tag and must not already be registered.
func (l *Layer) RegisterCallback(tag int32, fn CallbackFunc) error {
	if err := l.checkAlive(); err != nil {
		return err
	}
	if tag == wire.ControlTag {
		return newErr("register", InvalidArgument, "tag is reserved for control messages")
	}
	if tag < wire.ControlTag {
		return newErr("register", InvalidArgument, "tag must be greater than the control tag")
	}
	if fn == nil {
		return newErr("register", InvalidArgument, "callback must not be nil")
	}

	l.registryMu.Lock()
	defer l.registryMu.Unlock()
	if _, exists := l.registry[tag]; exists {
		return newErr("register", InvalidArgument, "tag already registered")
	}
	ts := newTagState(tag, l.pool, l.tr.Size())
	ts.callback = fn
	l.registry[tag] = ts
	return nil
}

// Send appends data to the current batching buffer addressed to dst for
// tag, enqueuing the buffer for transmission if it seals as a result.
func (l *Layer) Send(data []byte, dst int, tag int32) error {
	if err := l.checkAlive(); err != nil {
		return err
	}
	if len(data) == 0 {
		return newErr("send", InvalidArgument, "zero-length payload")
	}
	if dst < 0 || dst >= l.tr.Size() {
		return newErr("send", InvalidArgument, "destination rank out of range")
	}

	ts, err := l.tagFor("send", tag)
	if err != nil {
		return err
	}
	if ts.isFinished() {
		return newErr("send", InvalidArgument, "tag has been finished")
	}

	sealed, err := ts.Send.Append(data, dst)
	if err != nil {
		return wrapErr("send", InvalidArgument, err)
	}
	if sealed != nil {
		if l.sendQueue.WaitPush(sendItem{dst: dst, tag: tag, dataBuf: sealed}) == queue.Rejected {
			return newErr("send", QueueClosed, "send queue is closed")
		}
	}
	return nil
}

// Flush forces every destination's current buffer for tag onto the
// wire, then blocks until this rank has received the FOC for this
// flush's epoch from every rank, itself included.
func (l *Layer) Flush(tag int32) error {
	if err := l.checkAlive(); err != nil {
		return err
	}
	ts, err := l.tagFor("flush", tag)
	if err != nil {
		return err
	}
	if ts.isFinished() {
		return newErr("flush", InvalidArgument, "tag has been finished")
	}
	return l.roundTrip(ts, tag)
}

// Finish flushes tag one final time and marks it closed: subsequent
// Send/Flush calls for tag fail with InvalidArgument. A second call for
// an already-finished tag is a no-op, per the idempotence law.
func (l *Layer) Finish(tag int32) error {
	if err := l.checkAlive(); err != nil {
		return err
	}
	ts, err := l.tagFor("finish", tag)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	if ts.finished {
		ts.mu.Unlock()
		return nil
	}
	ts.mu.Unlock()

	if err := l.roundTrip(ts, tag); err != nil {
		return err
	}

	ts.mu.Lock()
	ts.markFinishedLocked()
	ts.mu.Unlock()
	return nil
}

// FinishAll finishes every registered application tag and then finishes
// the reserved control tag, which signals every peer's RecvProgress to
// stop once all of them have observed it, and finally shuts the layer
// down. FinishAll is idempotent; calling it more than once is a no-op.
func (l *Layer) FinishAll() error {
	if l.finalized.Load() {
		return nil
	}
	if err := l.checkAlive(); err != nil {
		return err
	}

	l.registryMu.Lock()
	tags := make([]int32, 0, len(l.registry))
	for tag := range l.registry {
		if tag != wire.ControlTag {
			tags = append(tags, tag)
		}
	}
	l.registryMu.Unlock()

	for _, tag := range tags {
		if err := l.Finish(tag); err != nil {
			return err
		}
	}

	ctrl, _ := l.tagFor("finish_all", wire.ControlTag)
	if err := l.roundTrip(ctrl, wire.ControlTag); err != nil {
		return err
	}

	l.sendQueue.DisablePush()
	l.finalizeOnce.Do(func() {
		l.finalized.Store(true)
		l.send.Stop()
		l.recv.Stop()
		l.dispatch.Stop()
	})
	return nil
}

// roundTrip allocates the next epoch for tag, pushes a FOC control
// message to every peer (including self, via the loopback bypass), and
// blocks until the epoch's countdown has been observed closing.
func (l *Layer) roundTrip(ts *TagState, tag int32) error {
	size := l.tr.Size()
	rank := l.tr.Rank()
	for i := 0; i < size; i++ {
		dst := (i + rank + 1) % size
		if sealed := ts.Send.FlushRank(dst); sealed != nil {
			if l.sendQueue.WaitPush(sendItem{dst: dst, tag: tag, dataBuf: sealed}) == queue.Rejected {
				return newErr("flush", QueueClosed, "send queue is closed")
			}
		}
	}

	ts.mu.Lock()
	epoch := ts.nextEpochLocked()
	ts.mu.Unlock()

	te := wire.Pack(tag, epoch)
	payload := wire.EncodeControlPayload(te)
	for i := 0; i < size; i++ {
		dst := (i + rank + 1) % size
		if l.sendQueue.WaitPush(sendItem{dst: dst, tag: wire.ControlTag, ctrlPayload: payload}) == queue.Rejected {
			return newErr("flush", QueueClosed, "send queue is closed")
		}
	}

	ts.waitEpoch(epoch)
	return l.failure.get()
}

func (l *Layer) tagFor(op string, tag int32) (*TagState, error) {
	l.registryMu.Lock()
	ts, ok := l.registry[tag]
	l.registryMu.Unlock()
	if !ok {
		return nil, newErr(op, InvalidArgument, "tag not registered")
	}
	return ts, nil
}

func (l *Layer) checkAlive() error {
	if l.finalized.Load() {
		return newErr("layer", InvalidState, "layer has been finalized")
	}
	if err := l.failure.get(); err != nil {
		return err
	}
	return nil
}
