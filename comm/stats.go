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
	"sync/atomic"

	"github.com/xtaci/rankmux/stats"
)

// layerStats is the atomic counter bank backing Layer.Stats(). It is
// ambient observability: nothing in the flush/finish protocol reads it.
type layerStats struct {
	dataSent    atomic.Int64
	bytesSent   atomic.Int64
	controlSent atomic.Int64
	dataRecv    atomic.Int64
	bytesRecv   atomic.Int64
	controlRecv atomic.Int64
}

func (s *layerStats) addDataSent(n int) {
	s.dataSent.Add(1)
	s.bytesSent.Add(int64(n))
}

func (s *layerStats) addControlSent() { s.controlSent.Add(1) }

func (s *layerStats) addDataRecv(n int) {
	s.dataRecv.Add(1)
	s.bytesRecv.Add(int64(n))
}

func (s *layerStats) addControlRecv() { s.controlRecv.Add(1) }

func (s *layerStats) snapshot(sendDepth, recvDepth int) stats.Snapshot {
	return stats.Snapshot{
		DataMessagesSent:    s.dataSent.Load(),
		BytesSent:           s.bytesSent.Load(),
		ControlMessagesSent: s.controlSent.Load(),
		DataMessagesRecv:    s.dataRecv.Load(),
		BytesRecv:           s.bytesRecv.Load(),
		ControlMessagesRecv: s.controlRecv.Load(),
		SendQueueDepth:      int64(sendDepth),
		RecvQueueDepth:      int64(recvDepth),
	}
}

// failureFlag latches the first fatal condition a background thread
// observes, per the propagation policy: background threads never panic
// across goroutine boundaries, they set this flag instead.
type failureFlag struct {
	v atomic.Pointer[error]
}

func (f *failureFlag) set(err error) {
	f.v.CompareAndSwap(nil, &err)
}

func (f *failureFlag) get() error {
	p := f.v.Load()
	if p == nil {
		return nil
	}
	return *p
}
