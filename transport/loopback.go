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

package transport

import (
	"sync"

	"github.com/pkg/errors"
)

type envelope struct {
	source int
	tag    int32
	data   []byte
}

type inbox struct {
	mu    sync.Mutex
	items []envelope
}

func (b *inbox) push(e envelope) {
	b.mu.Lock()
	b.items = append(b.items, e)
	b.mu.Unlock()
}

func (b *inbox) peek() (envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return envelope{}, false
	}
	return b.items[0], true
}

// popMatching removes and returns the head envelope if it matches src/tag.
// The Transport contract only ever asks IRecv for the message IProbe just
// reported, so the head is always the right one to pop.
func (b *inbox) popMatching(src int, tag int32) (envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return envelope{}, false
	}
	head := b.items[0]
	if head.source != src || head.tag != tag {
		return envelope{}, false
	}
	b.items = b.items[1:]
	return head, true
}

// doneRequest is a Request for an operation that is already complete by
// the time it is returned, which is true of every operation Loopback
// performs: there is no real network round trip to wait on.
type doneRequest struct{ err error }

// Loopback is an in-process Transport connecting size simulated ranks via
// per-rank inboxes. It stands in for a real MPI-like substrate in the
// core's own tests and in the bench CLI; every operation completes
// synchronously.
type Loopback struct {
	size  int
	rank  int
	peers []*inbox
}

// NewLoopbackGroup builds size Loopback endpoints, one per rank, all
// wired to each other.
func NewLoopbackGroup(size int) []*Loopback {
	if size <= 0 {
		panic("transport: loopback group size must be positive")
	}
	boxes := make([]*inbox, size)
	for i := range boxes {
		boxes[i] = &inbox{}
	}
	group := make([]*Loopback, size)
	for r := 0; r < size; r++ {
		group[r] = &Loopback{size: size, rank: r, peers: boxes}
	}
	return group
}

func (l *Loopback) Size() int { return l.size }
func (l *Loopback) Rank() int { return l.rank }

func (l *Loopback) ISend(buf []byte, dst int, tag int32) (Request, error) {
	if dst < 0 || dst >= l.size {
		return nil, errors.Errorf("transport: destination rank %d out of range", dst)
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	l.peers[dst].push(envelope{source: l.rank, tag: tag, data: cp})
	return doneRequest{}, nil
}

func (l *Loopback) BSend(buf []byte, dst int, tag int32) error {
	_, err := l.ISend(buf, dst, tag)
	return err
}

func (l *Loopback) IProbe() (ProbeInfo, bool, error) {
	e, ok := l.peers[l.rank].peek()
	if !ok {
		return ProbeInfo{}, false, nil
	}
	return ProbeInfo{Source: e.source, Tag: e.tag, Size: len(e.data)}, true, nil
}

func (l *Loopback) IRecv(buf []byte, src int, tag int32) (Request, error) {
	e, ok := l.peers[l.rank].popMatching(src, tag)
	if !ok {
		return nil, errors.Errorf("transport: no matching message from rank %d tag %d", src, tag)
	}
	n := copy(buf, e.data)
	if n != len(e.data) {
		return nil, errors.Errorf("transport: receive buffer too small: need %d, have %d", len(e.data), len(buf))
	}
	return doneRequest{}, nil
}

func (l *Loopback) Test(req Request) (bool, error) {
	dr, ok := req.(doneRequest)
	if !ok {
		return false, errors.New("transport: unrecognized request")
	}
	return true, dr.err
}
