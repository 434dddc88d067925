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

// Package transport defines the rank-addressed, MPI-like substrate that
// the communication layer consumes. The real substrate (isend/irecv/
// iprobe/bsend over an actual interconnect) is deliberately out of this
// module's scope; Transport is the seam the core depends on, and
// Loopback is an in-process stand-in used by the core's own tests and
// by the bench CLI.
package transport

// Request is an opaque handle to an in-flight non-blocking operation,
// returned by ISend/IRecv and polled via Test. Its concrete type is
// owned by the Transport implementation.
type Request any

// ProbeInfo describes a message observed by IProbe before it is received.
type ProbeInfo struct {
	Source int
	Tag    int32
	Size   int
}

// Transport is the rank-addressed, MPI-like message-passing substrate
// the communication layer is built on top of. Implementations must
// preserve FIFO ordering of messages per (source, dest, tag).
type Transport interface {
	// Size returns the fixed communicator size.
	Size() int
	// Rank returns this process's rank within the communicator.
	Rank() int
	// ISend posts a non-blocking send and returns a pollable Request.
	ISend(buf []byte, dst int, tag int32) (Request, error)
	// BSend performs a buffered send that is locally complete on return.
	BSend(buf []byte, dst int, tag int32) error
	// IProbe checks for an incoming message without receiving it.
	IProbe() (info ProbeInfo, ok bool, err error)
	// IRecv posts a non-blocking receive into buf and returns a pollable Request.
	IRecv(buf []byte, src int, tag int32) (Request, error)
	// Test reports whether req has completed.
	Test(req Request) (bool, error)
}
