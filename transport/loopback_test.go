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

import "testing"

func TestLoopbackSendProbeRecvRoundTrip(t *testing.T) {
	group := NewLoopbackGroup(2)
	a, b := group[0], group[1]

	if _, err := a.ISend([]byte("hello"), 1, 7); err != nil {
		t.Fatalf("ISend failed: %v", err)
	}

	info, ok, err := b.IProbe()
	if err != nil || !ok {
		t.Fatalf("expected a probe hit, got ok=%v err=%v", ok, err)
	}
	if info.Source != 0 || info.Tag != 7 || info.Size != 5 {
		t.Fatalf("unexpected probe info: %+v", info)
	}

	buf := make([]byte, info.Size)
	req, err := b.IRecv(buf, info.Source, info.Tag)
	if err != nil {
		t.Fatalf("IRecv failed: %v", err)
	}
	done, err := b.Test(req)
	if err != nil || !done {
		t.Fatalf("expected request done, got done=%v err=%v", done, err)
	}
	if string(buf) != "hello" {
		t.Fatalf("unexpected payload: %q", buf)
	}
}

func TestLoopbackFIFOPerSource(t *testing.T) {
	group := NewLoopbackGroup(2)
	a, b := group[0], group[1]

	a.ISend([]byte("first"), 1, 1)
	a.ISend([]byte("second"), 1, 1)

	for _, want := range []string{"first", "second"} {
		info, ok, err := b.IProbe()
		if err != nil || !ok {
			t.Fatalf("expected probe hit")
		}
		buf := make([]byte, info.Size)
		if _, err := b.IRecv(buf, info.Source, info.Tag); err != nil {
			t.Fatalf("IRecv failed: %v", err)
		}
		if string(buf) != want {
			t.Fatalf("expected %q, got %q", want, buf)
		}
	}
}

func TestLoopbackProbeEmpty(t *testing.T) {
	group := NewLoopbackGroup(1)
	_, ok, err := group[0].IProbe()
	if err != nil || ok {
		t.Fatalf("expected no message pending")
	}
}
