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

package wire

import "testing"

func TestTaggedEpochPackUnpack(t *testing.T) {
	cases := []struct {
		tag   int32
		epoch uint32
	}{
		{0, 0},
		{1, 1},
		{ControlTag, 12345},
		{1 << 30, 0xFFFFFFFF},
	}
	for _, c := range cases {
		te := Pack(c.tag, c.epoch)
		if got := te.Tag(); got != c.tag {
			t.Fatalf("Pack(%d,%d).Tag() = %d, want %d", c.tag, c.epoch, got, c.tag)
		}
		if got := te.Epoch(); got != c.epoch {
			t.Fatalf("Pack(%d,%d).Epoch() = %d, want %d", c.tag, c.epoch, got, c.epoch)
		}
	}
}

func TestControlPayloadRoundTrip(t *testing.T) {
	te := Pack(42, 7)
	buf := EncodeControlPayload(te)
	if len(buf) != ControlPayloadSize {
		t.Fatalf("encoded payload length = %d, want %d", len(buf), ControlPayloadSize)
	}
	decoded, err := DecodeControlPayload(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != te {
		t.Fatalf("decoded %v, want %v", decoded, te)
	}
}

func TestDecodeControlPayloadRejectsWrongSize(t *testing.T) {
	if _, err := DecodeControlPayload([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding undersized payload")
	}
	if _, err := DecodeControlPayload(make([]byte, ControlPayloadSize+1)); err == nil {
		t.Fatal("expected error decoding oversized payload")
	}
}

func TestControlTagIsDistinctFromApplicationTags(t *testing.T) {
	if ControlTag != 0 {
		t.Fatalf("ControlTag = %d, want 0", ControlTag)
	}
}
