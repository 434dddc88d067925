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

// Package stats provides ambient, non-blocking counters for a
// communication layer and an optional periodic CSV snapshot writer.
// It never participates in the flush/finish protocol, it only observes it.
package stats

import (
	"encoding/csv"
	"log"
	"os"
	"strconv"
	"sync"
	"time"
)

// Snapshot is a point-in-time read of a communication layer's counters.
type Snapshot struct {
	DataMessagesSent    int64
	BytesSent           int64
	ControlMessagesSent int64
	DataMessagesRecv    int64
	BytesRecv           int64
	ControlMessagesRecv int64
	SendQueueDepth      int64
	RecvQueueDepth      int64
}

func (s Snapshot) header() []string {
	return []string{
		"data_messages_sent", "bytes_sent", "control_messages_sent",
		"data_messages_recv", "bytes_recv", "control_messages_recv",
		"send_queue_depth", "recv_queue_depth",
	}
}

func (s Snapshot) row() []string {
	return []string{
		strconv.FormatInt(s.DataMessagesSent, 10),
		strconv.FormatInt(s.BytesSent, 10),
		strconv.FormatInt(s.ControlMessagesSent, 10),
		strconv.FormatInt(s.DataMessagesRecv, 10),
		strconv.FormatInt(s.BytesRecv, 10),
		strconv.FormatInt(s.ControlMessagesRecv, 10),
		strconv.FormatInt(s.SendQueueDepth, 10),
		strconv.FormatInt(s.RecvQueueDepth, 10),
	}
}

// Source is implemented by anything that can report its current counters.
type Source interface {
	Stats() Snapshot
}

// StartCSVLogger periodically appends a Snapshot row to the CSV file at
// path, creating it with a header row if necessary. It returns a stop
// function that halts the logger; calling it is optional, a zero
// interval or empty path makes StartCSVLogger a no-op returning a no-op
// stop function.
func StartCSVLogger(path string, interval time.Duration, src Source) (stop func()) {
	if path == "" || interval <= 0 {
		return func() {}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("rankmux: stats: cannot open %s: %v", path, err)
		return func() {}
	}

	info, _ := f.Stat()
	w := csv.NewWriter(f)
	if info != nil && info.Size() == 0 {
		w.Write(src.Stats().header())
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer f.Close()
		for {
			select {
			case <-ticker.C:
				w.Write(src.Stats().row())
				w.Flush()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() { close(done) })
	}
}
