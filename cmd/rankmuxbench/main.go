// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
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

package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/xtaci/rankmux/comm"
	"github.com/xtaci/rankmux/stats"
	"github.com/xtaci/rankmux/transport"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "rankmuxbench"
	myApp.Usage = "in-process ring exchange over the point-to-point communication layer"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "ranks,n",
			Value: 4,
			Usage: "number of ranks in the loopback communicator",
		},
		cli.IntFlag{
			Name:  "messages,m",
			Value: 1000,
			Usage: "messages each rank sends to its ring neighbor",
		},
		cli.IntFlag{
			Name:  "size,s",
			Value: 256,
			Usage: "message payload size in bytes",
		},
		cli.BoolFlag{
			Name:  "comp",
			Usage: "enable snappy compression of data payloads",
		},
		cli.StringFlag{
			Name:  "snmplog",
			Value: "",
			Usage: "collect layer stats to the CSV file at this path, like: ./snmp.log",
		},
		cli.IntFlag{
			Name:  "snmpperiod",
			Value: 5,
			Usage: "stats collection period, in seconds",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-rank progress messages",
		},
	}
	myApp.Action = run
	if err := myApp.Run(os.Args); err != nil {
		log.Fatalf("%+v\n", err)
	}
}

func run(c *cli.Context) error {
	ranks := c.Int("ranks")
	messages := c.Int("messages")
	size := c.Int("size")
	compress := c.Bool("comp")
	quiet := c.Bool("quiet")

	if ranks < 1 {
		return fmt.Errorf("ranks must be >= 1")
	}

	log.Println("version:", VERSION)
	log.Println("ranks:", ranks)
	log.Println("messages per rank:", messages)
	log.Println("payload size:", size)
	log.Println("compression:", compress)

	transports := transport.NewLoopbackGroup(ranks)
	layers := make([]*comm.Layer, ranks)
	received := make([]atomic.Int64, ranks)

	const ringTag int32 = 1
	for r := 0; r < ranks; r++ {
		layers[r] = comm.New(transports[r], comm.Options{Compress: compress})
		rank := r
		if err := layers[r].RegisterCallback(ringTag, func(data []byte, src int) {
			received[rank].Add(1)
			if !quiet {
				color.Green("rank %d <- rank %d: %d bytes", rank, src, len(data))
			}
		}); err != nil {
			return err
		}
	}

	var stopLog func()
	if snmpLog := c.String("snmplog"); snmpLog != "" {
		stopLog = stats.StartCSVLogger(snmpLog, time.Duration(c.Int("snmpperiod"))*time.Second, layerSetStats{layers})
		defer stopLog()
	}

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for r := 0; r < ranks; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			dst := (rank + 1) % ranks
			for i := 0; i < messages; i++ {
				if err := layers[rank].Send(payload, dst, ringTag); err != nil {
					log.Printf("rank %d: send: %+v", rank, err)
					return
				}
				if i%64 == 63 {
					if err := layers[rank].Flush(ringTag); err != nil {
						log.Printf("rank %d: flush: %+v", rank, err)
						return
					}
				}
			}
			if err := layers[rank].Finish(ringTag); err != nil {
				log.Printf("rank %d: finish: %+v", rank, err)
			}
		}(r)
	}
	wg.Wait()

	var finishWg sync.WaitGroup
	finishWg.Add(ranks)
	for r := 0; r < ranks; r++ {
		rank := r
		go func() {
			defer finishWg.Done()
			if err := layers[rank].FinishAll(); err != nil {
				log.Printf("rank %d: finish_all: %+v", rank, err)
			}
		}()
	}
	finishWg.Wait()
	elapsed := time.Since(start)

	total := int64(0)
	for r := 0; r < ranks; r++ {
		total += received[r].Load()
	}
	color.Cyan("delivered %d/%d messages in %s", total, int64(ranks)*int64(messages), elapsed)
	if total != int64(ranks)*int64(messages) {
		color.Red("message count mismatch: expected %d, got %d", int64(ranks)*int64(messages), total)
		return fmt.Errorf("ring exchange incomplete")
	}
	return nil
}

// layerSetStats aggregates every rank's Layer into a single stats.Source
// for the CSV logger, summing counters across the communicator.
type layerSetStats struct {
	layers []*comm.Layer
}

func (s layerSetStats) Stats() stats.Snapshot {
	var sum stats.Snapshot
	for _, l := range s.layers {
		snap := l.Stats()
		sum.DataMessagesSent += snap.DataMessagesSent
		sum.BytesSent += snap.BytesSent
		sum.ControlMessagesSent += snap.ControlMessagesSent
		sum.DataMessagesRecv += snap.DataMessagesRecv
		sum.BytesRecv += snap.BytesRecv
		sum.ControlMessagesRecv += snap.ControlMessagesRecv
		sum.SendQueueDepth += snap.SendQueueDepth
		sum.RecvQueueDepth += snap.RecvQueueDepth
	}
	return sum
}
