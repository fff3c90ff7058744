// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package measpkt

import (
	"fmt"

	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/packet"
	. "github.com/iot-lab/cn-node/types"
)

// Batcher fills packets of one frame type with records of fixed size. It is used from
// the event loop only.
type Batcher struct {
	pool       *packet.Queue
	sender     Sender
	frameType  FrameType
	fieldCount int
	recordSize int
	current    *packet.Packet
	dropped    uint64
}

// NewBatcher creates a batcher with its own pool of poolSize packets.
func NewBatcher(name string, poolSize int, frameType FrameType, fieldCount int, sender Sender) *Batcher {
	return &Batcher{
		pool:       packet.NewPool(name, poolSize),
		sender:     sender,
		frameType:  frameType,
		fieldCount: fieldCount,
		recordSize: RecordSize(fieldCount),
	}
}

// Add records a measure taken at ts. The packet is sent as soon as it is full or old.
// A measure is dropped when no packet is available or when it does not have the
// field count of the batcher.
func (b *Batcher) Add(ts Timeval, fields ...uint32) bool {
	if len(fields) != b.fieldCount {
		b.drop("%d fields instead of %d", len(fields), b.fieldCount)
		return false
	}
	b.current = LazyAlloc(b.pool, b.current, ts)
	if b.current == nil {
		b.drop("no packet")
		return false
	}
	if AddMeasure(b.current, ts, b.recordSize, fields...) {
		b.Flush()
	}
	return true
}

func (b *Batcher) drop(format string, args ...interface{}) {
	b.dropped++
	if b.dropped == 1 || b.dropped%100 == 0 {
		logger.Warnf("%s: %s, %d measure(s) dropped", b.pool.Name(), fmt.Sprintf(format, args...), b.dropped)
	}
}

// Flush sends the packet being filled, if any.
func (b *Batcher) Flush() {
	Flush(&b.current, b.frameType, b.sender)
}

// Dropped returns the number of measures lost for lack of packets or because they were malformed.
func (b *Batcher) Dropped() uint64 {
	return b.dropped
}

// Pool returns the packet pool of the batcher.
func (b *Batcher) Pool() *packet.Queue {
	return b.pool
}

// Pending returns the number of records in the packet being filled.
func (b *Batcher) Pending() int {
	if b.current == nil {
		return 0
	}
	return int(b.current.Data()[countOffset])
}
