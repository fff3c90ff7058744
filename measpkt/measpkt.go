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

// Package measpkt batches time stamped measures into frames.
//
// A measure packet payload is a record count byte and the base second of the
// packet, followed by records made of the microseconds since the base second and
// the measure fields, all little endian.
package measpkt

import (
	"encoding/binary"

	"github.com/iot-lab/cn-node/framing"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/packet"
	. "github.com/iot-lab/cn-node/types"
)

const (
	countOffset = 0
	timeOffset  = 1
	// HeaderLen is the length of the payload header: record count and base seconds.
	HeaderLen = 5
	// TimeLen is the length of the time field that starts every record.
	TimeLen = 4
	// MaxAge is the age of the oldest record in microseconds beyond which a packet is sent.
	MaxAge = 2 * UsecPerSec
)

// Sender sends a frame. framing.Protocol and framing.Sender implement it.
type Sender interface {
	SendFrame(frameType uint8, p *packet.Packet) error
}

// RecordSize returns the length of a record holding n 32 bit fields.
func RecordSize(n int) int {
	return TimeLen + 4*n
}

// LazyAlloc returns current if it is not nil. Otherwise it allocates a packet from
// pool and starts it with base second ts.Sec. It returns nil when the pool is empty.
func LazyAlloc(pool *packet.Queue, current *packet.Packet, ts Timeval) *packet.Packet {
	if current != nil {
		return current
	}

	p, err := pool.Alloc(framing.HeaderSize)
	if err != nil {
		return nil
	}
	var hdr [HeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[timeOffset:], ts.Sec)
	logger.PanicIfError(p.Append(hdr[:]...))
	return p
}

func microsSinceBase(p *packet.Packet, ts Timeval) uint32 {
	base := binary.LittleEndian.Uint32(p.Data()[timeOffset:])
	return ts.Usec + (ts.Sec-base)*UsecPerSec
}

// AddMeasure appends a record time stamped ts with the given fields to p. It returns
// true when p should be sent: no room is left for another record of recordSize bytes
// or the record is more than MaxAge after the base second.
// A record that does not fit is not added and p is left unchanged.
// Float fields are passed as their IEEE 754 bits.
func AddMeasure(p *packet.Packet, ts Timeval, recordSize int, fields ...uint32) bool {
	need := RecordSize(len(fields))
	if need > framing.FreeSpace(p) || need > p.Room() {
		logger.Warnf("measure of %d bytes does not fit, %d left", need, framing.FreeSpace(p))
		return true
	}
	data := p.Data()
	data[countOffset]++

	var rec [4]byte
	usecs := microsSinceBase(p, ts)
	binary.LittleEndian.PutUint32(rec[:], usecs)
	logger.PanicIfError(p.Append(rec[:]...))
	for _, f := range fields {
		binary.LittleEndian.PutUint32(rec[:], f)
		logger.PanicIfError(p.Append(rec[:]...))
	}

	if framing.FreeSpace(p) < recordSize {
		return true
	}
	return usecs > MaxAge
}

// Flush sends the packet in *slot as a frame of the given type and empties the slot.
// A packet that cannot be sent is freed. An empty slot is left alone.
func Flush(slot **packet.Packet, frameType uint8, sender Sender) {
	p := *slot
	if p == nil {
		return
	}
	if err := sender.SendFrame(frameType, p); err != nil {
		logger.Warnf("flush %s: %v", FrameTypeName(frameType), err)
		_ = p.Free()
	}
	*slot = nil
}
