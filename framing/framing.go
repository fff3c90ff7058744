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

// Package framing implements the serial link between the control node and the gateway.
//
// A frame is [SYNC][LEN][TYPE][payload], LEN counting TYPE and payload. Bytes are fed
// one at a time by the transport reader, received commands are dispatched to
// registered handlers in the event loop, and every command is answered with an
// ACK or NACK frame of the same type. Outgoing frames wait in a priority queue and
// are transmitted one at a time.
package framing

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/packet"
)

const (
	SyncByte   = 0x80
	HeaderSize = 3
	// PayloadMax is the largest payload: what fits in a packet after the header and in the LEN byte.
	PayloadMax = min(packet.MaxSize-HeaderSize, 254)
	// RxPoolSize is the number of receive buffers; commands are short and answered at once.
	RxPoolSize = 2
)

var (
	// RxTimeout is the time a frame may take to arrive once its SYNC byte was seen.
	RxTimeout = clock.MsToTicks(100)
)

var (
	ErrFrameTooLarge   = errors.New("frame payload too large")
	ErrHeaderViolation = errors.New("no room for frame header")
	ErrUnknownCommand  = errors.New("unknown command")
)

// Transport moves bytes to and from the gateway.
type Transport interface {
	// Transmit starts sending frame and returns. done is called once, from any goroutine,
	// when the bytes are out or the transfer failed. The frame must not be retained after done.
	Transmit(frame []byte, done func(err error)) error
	// SetReceiver installs the function called for every received byte, from a single goroutine.
	SetReceiver(rx func(c byte))
}

// Stats are the counters of the serial link.
type Stats struct {
	RxFrames        uint64
	RxNoBuffer      uint64 // bytes dropped because no receive buffer was available
	LengthMismatch  uint64
	StaleFrames     uint64
	RxDropped       uint64 // complete frames dropped because the event loop was full
	UnknownCommands uint64
	TxFrames        uint64
	TxErrors        uint64
}

// Minus returns the counters accumulated since old.
func (s Stats) Minus(old Stats) Stats {
	return Stats{
		RxFrames:        s.RxFrames - old.RxFrames,
		RxNoBuffer:      s.RxNoBuffer - old.RxNoBuffer,
		LengthMismatch:  s.LengthMismatch - old.LengthMismatch,
		StaleFrames:     s.StaleFrames - old.StaleFrames,
		RxDropped:       s.RxDropped - old.RxDropped,
		UnknownCommands: s.UnknownCommands - old.UnknownCommands,
		TxFrames:        s.TxFrames - old.TxFrames,
		TxErrors:        s.TxErrors - old.TxErrors,
	}
}

type counters struct {
	rxFrames        atomic.Uint64
	rxNoBuffer      atomic.Uint64
	lengthMismatch  atomic.Uint64
	staleFrames     atomic.Uint64
	rxDropped       atomic.Uint64
	unknownCommands atomic.Uint64
	txFrames        atomic.Uint64
	txErrors        atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		RxFrames:        c.rxFrames.Load(),
		RxNoBuffer:      c.rxNoBuffer.Load(),
		LengthMismatch:  c.lengthMismatch.Load(),
		StaleFrames:     c.staleFrames.Load(),
		RxDropped:       c.rxDropped.Load(),
		UnknownCommands: c.unknownCommands.Load(),
		TxFrames:        c.txFrames.Load(),
		TxErrors:        c.txErrors.Load(),
	}
}

// FreeSpace returns how many payload bytes can still be added to p before it is sent.
func FreeSpace(p *packet.Packet) int {
	return PayloadMax - p.Len()
}
