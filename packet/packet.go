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

// Package packet implements the fixed packet buffers of the control node and the
// queues they move through: free pools and priority ordered pending queues.
package packet

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

const (
	// MaxSize is the size of the raw buffer of every packet.
	MaxSize = 256
)

var (
	ErrExhausted  = errors.New("packet pool exhausted")
	ErrNoSpace    = errors.New("no space left in packet")
	ErrNotOwned   = errors.New("packet not owned by caller")
	ErrDoubleFree = errors.New("packet already free")
)

// Owner tells who holds a packet.
type Owner int32

const (
	OwnerFree    Owner = iota // in its free pool
	OwnerPending              // in a pending queue
	OwnerUser                 // in the hands of a handler or the transmit slot
)

func (o Owner) String() string {
	switch o {
	case OwnerFree:
		return "free"
	case OwnerPending:
		return "pending"
	case OwnerUser:
		return "user"
	default:
		return "invalid"
	}
}

// Packet is a fixed size buffer. The payload starts at the header offset, leaving
// room in front of it for a frame header.
type Packet struct {
	// Priority orders the packet in a pending queue. Higher goes first.
	Priority uint8
	// Timestamp is a 32 bit tick value set by the layer that captured or sent the packet.
	Timestamp uint32

	raw     [MaxSize]byte
	offset  int
	length  int
	owner   atomic.Int32
	storage *Queue
	free    func(p *Packet)
	next    *Packet
}

// NewStandalone creates a packet that belongs to no pool. Free hands it to free;
// the holder takes it back with Reclaim.
func NewStandalone(free func(p *Packet)) *Packet {
	p := &Packet{free: free}
	p.owner.Store(int32(OwnerFree))
	return p
}

// Owner returns the current holder of the packet.
func (p *Packet) Owner() Owner {
	return Owner(p.owner.Load())
}

func (p *Packet) transfer(from, to Owner) bool {
	return p.owner.CompareAndSwap(int32(from), int32(to))
}

func (p *Packet) reset(headerOffset int) {
	p.offset = headerOffset
	p.length = 0
	p.Priority = 0
	p.Timestamp = 0
}

// Reclaim takes a free standalone packet back into user hands, empty and with the given header offset.
func (p *Packet) Reclaim(headerOffset int) error {
	if p.storage != nil {
		return errors.Wrap(ErrNotOwned, "reclaim of a pooled packet")
	}
	if headerOffset < 0 || headerOffset > MaxSize {
		return errors.Wrapf(ErrNoSpace, "header offset %d", headerOffset)
	}
	if !p.transfer(OwnerFree, OwnerUser) {
		return errors.Wrapf(ErrNotOwned, "reclaim of a %s packet", p.Owner())
	}
	p.reset(headerOffset)
	return nil
}

// Free releases the packet. A pooled packet goes back to its pool, whatever queue
// it was taken from; a standalone packet is handed to its free callback.
func (p *Packet) Free() error {
	if p.free == nil && p.storage == nil {
		return errors.Wrapf(ErrNotOwned, "free of a packet without pool or callback")
	}
	if !p.transfer(OwnerUser, OwnerFree) {
		if p.Owner() == OwnerFree {
			return ErrDoubleFree
		}
		return errors.Wrapf(ErrNotOwned, "free of a %s packet", p.Owner())
	}
	if p.free != nil {
		p.free(p)
		return nil
	}
	p.storage.pushFree(p)
	return nil
}

// Raw returns the whole buffer.
func (p *Packet) Raw() []byte {
	return p.raw[:]
}

// HeaderOffset is the index in Raw where the payload starts.
func (p *Packet) HeaderOffset() int {
	return p.offset
}

// Data returns the payload.
func (p *Packet) Data() []byte {
	return p.raw[p.offset : p.offset+p.length]
}

func (p *Packet) Len() int {
	return p.length
}

// Room returns how many payload bytes can still be appended.
func (p *Packet) Room() int {
	return MaxSize - p.offset - p.length
}

// SetLen sets the payload length. The bytes are whatever the buffer holds.
func (p *Packet) SetLen(n int) error {
	if n < 0 || p.offset+n > MaxSize {
		return errors.Wrapf(ErrNoSpace, "length %d at offset %d", n, p.offset)
	}
	p.length = n
	return nil
}

// Append adds bytes at the end of the payload, all or nothing.
func (p *Packet) Append(b ...byte) error {
	if len(b) > p.Room() {
		return errors.Wrapf(ErrNoSpace, "append %d bytes, %d left", len(b), p.Room())
	}
	copy(p.raw[p.offset+p.length:], b)
	p.length += len(b)
	return nil
}

// Reframe moves the payload window over the buffer without touching its bytes.
func (p *Packet) Reframe(headerOffset, length int) error {
	if headerOffset < 0 || length < 0 || headerOffset+length > MaxSize {
		return errors.Wrapf(ErrNoSpace, "window %d+%d", headerOffset, length)
	}
	p.offset = headerOffset
	p.length = length
	return nil
}
