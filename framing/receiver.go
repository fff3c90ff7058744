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

package framing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/packet"
)

type rxState int

const (
	rxWaitSync rxState = iota
	rxWaitLength
	rxAccumulating
)

const (
	// IdlePeriod is how often the receiver retries to get a buffer when the pool was empty.
	IdlePeriod = 10 * time.Millisecond
)

// Receiver assembles frames from single bytes.
//
// Feed runs in the transport reader goroutine and never blocks or locks. Completed
// frames are handed over through a single ready slot and a doorbell; Service takes
// them and gives Feed a new buffer.
type Receiver struct {
	ticks   clock.TickSource
	pool    *packet.Queue
	timeout uint32
	deliver func(p *packet.Packet) bool

	rx       atomic.Pointer[packet.Packet]
	ready    atomic.Pointer[packet.Packet]
	doorbell chan struct{}

	// owned by the Feed goroutine
	state     rxState
	index     int
	frameLen  int
	startTick uint32

	stats *counters
	last  Stats
}

// NewReceiver creates a receiver drawing buffers from pool. deliver is called by
// Service with each complete frame and reports whether it took the packet.
func NewReceiver(ticks clock.TickSource, pool *packet.Queue, deliver func(p *packet.Packet) bool) *Receiver {
	return &Receiver{
		ticks:    ticks,
		pool:     pool,
		timeout:  RxTimeout,
		deliver:  deliver,
		doorbell: make(chan struct{}, 1),
		stats:    &counters{},
	}
}

// Stats returns the receive counters.
func (r *Receiver) Stats() Stats {
	return r.stats.snapshot()
}

func (r *Receiver) reset() {
	r.state = rxWaitSync
	r.index = 0
}

// Feed processes one received byte.
func (r *Receiver) Feed(c byte) {
	now := r.ticks.Now32()

	p := r.rx.Load()
	if p == nil {
		r.reset()
		r.stats.rxNoBuffer.Add(1)
		return
	}

	if r.state != rxWaitSync && now-r.startTick > r.timeout {
		r.reset()
		r.stats.staleFrames.Add(1)
	}

	raw := p.Raw()
	switch r.state {
	case rxWaitSync:
		if c != SyncByte {
			return
		}
		r.startTick = now
		p.Timestamp = now
		raw[0] = c
		r.index = 1
		r.state = rxWaitLength
	case rxWaitLength:
		r.frameLen = int(c) + 2
		if c == 0 || r.frameLen > len(raw) {
			r.reset()
			r.stats.lengthMismatch.Add(1)
			return
		}
		raw[1] = c
		r.index = 2
		r.state = rxAccumulating
	case rxAccumulating:
		raw[r.index] = c
		r.index++
		if r.index == r.frameLen {
			r.reset()
			_ = p.Reframe(HeaderSize, r.frameLen-HeaderSize)
			r.rx.Store(nil)
			r.ready.Store(p)
			r.ring()
		}
	}
}

func (r *Receiver) ring() {
	select {
	case r.doorbell <- struct{}{}:
	default:
	}
}

// Service hands a completed frame to deliver, then makes sure Feed has a buffer.
// It must be called from a single goroutine.
func (r *Receiver) Service() {
	if p := r.ready.Swap(nil); p != nil {
		r.stats.rxFrames.Add(1)
		if !r.deliver(p) {
			r.stats.rxDropped.Add(1)
			_ = p.Free()
		}
	}

	if r.rx.Load() == nil {
		if p, err := r.pool.Alloc(HeaderSize); err == nil {
			r.rx.Store(p)
		}
	}

	r.logStats()
}

func (r *Receiver) logStats() {
	s := r.stats.snapshot()
	if s == r.last {
		return
	}
	d := s.Minus(r.last)
	r.last = s
	if d.LengthMismatch > 0 || d.StaleFrames > 0 {
		logger.Warnf("serial rx: %d length mismatch, %d stale frame(s)", d.LengthMismatch, d.StaleFrames)
	}
	if d.RxNoBuffer > 0 || d.RxDropped > 0 {
		logger.Warnf("serial rx: %d byte(s) without buffer, %d frame(s) dropped", d.RxNoBuffer, d.RxDropped)
	}
}

// Run services the receiver whenever a frame completes and on every idle period, until ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(IdlePeriod)
	defer ticker.Stop()

	r.Service()
	for {
		select {
		case <-r.doorbell:
			r.Service()
		case <-ticker.C:
			r.Service()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
