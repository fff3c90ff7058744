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

// Package gpioevent time stamps edges of the control node inputs, such as the PPS
// signal, and sends them to the gateway as event frames.
package gpioevent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/control"
	"github.com/iot-lab/cn-node/eventloop"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/measpkt"
	"github.com/iot-lab/cn-node/packet"
	"github.com/iot-lab/cn-node/timesync"
	. "github.com/iot-lab/cn-node/types"
)

const (
	numPackets = 8
	configLen  = 2
)

// Source identifies the input an event comes from.
type Source uint32

const (
	SourcePPS Source = 0
)

// Input selection bits of the CONFIG_GPIO command.
const (
	ConfigPPS uint8 = 1 << 0
)

// Events batches input edges into event frames.
type Events struct {
	loop    *eventloop.Loop
	sync    *timesync.Sync
	batcher *measpkt.Batcher
	enabled atomic.Bool
	missed  atomic.Uint64
}

// New creates the event source. Frames are sent through link.
func New(link control.Link, loop *eventloop.Loop, sync *timesync.Sync) *Events {
	return &Events{
		loop:    loop,
		sync:    sync,
		batcher: measpkt.NewBatcher("event_measures", numPackets, FrameEvent, 2, link),
	}
}

// Register installs the CONFIG_GPIO handler.
func (e *Events) Register(link control.Link) {
	link.Register(FrameConfigGpio, e.configGpio)
}

// Enabled reports whether edges are recorded.
func (e *Events) Enabled() bool {
	return e.enabled.Load()
}

func (e *Events) configGpio(_ uint8, p *packet.Packet) error {
	if p.Len() != configLen {
		return errors.Wrapf(control.ErrBadLength, "config_gpio: %d bytes", p.Len())
	}
	mode, gpios := p.Data()[0], p.Data()[1]
	if mode == ModeStop {
		e.enabled.Store(false)
		logger.Infof("gpio events stopped")
		return nil
	}
	e.enabled.Store(true)
	logger.Infof("gpio events started, inputs %#02x", gpios)
	return nil
}

// OnEdge records a rising edge of the PPS input seen at tick32. It can be called from
// the goroutine watching the input and never blocks.
func (e *Events) OnEdge(tick32 uint32) {
	if !e.enabled.Load() {
		return
	}
	if err := e.loop.Post(func() { e.add(tick32, 1, SourcePPS) }); err != nil {
		e.missed.Add(1)
	}
}

func (e *Events) add(tick32 uint32, value uint32, source Source) {
	ts := e.sync.ExtendRelative(tick32)
	e.batcher.Add(ts, value, uint32(source))
}

// Flush sends the pending event packet. Called from the event loop.
func (e *Events) Flush() {
	e.batcher.Flush()
}

// Missed returns the number of edges lost because the event loop was full.
func (e *Events) Missed() uint64 {
	return e.missed.Load()
}

// Dropped returns the number of edges lost for lack of packets.
func (e *Events) Dropped() uint64 {
	return e.batcher.Dropped()
}

// RunPPS emulates the PPS input from the host clock: one edge every period until ctx is done.
func (e *Events) RunPPS(ctx context.Context, ticks clock.TickSource, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.OnEdge(ticks.Now32())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
