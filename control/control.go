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

// Package control handles the node management commands of the gateway: time
// setting, node id and the green LED.
package control

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/eventloop"
	"github.com/iot-lab/cn-node/framing"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/measpkt"
	"github.com/iot-lab/cn-node/packet"
	"github.com/iot-lab/cn-node/timesync"
	. "github.com/iot-lab/cn-node/types"
)

const (
	numAcks        = 2
	setTimeLen     = 8
	setNodeIdLen   = 2
	greenLedPeriod = time.Second
)

var (
	ErrBadLength = errors.New("bad command length")
	ErrBadTime   = errors.New("bad time value")
)

// Link is the part of the serial protocol used by command handlers.
type Link interface {
	measpkt.Sender
	Register(cmdType uint8, h framing.Handler)
}

// Flusher is a measure source whose pending packet is sent before the time changes.
type Flusher interface {
	Flush()
}

// Leds drives the green LED of the control node.
type Leds interface {
	GreenOn()
	GreenBlink(period time.Duration)
}

// LogLeds is a Leds that only logs.
type LogLeds struct{}

func (LogLeds) GreenOn() {
	logger.Infof("green led on")
}

func (LogLeds) GreenBlink(period time.Duration) {
	logger.Infof("green led blinking every %v", period)
}

// Control owns the node management handlers.
type Control struct {
	link     Link
	loop     *eventloop.Loop
	sync     *timesync.Sync
	leds     Leds
	acks     *packet.Queue
	flushers []Flusher
	nodeId   atomic.Uint32
}

func New(link Link, loop *eventloop.Loop, sync *timesync.Sync, leds Leds) *Control {
	if leds == nil {
		leds = LogLeds{}
	}
	return &Control{
		link: link,
		loop: loop,
		sync: sync,
		leds: leds,
		acks: packet.NewPool("control_acks", numAcks),
	}
}

// AddFlusher registers a measure source flushed on every time update. Not safe once started.
func (c *Control) AddFlusher(f Flusher) {
	c.flushers = append(c.flushers, f)
}

// Start registers the command handlers.
func (c *Control) Start() {
	c.link.Register(FrameSetTime, c.setTime)
	c.link.Register(FrameSetNodeId, c.setNodeId)
	c.link.Register(FrameGreenLedBlink, c.greenLedBlink)
	c.link.Register(FrameGreenLedOn, c.greenLedOn)
}

// NodeId returns the id given by the gateway, 0 until set.
func (c *Control) NodeId() uint16 {
	return uint16(c.nodeId.Load())
}

// setTime saves the time carried by the command with the tick at which its frame
// started, then lets already queued work run before the new time is installed.
func (c *Control) setTime(_ uint8, p *packet.Packet) error {
	if p.Len() != setTimeLen {
		return errors.Wrapf(ErrBadLength, "set_time: %d bytes", p.Len())
	}
	t0 := p.Timestamp
	data := p.Data()
	utc := Timeval{
		Sec:  binary.LittleEndian.Uint32(data[0:4]),
		Usec: binary.LittleEndian.Uint32(data[4:8]),
	}
	if utc.Usec >= UsecPerSec {
		return errors.Wrapf(ErrBadTime, "set_time: %d usec", utc.Usec)
	}

	ack, err := c.acks.Alloc(framing.HeaderSize)
	if err != nil {
		return errors.Wrap(err, "set_time")
	}
	logger.PanicIfError(ack.Append(FrameSetTime))

	if err := c.loop.Post(func() { c.doSetTime(ack, t0, utc) }); err != nil {
		_ = ack.Free()
		return errors.Wrap(err, "set_time")
	}
	return nil
}

func (c *Control) doSetTime(ack *packet.Packet, t0 uint32, utc Timeval) {
	for _, f := range c.flushers {
		f.Flush()
	}

	if err := c.link.SendFrame(FrameAck, ack); err != nil {
		logger.Errorf("set_time ack: %v", err)
		_ = ack.Free()
		return
	}
	c.sync.SetTime(t0, utc)
}

func (c *Control) setNodeId(_ uint8, p *packet.Packet) error {
	if p.Len() != setNodeIdLen {
		return errors.Wrapf(ErrBadLength, "set_node_id: %d bytes", p.Len())
	}
	id := binary.LittleEndian.Uint16(p.Data())
	c.nodeId.Store(uint32(id))
	logger.Infof("node id set to %04x", id)
	return nil
}

func (c *Control) greenLedBlink(uint8, *packet.Packet) error {
	c.leds.GreenBlink(greenLedPeriod)
	return nil
}

func (c *Control) greenLedOn(uint8, *packet.Packet) error {
	c.leds.GreenOn()
	return nil
}
