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
	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/eventloop"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/packet"
	"github.com/iot-lab/cn-node/progctx"
	"github.com/iot-lab/cn-node/types"
)

// Protocol runs the serial link over one transport.
type Protocol struct {
	transport  Transport
	loop       *eventloop.Loop
	rxPool     *packet.Queue
	receiver   *Receiver
	dispatcher *Dispatcher
	sender     *Sender
	stats      *counters
}

// New creates the protocol. Received commands are dispatched in loop.
func New(transport Transport, loop *eventloop.Loop, ticks clock.TickSource) *Protocol {
	pr := &Protocol{
		transport:  transport,
		loop:       loop,
		rxPool:     packet.NewPool("serial_rx", RxPoolSize),
		dispatcher: NewDispatcher(),
		sender:     NewSender(transport, ticks),
		stats:      &counters{},
	}
	pr.receiver = NewReceiver(ticks, pr.rxPool, pr.deliver)
	pr.receiver.stats = pr.stats
	pr.sender.stats = pr.stats
	return pr
}

// Start connects the receiver to the transport and starts the receive and transmit goroutines.
func (pr *Protocol) Start(ctx *progctx.ProgCtx) {
	pr.transport.SetReceiver(pr.receiver.Feed)
	ctx.Go("serial_rx", pr.receiver.Run)
	ctx.Go("serial_tx", pr.sender.Run)
}

// Register adds a command handler.
func (pr *Protocol) Register(cmdType uint8, h Handler) {
	pr.dispatcher.Register(cmdType, h)
}

// SendFrame queues p as a frame of the given type. On error p stays with the caller.
func (pr *Protocol) SendFrame(frameType uint8, p *packet.Packet) error {
	return pr.sender.SendFrame(frameType, p)
}

// AllocPacket takes a packet from pool with room for the frame header.
func (pr *Protocol) AllocPacket(pool *packet.Queue) (*packet.Packet, error) {
	return pool.Alloc(HeaderSize)
}

// Stats returns the link counters.
func (pr *Protocol) Stats() Stats {
	return pr.stats.snapshot()
}

func (pr *Protocol) Receiver() *Receiver {
	return pr.receiver
}

func (pr *Protocol) Sender() *Sender {
	return pr.sender
}

func (pr *Protocol) deliver(p *packet.Packet) bool {
	return pr.loop.Post(func() { pr.packetReceived(p) }) == nil
}

func (pr *Protocol) packetReceived(p *packet.Packet) {
	cmdType := p.Raw()[HeaderSize-1]
	err := pr.dispatcher.Call(cmdType, p)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			pr.stats.unknownCommands.Add(1)
		}
		logger.Debugf("command %s: %v", types.FrameTypeName(cmdType), err)
	}
	pr.SendResult(p, cmdType, err)
}

// SendResult turns p into the ACK or NACK answer to a command of type cmdType and sends it.
func (pr *Protocol) SendResult(p *packet.Packet, cmdType uint8, result error) {
	p.Priority = types.AnswerPriority
	_ = p.Reframe(HeaderSize, 0)
	_ = p.Append(Result(result))
	if err := pr.SendFrame(cmdType, p); err != nil {
		logger.Errorf("answer to %s: %v", types.FrameTypeName(cmdType), err)
		_ = p.Free()
	}
}
