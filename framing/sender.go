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

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/packet"
)

// Sender queues frames by priority and transmits them one at a time.
type Sender struct {
	transport Transport
	ticks     clock.TickSource
	queue     *packet.Queue
	txDone    chan error
	stats     *counters
}

func NewSender(transport Transport, ticks clock.TickSource) *Sender {
	return &Sender{
		transport: transport,
		ticks:     ticks,
		queue:     packet.NewQueue("serial_tx"),
		txDone:    make(chan error, 1),
		stats:     &counters{},
	}
}

// Pending returns the number of frames waiting for transmission.
func (s *Sender) Pending() int {
	return s.queue.Count()
}

// SendFrame writes the frame header in front of the payload of p and queues it.
// On success the packet belongs to the sender and is freed once transmitted;
// on error it stays with the caller.
func (s *Sender) SendFrame(frameType uint8, p *packet.Packet) error {
	if p.Len() > PayloadMax {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", p.Len())
	}
	off := p.HeaderOffset()
	if off < HeaderSize {
		return errors.Wrapf(ErrHeaderViolation, "header offset %d", off)
	}

	raw := p.Raw()
	raw[off-3] = SyncByte
	raw[off-2] = uint8(p.Len() + 1)
	raw[off-1] = frameType
	return s.queue.PriorityInsert(p)
}

// frame returns the wire bytes of a packet that went through SendFrame.
func frame(p *packet.Packet) []byte {
	off := p.HeaderOffset()
	return p.Raw()[off-HeaderSize : off+p.Len()]
}

// TxDone is the completion callback given to the transport.
func (s *Sender) TxDone(err error) {
	select {
	case s.txDone <- err:
	default:
		logger.Errorf("serial tx: completion without transfer")
	}
}

// Run transmits queued frames until ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	defer logger.Debugf("serial tx exit.")
	for {
		p, err := s.queue.Get(ctx)
		if err != nil {
			return err
		}
		err = s.send(ctx, p)
		_ = p.Free()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.stats.txErrors.Add(1)
			logger.Warnf("serial tx: %v", err)
			continue
		}
		s.stats.txFrames.Add(1)
	}
}

func (s *Sender) send(ctx context.Context, p *packet.Packet) error {
	p.Timestamp = s.ticks.Now32()
	if err := s.transport.Transmit(frame(p), s.TxDone); err != nil {
		return errors.Wrap(err, "transmit")
	}
	select {
	case err := <-s.txDone:
		return errors.Wrap(err, "transfer")
	case <-ctx.Done():
		return ctx.Err()
	}
}
