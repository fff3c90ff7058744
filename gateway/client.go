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

// Package gateway drives a control node from the host side of the serial link.
package gateway

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/frame"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/pcap"
	. "github.com/iot-lab/cn-node/types"
)

var (
	ErrNack   = errors.New("command refused")
	ErrClosed = errors.New("link closed")
)

// Handler receives the frames of one type that are not command answers.
type Handler func(f frame.Frame)

// Options tunes a Client. The zero value is usable.
type Options struct {
	// LogDir receives one log file per node. Empty disables log files.
	LogDir string
	// Export receives every decoded measure as CBOR when not nil.
	Export io.Writer
	// Capture records every frame of the link when not nil.
	Capture *pcap.File
}

type waiter struct {
	frameType FrameType
	match     func(f *frame.Frame) bool
	ch        chan frame.Frame
}

// Client exchanges frames with one control node.
type Client struct {
	rw   io.ReadWriter
	dec  *frame.Decoder
	opts Options

	wlock   sync.Mutex
	cmdLock sync.Mutex

	mu       sync.Mutex
	waiters  []*waiter
	handlers map[FrameType][]Handler
	nodeId   uint16
	export   *CBORWriter

	done chan struct{}
	err  error

	received  atomic.Uint64
	unhandled atomic.Uint64
}

// NewClient creates a client over rw. Frames are only read once Run is called.
func NewClient(rw io.ReadWriter, opts *Options) *Client {
	c := &Client{
		rw:       rw,
		dec:      frame.NewDecoder(rw),
		handlers: map[FrameType][]Handler{},
		done:     make(chan struct{}),
	}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.Export != nil {
		c.export = NewCBORWriter(c.opts.Export)
	}
	c.Subscribe(FrameLogger, c.onLog)
	for frameType := range MeasureKinds {
		c.Subscribe(frameType, c.onMeasures)
	}
	return c
}

// Subscribe adds a handler for frames of the given type.
func (c *Client) Subscribe(frameType FrameType, h Handler) {
	c.mu.Lock()
	c.handlers[frameType] = append(c.handlers[frameType], h)
	c.mu.Unlock()
}

// Run reads frames until the link fails or ctx is done. A link that can be
// closed is closed when ctx is done.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)

	if closer, ok := c.rw.(io.Closer); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = closer.Close()
			case <-stop:
			}
		}()
	}

	for {
		f, err := c.dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				c.err = ctx.Err()
			} else if err == io.EOF {
				c.err = nil
			} else {
				c.err = errors.Wrapf(err, "gateway read")
			}
			logger.Debugf("gateway: read exit: %v", err)
			return c.err
		}
		c.received.Add(1)
		c.capture(pcap.FromNode, &f)
		c.dispatch(f)
	}
}

// Done is closed when Run returns.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Stats counts the traffic seen by a Client.
type Stats struct {
	FramesReceived  uint64
	FramesUnhandled uint64
	BytesSkipped    uint64 // bytes discarded while looking for frames
	SamplesExported uint64
}

func (c *Client) Stats() Stats {
	s := Stats{
		FramesReceived:  c.received.Load(),
		FramesUnhandled: c.unhandled.Load(),
		BytesSkipped:    c.dec.Skipped(),
	}
	if c.export != nil {
		s.SamplesExported = c.export.Written()
	}
	return s
}

func (c *Client) dispatch(f frame.Frame) {
	c.mu.Lock()
	for i, w := range c.waiters {
		if w.frameType == f.Type && w.match(&f) {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.mu.Unlock()
			w.ch <- f
			return
		}
	}
	handlers := c.handlers[f.Type]
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.unhandled.Add(1)
		logger.Debugf("gateway: unhandled %s", f.String())
		return
	}
	for _, h := range handlers {
		h(f)
	}
}

func (c *Client) expect(frameType FrameType, match func(f *frame.Frame) bool) *waiter {
	w := &waiter{frameType: frameType, match: match, ch: make(chan frame.Frame, 1)}
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return w
}

func (c *Client) forget(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Client) wait(ctx context.Context, w *waiter) (frame.Frame, error) {
	select {
	case f := <-w.ch:
		return f, nil
	case <-ctx.Done():
		c.forget(w)
		return frame.Frame{}, ctx.Err()
	case <-c.done:
		c.forget(w)
		return frame.Frame{}, ErrClosed
	}
}

// Send writes one frame.
func (c *Client) Send(f frame.Frame) error {
	c.wlock.Lock()
	defer c.wlock.Unlock()
	c.capture(pcap.ToNode, &f)
	_, err := c.rw.Write(f.Serialize())
	return errors.Wrapf(err, "send %s", FrameTypeName(f.Type))
}

func (c *Client) capture(dir pcap.Direction, f *frame.Frame) {
	if c.opts.Capture == nil {
		return
	}
	err := c.opts.Capture.AppendFrame(pcap.Frame{Timestamp: time.Now(), Direction: dir, Data: f.Serialize()})
	if err != nil {
		logger.Warnf("gateway: %v", err)
	}
}

// SendCommand sends a command and waits for the node's answer. It returns ErrNack
// when the node refused the command.
func (c *Client) SendCommand(ctx context.Context, cmdType FrameType, payload ...byte) error {
	c.cmdLock.Lock()
	defer c.cmdLock.Unlock()
	return c.command(ctx, cmdType, payload)
}

func (c *Client) command(ctx context.Context, cmdType FrameType, payload []byte) error {
	w := c.expect(cmdType, (*frame.Frame).IsAnswer)
	if err := c.Send(frame.New(cmdType, payload...)); err != nil {
		c.forget(w)
		return err
	}
	answer, err := c.wait(ctx, w)
	if err != nil {
		return errors.Wrapf(err, "%s", FrameTypeName(cmdType))
	}
	if !answer.IsAck() {
		return errors.Wrapf(ErrNack, "%s", FrameTypeName(cmdType))
	}
	return nil
}

// SetTime sets the node clock to now and waits until the node has installed it.
func (c *Client) SetTime(ctx context.Context, now time.Time) error {
	c.cmdLock.Lock()
	defer c.cmdLock.Unlock()

	tv := TimevalFromTime(now)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], tv.Sec)
	binary.LittleEndian.PutUint32(payload[4:], tv.Usec)

	installed := c.expect(FrameAck, func(f *frame.Frame) bool {
		return len(f.Payload) == 1 && f.Payload[0] == FrameSetTime
	})
	if err := c.command(ctx, FrameSetTime, payload); err != nil {
		c.forget(installed)
		return err
	}
	if _, err := c.wait(ctx, installed); err != nil {
		return errors.Wrapf(err, "set_time ack")
	}
	return nil
}

// SetNodeId gives the node its id. Later logs are recorded under that id.
func (c *Client) SetNodeId(ctx context.Context, id uint16) error {
	payload := binary.LittleEndian.AppendUint16(nil, id)
	if err := c.SendCommand(ctx, FrameSetNodeId, payload...); err != nil {
		return err
	}
	c.mu.Lock()
	c.nodeId = id
	c.mu.Unlock()
	return nil
}

func (c *Client) NodeId() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeId
}

func (c *Client) GreenLedOn(ctx context.Context) error {
	return c.SendCommand(ctx, FrameGreenLedOn)
}

func (c *Client) GreenLedBlink(ctx context.Context) error {
	return c.SendCommand(ctx, FrameGreenLedBlink)
}

// ConfigGpio starts or stops the event measures of the selected inputs.
func (c *Client) ConfigGpio(ctx context.Context, start bool, gpios uint8) error {
	mode := ModeStop
	if start {
		mode = ModeStart
	}
	return c.SendCommand(ctx, FrameConfigGpio, mode, gpios)
}
