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

package gateway

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-lab/cn-node/frame"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/measpkt"
	"github.com/iot-lab/cn-node/pcap"
	. "github.com/iot-lab/cn-node/types"
)

// peer plays the control node end of the link.
type peer struct {
	t    *testing.T
	conn net.Conn
	dec  *frame.Decoder
}

func (p *peer) next() frame.Frame {
	f, err := p.dec.Next()
	assert.NoError(p.t, err)
	return f
}

func (p *peer) send(f frame.Frame) {
	_, err := p.conn.Write(f.Serialize())
	assert.NoError(p.t, err)
}

func (p *peer) answer(f frame.Frame, code uint8) {
	p.send(frame.New(f.Type, code))
}

func newTestClient(t *testing.T, opts *Options) (*Client, *peer) {
	a, b := net.Pipe()
	c := NewClient(a, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
		_ = b.Close()
	})
	return c, &peer{t: t, conn: b, dec: frame.NewDecoder(b)}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSendCommandAck(t *testing.T) {
	c, p := newTestClient(t, nil)
	go func() {
		f := p.next()
		assert.Equal(t, FrameGreenLedOn, f.Type)
		assert.Empty(t, f.Payload)
		p.answer(f, Ack)
	}()
	assert.NoError(t, c.GreenLedOn(testContext(t)))
}

func TestSendCommandNack(t *testing.T) {
	c, p := newTestClient(t, nil)
	go func() {
		f := p.next()
		assert.Equal(t, []byte{ModeStart, 0x01}, f.Payload)
		p.answer(f, Nack)
	}()
	err := c.ConfigGpio(testContext(t), true, 0x01)
	assert.ErrorIs(t, err, ErrNack)
	assert.Equal(t, "config_gpio: command refused", err.Error())
}

func TestSendCommandTimeout(t *testing.T) {
	c, p := newTestClient(t, nil)
	go p.next()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.GreenLedBlink(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.mu.Lock()
	assert.Empty(t, c.waiters)
	c.mu.Unlock()
}

func TestSendCommandLinkClosed(t *testing.T) {
	c, p := newTestClient(t, nil)
	go func() {
		p.next()
		_ = p.conn.Close()
	}()
	err := c.GreenLedOn(testContext(t))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSetTimeWaitsForInstall(t *testing.T) {
	c, p := newTestClient(t, nil)
	acked := make(chan struct{})
	go func() {
		f := p.next()
		assert.Equal(t, FrameSetTime, f.Type)
		assert.Equal(t, []byte{0x00, 0xf1, 0x53, 0x65, 0x40, 0xe2, 0x01, 0x00}, f.Payload)
		p.answer(f, Ack)
		close(acked)
		time.Sleep(20 * time.Millisecond)
		p.send(frame.New(FrameAck, FrameSetTime))
	}()

	err := c.SetTime(testContext(t), time.Unix(1700000000, 123456789))
	require.NoError(t, err)
	select {
	case <-acked:
	default:
		t.Fatal("set_time returned before the answer")
	}
}

func TestSetNodeId(t *testing.T) {
	c, p := newTestClient(t, nil)
	go func() {
		f := p.next()
		assert.Equal(t, []byte{0x34, 0x12}, f.Payload)
		p.answer(f, Ack)
	}()
	require.NoError(t, c.SetNodeId(testContext(t), 0x1234))
	assert.Equal(t, uint16(0x1234), c.NodeId())
}

func TestUnhandledFramesAreCounted(t *testing.T) {
	c, p := newTestClient(t, nil)
	go func() {
		f := p.next()
		p.send(frame.New(0x42, 1, 2, 3))
		_, _ = p.conn.Write([]byte{0x11, 0x22})
		p.answer(f, Ack)
	}()
	require.NoError(t, c.GreenLedOn(testContext(t)))

	assert.Equal(t, Stats{FramesReceived: 2, FramesUnhandled: 1, BytesSkipped: 2}, c.Stats())
}

func TestMeasuresExport(t *testing.T) {
	var export bytes.Buffer
	c, p := newTestClient(t, &Options{Export: &export})

	got := make(chan *measpkt.Measures, 1)
	c.OnMeasures(func(kind MeasureKind, m *measpkt.Measures) {
		assert.Equal(t, "event", kind.Name)
		got <- m
	})

	go p.send(frame.New(FrameEvent,
		0x02, 0x64, 0x00, 0x00, 0x00,
		0x0a, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x40, 0x42, 0x0f, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	))

	var m *measpkt.Measures
	select {
	case m = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no measures")
	}
	assert.Equal(t, uint32(100), m.BaseSeconds)
	require.Len(t, m.Records, 2)
	assert.Equal(t, Timeval{Sec: 100, Usec: 10}, m.Records[0].Time)
	assert.Equal(t, Timeval{Sec: 101, Usec: 0}, m.Records[1].Time)

	samples, err := ReadSamples(&export)
	require.NoError(t, err)
	assert.Equal(t, []Sample{
		{Kind: "event", Sec: 100, Usec: 10, Fields: []uint32{1, 0}},
		{Kind: "event", Sec: 101, Usec: 0, Fields: []uint32{1, 0}},
	}, samples)
}

func TestLoggerFrameGoesToNodeLog(t *testing.T) {
	dir := t.TempDir()
	c, p := newTestClient(t, &Options{LogDir: dir})
	go func() {
		f := p.next()
		p.send(frame.New(FrameLogger, append([]byte{uint8(LoggerError)}, "radio stuck\x00"...)...))
		p.answer(f, Ack)
	}()
	require.NoError(t, c.GreenLedOn(testContext(t)))

	nl := logger.GetNodeLogger(dir, 0)
	defer nl.Close()
	data, err := os.ReadFile(filepath.Join(dir, "cn_0000.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "radio stuck")
	assert.NotContains(t, string(data), "\x00")
}

func TestCaptureRecordsBothDirections(t *testing.T) {
	var buf bytes.Buffer
	capture, err := pcap.NewWriter(&buf)
	require.NoError(t, err)
	c, p := newTestClient(t, &Options{Capture: capture})
	go func() {
		p.answer(p.next(), Ack)
	}()
	require.NoError(t, c.GreenLedOn(testContext(t)))

	frames, err := pcap.ReadFrames(&buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, pcap.ToNode, frames[0].Direction)
	assert.Equal(t, []byte{0x80, 0x01, 0x54}, frames[0].Data)
	assert.Equal(t, pcap.FromNode, frames[1].Direction)
	assert.Equal(t, []byte{0x80, 0x02, 0x54, 0x0a}, frames[1].Data)
}
