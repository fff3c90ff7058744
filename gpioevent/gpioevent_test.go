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

package gpioevent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/control"
	"github.com/iot-lab/cn-node/eventloop"
	"github.com/iot-lab/cn-node/framing"
	"github.com/iot-lab/cn-node/measpkt"
	"github.com/iot-lab/cn-node/packet"
	"github.com/iot-lab/cn-node/timesync"
	. "github.com/iot-lab/cn-node/types"
)

type fakeLink struct {
	handlers map[uint8]framing.Handler
	types    []uint8
	sent     []*packet.Packet
}

func (l *fakeLink) Register(cmdType uint8, h framing.Handler) {
	l.handlers[cmdType] = h
}

func (l *fakeLink) SendFrame(frameType uint8, p *packet.Packet) error {
	l.types = append(l.types, frameType)
	l.sent = append(l.sent, p)
	return nil
}

func config(t *testing.T, l *fakeLink, payload ...byte) error {
	p, _ := packet.NewPool("cmd", 1).Alloc(framing.HeaderSize)
	require.NoError(t, p.Append(payload...))
	return l.handlers[FrameConfigGpio](FrameConfigGpio, p)
}

func setup() (*Events, *fakeLink, *eventloop.Loop, *clock.Manual) {
	link := &fakeLink{handlers: map[uint8]framing.Handler{}}
	loop := eventloop.New(4)
	clk := clock.NewManual(clock.Frequency * 10)
	sync := timesync.New(clk, 0)
	sync.SetTime(0, Timeval{Sec: 1000})
	e := New(link, loop, sync)
	e.Register(link)
	return e, link, loop, clk
}

func TestEdgesIgnoredUntilStarted(t *testing.T) {
	e, link, loop, clk := setup()
	e.OnEdge(clk.Now32())
	assert.Equal(t, 0, loop.Pending())

	require.NoError(t, config(t, link, ModeStart, ConfigPPS))
	assert.True(t, e.Enabled())
	e.OnEdge(clk.Now32())
	assert.Equal(t, 1, loop.Pending())

	require.NoError(t, config(t, link, ModeStop, ConfigPPS))
	assert.False(t, e.Enabled())
	e.OnEdge(clk.Now32())
	assert.Equal(t, 1, loop.Pending())

	assert.ErrorIs(t, config(t, link, ModeStart), control.ErrBadLength)
}

func TestEdgesBatched(t *testing.T) {
	e, link, loop, clk := setup()
	require.NoError(t, config(t, link, ModeStart, ConfigPPS))

	clk.Advance(clock.Frequency / 2)
	e.OnEdge(clk.Now32())
	clk.Advance(clock.Frequency)
	e.OnEdge(clk.Now32())
	assert.Equal(t, 2, loop.RunPending())
	assert.Empty(t, link.sent)

	e.Flush()
	require.Len(t, link.sent, 1)
	assert.Equal(t, []uint8{FrameEvent}, link.types)

	m, err := measpkt.Decode(link.sent[0].Data(), measpkt.RecordSize(2))
	require.NoError(t, err)
	assert.Equal(t, uint32(1010), m.BaseSeconds)
	assert.Equal(t, []measpkt.Record{
		{Time: Timeval{Sec: 1010, Usec: 500000}, Fields: []uint32{1, uint32(SourcePPS)}},
		{Time: Timeval{Sec: 1011, Usec: 500000}, Fields: []uint32{1, uint32(SourcePPS)}},
	}, m.Records)
}

func TestEdgesMissedWhenLoopFull(t *testing.T) {
	e, link, loop, clk := setup()
	require.NoError(t, config(t, link, ModeStart, ConfigPPS))
	for i := 0; i < 5; i++ {
		e.OnEdge(clk.Now32())
	}
	assert.Equal(t, 4, loop.Pending())
	assert.Equal(t, uint64(1), e.Missed())
	assert.Equal(t, uint64(0), e.Dropped())
}

func TestRunPPS(t *testing.T) {
	e, link, loop, _ := setup()
	require.NoError(t, config(t, link, ModeStart, ConfigPPS))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.RunPPS(ctx, clock.NewReal(), 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, loop.Pending(), 0)
}
