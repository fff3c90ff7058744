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

package node

import (
	"context"
	"sync/atomic"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/cnlogger"
	"github.com/iot-lab/cn-node/control"
	"github.com/iot-lab/cn-node/eventloop"
	"github.com/iot-lab/cn-node/framing"
	"github.com/iot-lab/cn-node/gpioevent"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/progctx"
	"github.com/iot-lab/cn-node/timesync"
	"github.com/iot-lab/cn-node/transport"
)

// Port is the byte link to the gateway.
type Port interface {
	framing.Transport
	Name() string
	Run(ctx context.Context) error
}

// Status is a snapshot of the node counters.
type Status struct {
	NodeId        uint16
	Link          framing.Stats
	LoopDropped   uint64
	EdgesMissed   uint64
	EventsDropped uint64
	LogsDropped   uint64
	TxPending     int
	PortUp        bool
}

// Node is a running control node.
type Node struct {
	cfg    *Config
	port   Port
	ticks  clock.TickSource
	loop   *eventloop.Loop
	sync   *timesync.Sync
	link   *framing.Protocol
	ctrl   *control.Control
	events *gpioevent.Events
	log    *cnlogger.Logger
	health *Health
	portUp atomic.Bool
}

// New builds a node talking over port.
func New(cfg *Config, port Port, ticks clock.TickSource, leds control.Leds) *Node {
	n := &Node{
		cfg:   cfg,
		port:  port,
		ticks: ticks,
		loop:  eventloop.New(cfg.LoopDepth),
		sync:  timesync.New(ticks, cfg.KFrequency),
	}
	n.link = framing.New(port, n.loop, ticks)
	n.ctrl = control.New(n.link, n.loop, n.sync, leds)
	n.events = gpioevent.New(n.link, n.loop, n.sync)
	n.log = cnlogger.New(n.link)
	n.ctrl.AddFlusher(n.events)
	return n
}

// Open opens the configured serial device and builds a node on the host clock.
func Open(cfg *Config) (*Node, error) {
	stream, err := transport.OpenUART(cfg.Serial.Device, cfg.Serial.Port)
	if err != nil {
		return nil, err
	}
	return New(cfg, stream, clock.NewReal(), nil), nil
}

// Start registers the command handlers and starts every goroutine of the node.
func (n *Node) Start(ctx *progctx.ProgCtx) error {
	n.ctrl.Start()
	n.events.Register(n.link)

	if n.cfg.HealthAddr != "" {
		health, err := ServeHealth(ctx, n.cfg.HealthAddr)
		if err != nil {
			return err
		}
		n.health = health
	}

	ctx.Go("event_loop", n.loop.Run)
	n.link.Start(ctx)

	n.setPortUp(true)
	ctx.Go(n.port.Name(), func(c context.Context) error {
		defer n.setPortUp(false)
		return n.port.Run(c)
	})

	if n.cfg.PPS.Emulate {
		ctx.Go("pps", func(c context.Context) error {
			return n.events.RunPPS(c, n.ticks, n.cfg.PPS.Period)
		})
	}

	logger.Infof("control node running on %s", n.port.Name())
	n.log.Infof("control node started")
	return nil
}

func (n *Node) setPortUp(up bool) {
	n.portUp.Store(up)
	if n.health != nil {
		n.health.SetServing(up)
	}
}

// Status returns the current counters.
func (n *Node) Status() Status {
	return Status{
		NodeId:        n.ctrl.NodeId(),
		Link:          n.link.Stats(),
		LoopDropped:   n.loop.Dropped(),
		EdgesMissed:   n.events.Missed(),
		EventsDropped: n.events.Dropped(),
		LogsDropped:   n.log.Dropped(),
		TxPending:     n.link.Sender().Pending(),
		PortUp:        n.portUp.Load(),
	}
}

func (n *Node) Sync() *timesync.Sync {
	return n.sync
}

func (n *Node) Events() *gpioevent.Events {
	return n.events
}

func (n *Node) Logger() *cnlogger.Logger {
	return n.log
}

// Health returns the health server, nil when disabled.
func (n *Node) Health() *Health {
	return n.health
}
