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
	"sync"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/packet"
	"github.com/iot-lab/cn-node/types"
)

// Handler processes a received command. p holds the command payload; it is reused for
// the answer after the handler returns, so the handler must not keep it.
// A nil error is answered with ACK, anything else with NACK.
type Handler func(cmdType uint8, p *packet.Packet) error

type handlerEntry struct {
	cmdType uint8
	handler Handler
	next    *handlerEntry
}

// Dispatcher maps command types to handlers. The latest registration for a type wins.
type Dispatcher struct {
	mu    sync.RWMutex
	first *handlerEntry
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a handler for cmdType in front of the earlier ones.
func (d *Dispatcher) Register(cmdType uint8, h Handler) {
	d.mu.Lock()
	d.first = &handlerEntry{cmdType: cmdType, handler: h, next: d.first}
	d.mu.Unlock()
}

// Lookup returns the handler for cmdType or nil.
func (d *Dispatcher) Lookup(cmdType uint8) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for e := d.first; e != nil; e = e.next {
		if e.cmdType == cmdType {
			return e.handler
		}
	}
	return nil
}

// Call runs the handler for cmdType with p.
func (d *Dispatcher) Call(cmdType uint8, p *packet.Packet) error {
	h := d.Lookup(cmdType)
	if h == nil {
		return errors.Wrapf(ErrUnknownCommand, "type 0x%02x", cmdType)
	}
	return h(cmdType, p)
}

// Result returns the answer byte for a handler result.
func Result(err error) uint8 {
	if err == nil {
		return types.Ack
	}
	return types.Nack
}
