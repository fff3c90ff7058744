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

// Package cnlogger sends log messages of the control node to the gateway as logger frames.
package cnlogger

import (
	"fmt"
	"sync"

	"github.com/iot-lab/cn-node/framing"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/measpkt"
	"github.com/iot-lab/cn-node/packet"
	"github.com/iot-lab/cn-node/types"
)

// Logger owns a single packet outside of any pool. A message logged while the
// previous one is still being sent is dropped.
type Logger struct {
	sender  measpkt.Sender
	mu      sync.Mutex
	pkt     *packet.Packet
	free    bool
	dropped uint64
}

func New(sender measpkt.Sender) *Logger {
	l := &Logger{sender: sender, free: true}
	l.pkt = packet.NewStandalone(l.release)
	return l
}

func (l *Logger) release(*packet.Packet) {
	l.mu.Lock()
	l.free = true
	l.mu.Unlock()
}

// Log formats a message and sends it. It reports whether the message was queued.
func (l *Logger) Log(level types.LoggerLevel, format string, args ...interface{}) bool {
	l.mu.Lock()
	if !l.free {
		l.dropped++
		l.mu.Unlock()
		return false
	}
	l.free = false
	l.mu.Unlock()

	p := l.pkt
	logger.PanicIfError(p.Reclaim(framing.HeaderSize))

	msg := fmt.Sprintf(format, args...)
	if room := framing.PayloadMax - 2; len(msg) > room {
		msg = msg[:room]
	}
	logger.PanicIfError(p.Append(uint8(level)))
	logger.PanicIfError(p.Append([]byte(msg)...))
	logger.PanicIfError(p.Append(0))

	if err := l.sender.SendFrame(types.FrameLogger, p); err != nil {
		logger.Warnf("logger frame: %v", err)
		_ = p.Free()
		return false
	}
	return true
}

func (l *Logger) Debugf(format string, args ...interface{}) bool {
	return l.Log(types.LoggerDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) bool {
	return l.Log(types.LoggerInfo, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) bool {
	return l.Log(types.LoggerError, format, args...)
}

// Dropped returns the number of messages lost because the packet was busy.
func (l *Logger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
