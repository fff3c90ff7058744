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

// Package clock provides the tick counter of the control node: a free running
// 32768 Hz counter read either as its narrow 32 bit value or its 64 bit extension.
package clock

import (
	"sync/atomic"
	"time"
)

const (
	// Frequency is the nominal tick rate in Hz.
	Frequency = 32768
)

// TickSource is the soft timer the control node stamps events with.
type TickSource interface {
	// Now32 returns the low 32 bits of the counter. Safe from any goroutine.
	Now32() uint32
	// Now64 returns the full counter. Safe from any goroutine.
	Now64() uint64
}

// MsToTicks converts milliseconds to ticks, truncating.
func MsToTicks(ms uint32) uint32 {
	return uint32(uint64(ms) * Frequency / 1000)
}

// DurationToTicks converts a duration to ticks, truncating.
func DurationToTicks(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	sec := uint64(d) / uint64(time.Second)
	rem := uint64(d) % uint64(time.Second)
	return sec*Frequency + rem*Frequency/uint64(time.Second)
}

// TicksToDuration converts ticks to a duration, truncating to nanoseconds.
func TicksToDuration(ticks uint64) time.Duration {
	return time.Duration(ticks/Frequency)*time.Second + time.Duration(ticks%Frequency)*time.Second/Frequency
}

// Real is a TickSource derived from the monotonic host clock.
type Real struct {
	start  time.Time
	offset uint64
}

// NewReal returns a counter starting at zero now.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// NewRealAt returns a counter that currently reads offset. Used to exercise the 32 bit wrap.
func NewRealAt(offset uint64) *Real {
	return &Real{start: time.Now(), offset: offset}
}

func (r *Real) Now64() uint64 {
	return r.offset + DurationToTicks(time.Since(r.start))
}

func (r *Real) Now32() uint32 {
	return uint32(r.Now64())
}

// Manual is a TickSource that only moves when told to.
type Manual struct {
	ticks atomic.Uint64
}

// NewManual returns a manual counter reading ticks.
func NewManual(ticks uint64) *Manual {
	m := &Manual{}
	m.ticks.Store(ticks)
	return m
}

func (m *Manual) Now64() uint64 {
	return m.ticks.Load()
}

func (m *Manual) Now32() uint32 {
	return uint32(m.ticks.Load())
}

// Set moves the counter to ticks.
func (m *Manual) Set(ticks uint64) {
	m.ticks.Store(ticks)
}

// Advance moves the counter forward and returns the new value.
func (m *Manual) Advance(ticks uint64) uint64 {
	return m.ticks.Add(ticks)
}
