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

// Package timesync converts tick counter values to the wall clock time given by the gateway.
//
// The gateway sends its time together with the tick value at which it applies.
// Ticks sampled before a new reference was installed keep converting with the
// reference that was in force when they were sampled, so that a time update never
// moves the timestamps of measures already taken.
package timesync

import (
	"sync"
	"sync/atomic"

	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/logger"
	. "github.com/iot-lab/cn-node/types"
)

const (
	// DefaultKFrequency is 1000 times the nominal tick frequency.
	DefaultKFrequency uint32 = clock.Frequency * 1000
	// HardwareKFrequency is 1000 times the real soft timer frequency of the
	// 72 MHz control node, 72000000 / (72000000 / 32768) Hz.
	HardwareKFrequency uint32 = 32771798
)

// Config is one time reference.
type Config struct {
	Tick64Ref     uint64  // tick at which UTCRef applies
	UTCRef        Timeval // wall clock at Tick64Ref
	KFrequency    uint32  // 1000 * tick frequency
	InstallTick64 uint64  // tick at which this reference was installed
}

type snapshot struct {
	current  Config
	previous Config
}

// Sync holds the current time reference and the one before it.
type Sync struct {
	ticks      clock.TickSource
	kfrequency uint32

	writeLock sync.Mutex
	snap      atomic.Pointer[snapshot]
}

// New creates a Sync reading ticks. Until SetTime is called, tick 0 is the epoch.
func New(ticks clock.TickSource, kfrequency uint32) *Sync {
	if kfrequency == 0 {
		kfrequency = DefaultKFrequency
	}
	s := &Sync{
		ticks:      ticks,
		kfrequency: kfrequency,
	}
	initial := Config{KFrequency: kfrequency}
	s.snap.Store(&snapshot{current: initial, previous: initial})
	return s
}

// Extend rebuilds a 64 bit tick from a past 32 bit tick and the current 64 bit tick.
func Extend(tick32 uint32, now64 uint64) uint64 {
	extended := (now64 &^ 0xFFFFFFFF) | uint64(tick32)
	if now64&0x80000000 < uint64(tick32)&0x80000000 {
		extended -= 1 << 32
	}
	return extended
}

// SetTime installs a new reference: utc is the wall clock at tick0.
func (s *Sync) SetTime(tick0 uint32, utc Timeval) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now64 := s.ticks.Now64()
	old := s.snap.Load()
	next := &snapshot{
		current: Config{
			Tick64Ref:     Extend(tick0, now64),
			UTCRef:        utc,
			KFrequency:    s.kfrequency,
			InstallTick64: now64,
		},
		previous: old.current,
	}
	s.snap.Store(next)
	logger.Debugf("timesync: tick %d is %s, installed at %d", next.current.Tick64Ref, utc, now64)
}

// Configs returns the current and the previous reference.
func (s *Sync) Configs() (current, previous Config) {
	snap := s.snap.Load()
	return snap.current, snap.previous
}

// Convert returns the wall clock time of a 64 bit tick. A tick up to and including the
// installation tick of the current reference converts with the previous one.
func (s *Sync) Convert(tick64 uint64) Timeval {
	snap := s.snap.Load()
	cfg := &snap.previous
	if tick64 > snap.current.InstallTick64 {
		cfg = &snap.current
	}
	return cfg.Convert(tick64)
}

// ExtendRelative extends a past 32 bit tick against the counter and converts it.
func (s *Sync) ExtendRelative(tick32 uint32) Timeval {
	return s.Convert(Extend(tick32, s.ticks.Now64()))
}

// Now returns the wall clock time of the current tick.
func (s *Sync) Now() Timeval {
	return s.Convert(s.ticks.Now64())
}

// Convert applies the reference to tick64. Ticks before Tick64Ref give times before UTCRef.
func (c *Config) Convert(tick64 uint64) Timeval {
	if tick64 >= c.Tick64Ref {
		sec, usec := ticksToTime(tick64-c.Tick64Ref, c.KFrequency)
		return addTime(c.UTCRef, sec, usec)
	}
	sec, usec := ticksToTime(c.Tick64Ref-tick64, c.KFrequency)
	return subTime(c.UTCRef, sec, usec)
}

func ticksToTime(ticks uint64, kfrequency uint32) (sec uint64, usec uint32) {
	kticks := ticks * 1000
	kf := uint64(kfrequency)
	sec = kticks / kf
	usec = uint32(kticks % kf * UsecPerSec / kf)
	return
}

func addTime(ref Timeval, sec uint64, usec uint32) Timeval {
	tv := Timeval{
		Sec:  ref.Sec + uint32(sec),
		Usec: ref.Usec + usec,
	}
	if tv.Usec >= UsecPerSec {
		tv.Sec++
		tv.Usec -= UsecPerSec
	}
	return tv
}

func subTime(ref Timeval, sec uint64, usec uint32) Timeval {
	tv := Timeval{
		Sec:  ref.Sec - uint32(sec),
		Usec: ref.Usec,
	}
	if tv.Usec < usec {
		tv.Sec--
		tv.Usec += UsecPerSec
	}
	tv.Usec -= usec
	return tv
}
