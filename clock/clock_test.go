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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	assert.Equal(t, uint32(3276), MsToTicks(100))
	assert.Equal(t, uint32(32768), MsToTicks(1000))
	assert.Equal(t, uint64(32768), DurationToTicks(time.Second))
	assert.Equal(t, uint64(16384), DurationToTicks(500*time.Millisecond))
	assert.Equal(t, uint64(0), DurationToTicks(-time.Second))
	assert.Equal(t, 2*time.Second, TicksToDuration(65536))
	assert.Equal(t, time.Second/2, TicksToDuration(16384))
}

func TestManual(t *testing.T) {
	m := NewManual(0xFFFFFFFF)
	assert.Equal(t, uint32(0xFFFFFFFF), m.Now32())
	assert.Equal(t, uint64(0x100000001), m.Advance(2))
	assert.Equal(t, uint32(1), m.Now32())
	m.Set(42)
	assert.Equal(t, uint64(42), m.Now64())
}

func TestReal(t *testing.T) {
	r := NewRealAt(0xFFFFFF00)
	first := r.Now64()
	assert.GreaterOrEqual(t, first, uint64(0xFFFFFF00))
	time.Sleep(2 * time.Millisecond)
	assert.Greater(t, r.Now64(), first)
}
