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

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-lab/cn-node/types"
)

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("debug")
	assert.NoError(t, err)
	assert.Equal(t, DebugLevel, lv)

	lv, err = ParseLevel("E")
	assert.NoError(t, err)
	assert.Equal(t, ErrorLevel, lv)

	lv, err = ParseLevel("off")
	assert.NoError(t, err)
	assert.Equal(t, OffLevel, lv)

	lv, err = ParseLevel(" Warning ")
	assert.NoError(t, err)
	assert.Equal(t, WarnLevel, lv)

	lv, err = ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, DefaultLevel, lv)
}

func TestLevelText(t *testing.T) {
	assert.Equal(t, "debug", DebugLevel.String())
	assert.Equal(t, "crit", ErrorLevel.String())
	assert.Equal(t, "level(42)", Level(42).String())

	var lv Level
	assert.NoError(t, lv.UnmarshalText([]byte("trace")))
	assert.Equal(t, TraceLevel, lv)
	assert.Error(t, lv.UnmarshalText([]byte("loud")))
	assert.Equal(t, TraceLevel, lv)
}

func TestFrameLevels(t *testing.T) {
	for _, wire := range []types.LoggerLevel{types.LoggerDebug, types.LoggerInfo, types.LoggerError} {
		assert.Equal(t, wire, ToFrameLevel(FromFrameLevel(wire)), wire.String())
	}
	assert.Equal(t, WarnLevel, FromFrameLevel(0x7f))
	assert.Equal(t, types.LoggerDebug, ToFrameLevel(TraceLevel))
	assert.Equal(t, types.LoggerInfo, ToFrameLevel(NoteLevel))
	assert.Equal(t, types.LoggerError, ToFrameLevel(WarnLevel))
}

func TestSetOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cn.log")
	require.NoError(t, SetOutput([]string{path}))
	defer func() {
		_ = SetOutput([]string{"stderr"})
		SetLevel(DefaultLevel)
	}()
	assert.Equal(t, []string{path}, Outputs())

	SetLevel(InfoLevel)
	Infof("synced %d nodes", 42)
	Debugf("hidden")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "synced 42 nodes")
	assert.Contains(t, string(data), "info")
	assert.NotContains(t, string(data), "hidden")
}

func TestSetOutputKeepsSinksOnError(t *testing.T) {
	before := Outputs()
	assert.Error(t, SetOutput([]string{filepath.Join(t.TempDir(), "missing", "cn.log")}))
	assert.Equal(t, before, Outputs())
}

func TestAssertTruePanics(t *testing.T) {
	assert.NotPanics(t, func() { AssertTrue(true) })
	assert.Panics(t, func() { AssertTrue(false, "queue corrupted") })
	assert.Panics(t, func() { PanicIfError(os.ErrClosed) })
}

func TestNodeLoggerFile(t *testing.T) {
	dir := t.TempDir()
	nl := GetNodeLogger(dir, 0x0042)
	defer nl.Close()

	assert.Same(t, nl, GetNodeLogger(dir, 0x0042))
	assert.True(t, nl.IsFileEnabled())
	assert.Equal(t, filepath.Join(dir, "cn_0042.log"), nl.FileName())

	nl.SetDisplayLevel(OffLevel)
	nl.Log(InfoLevel, "boot done\n")
	nl.SetFileLevel(ErrorLevel)
	nl.Log(DebugLevel, "quiet")

	data, err := os.ReadFile(nl.FileName())
	require.NoError(t, err)
	assert.Contains(t, string(data), "control node 0042 log")
	assert.Contains(t, string(data), "info boot done\n")
	assert.NotContains(t, string(data), "quiet")
}

func TestNodeLoggerWithoutDir(t *testing.T) {
	nl := GetNodeLogger("", 0x0043)
	defer nl.Close()

	assert.False(t, nl.IsFileEnabled())
	assert.Equal(t, "", nl.FileName())
	nl.SetDisplayLevel(OffLevel)
	nl.Log(ErrorLevel, "dropped")
}
