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
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/types"
)

var levelNames = map[string]Level{
	"micro":    MicroLevel,
	"trace":    TraceLevel,
	"t":        TraceLevel,
	"debug":    DebugLevel,
	"d":        DebugLevel,
	"info":     InfoLevel,
	"i":        InfoLevel,
	"note":     NoteLevel,
	"n":        NoteLevel,
	"warn":     WarnLevel,
	"warning":  WarnLevel,
	"w":        WarnLevel,
	"error":    ErrorLevel,
	"err":      ErrorLevel,
	"crit":     ErrorLevel,
	"critical": ErrorLevel,
	"e":        ErrorLevel,
	"c":        ErrorLevel,
	"off":      OffLevel,
	"none":     OffLevel,
	"default":  DefaultLevel,
	"def":      DefaultLevel,
}

// ParseLevel accepts level names and their one letter abbreviations, in any case.
// DefaultLevel is returned along with the error for unknown names.
func ParseLevel(s string) (Level, error) {
	if lv, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lv, nil
	}
	return DefaultLevel, errors.Errorf("invalid log level: %q", s)
}

// UnmarshalText lets a Level be read from YAML or flag values.
func (l *Level) UnmarshalText(text []byte) error {
	lv, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lv
	return nil
}

func (l Level) String() string {
	switch l {
	case MicroLevel:
		return "micro"
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case NoteLevel:
		return "note"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "crit"
	case PanicLevel:
		return "panic"
	case FatalLevel:
		return "fatal"
	case OffLevel:
		return "off"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// FromFrameLevel maps the level byte of a logger frame sent by the control node to a Level.
func FromFrameLevel(level types.LoggerLevel) Level {
	switch level {
	case types.LoggerDebug:
		return DebugLevel
	case types.LoggerInfo:
		return InfoLevel
	case types.LoggerError:
		return ErrorLevel
	default:
		return WarnLevel
	}
}

// ToFrameLevel is the inverse of FromFrameLevel. Levels without a wire value round to the nearest one.
func ToFrameLevel(level Level) types.LoggerLevel {
	switch {
	case level >= DebugLevel:
		return types.LoggerDebug
	case level >= NoteLevel:
		return types.LoggerInfo
	default:
		return types.LoggerError
	}
}
