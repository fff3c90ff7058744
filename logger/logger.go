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

// Package logger is the leveled logger of the control node and of the gateway tools.
package logger

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log-level. Higher values are more verbose; the three wire levels of a
// logger frame map to Debug, Info and Error.
type Level int8

const (
	MicroLevel   Level = 7
	TraceLevel   Level = 6
	DebugLevel   Level = 5
	InfoLevel    Level = 4
	NoteLevel    Level = 3
	WarnLevel    Level = 2
	ErrorLevel   Level = 1
	PanicLevel   Level = 0
	FatalLevel   Level = -1
	OffLevel     Level = -2
	MinLevel           = OffLevel
	DefaultLevel       = InfoLevel
)

// StdoutCallback is notified after a log line reached the terminal, so that a console can redraw its prompt.
type StdoutCallback interface {
	OnStdout()
}

var (
	mu           sync.Mutex
	outputs      = []string{"stderr"}
	zaplogger    *zap.Logger
	currentLevel atomic.Int32
	isTerminal   bool
	cbStdout     atomic.Pointer[StdoutCallback]

	// indexed by level - MinLevel
	zapLevels = []zapcore.Level{zapcore.FatalLevel + 1, zapcore.FatalLevel, zapcore.PanicLevel,
		zapcore.ErrorLevel, zapcore.WarnLevel, zapcore.InfoLevel, zapcore.InfoLevel, zapcore.DebugLevel,
		zapcore.DebugLevel, zapcore.DebugLevel}
)

func init() {
	if o, err := os.Stdout.Stat(); err == nil && (o.Mode()&os.ModeCharDevice) == os.ModeCharDevice {
		isTerminal = true
	}
	currentLevel.Store(int32(DefaultLevel))
	if err := build(outputs); err != nil {
		panic(err)
	}
}

func newConfig(paths []string) zap.Config {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc.CallerKey = ""
	enc.StacktraceKey = ""

	return zap.Config{
		Level:             zap.NewAtomicLevelAt(zapcore.DebugLevel),
		Encoding:          "console",
		EncoderConfig:     enc,
		OutputPaths:       paths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     true,
		DisableStacktrace: true,
	}
}

func build(paths []string) error {
	l, err := newConfig(paths).Build()
	if err != nil {
		return err
	}
	mu.Lock()
	old := zaplogger
	zaplogger = l
	outputs = paths
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

func current() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return zaplogger
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	currentLevel.Store(int32(lv))
}

// GetLevel get the current log level
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// SetStdoutCallback sets a callback, that the logger will call when new log content was written to the terminal.
func SetStdoutCallback(cb StdoutCallback) {
	if cb == nil {
		cbStdout.Store(nil)
		return
	}
	cbStdout.Store(&cb)
}

// SetOutput replaces the output sinks, e.g. SetOutput([]string{"stderr", "cn-node.log"}).
// The previous sinks stay in use when the new ones cannot be opened.
func SetOutput(paths []string) error {
	return build(paths)
}

// Outputs returns the sinks currently in use.
func Outputs() []string {
	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), outputs...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

func message(format string, args []interface{}) string {
	if len(args) == 0 {
		return format
	}
	if format != "" {
		return fmt.Sprintf(format, args...)
	}
	return fmt.Sprint(args...)
}

// Log outputs msg at the given level.
func Log(level Level, msg interface{}) {
	if level > GetLevel() {
		return
	}
	logAlways(level, fmt.Sprint(msg))
}

// Logf outputs a formatted message at the given level.
func Logf(level Level, format string, args []interface{}) {
	if level > GetLevel() {
		return
	}
	logAlways(level, message(format, args))
}

func logAlways(level Level, msg string) {
	if level < MinLevel || level > MicroLevel {
		level = ErrorLevel
	}
	if isTerminal {
		_, _ = fmt.Fprint(os.Stdout, "\033[2K\r") // clear the console line
	}
	if ce := current().Check(zapLevels[level-MinLevel], msg); ce != nil {
		ce.Write()
	}
	if cb := cbStdout.Load(); isTerminal && cb != nil {
		(*cb).OnStdout()
	}
}

func Debugf(format string, args ...interface{}) {
	Logf(DebugLevel, format, args)
}

func Infof(format string, args ...interface{}) {
	Logf(InfoLevel, format, args)
}

func Warnf(format string, args ...interface{}) {
	Logf(WarnLevel, format, args)
}

func Errorf(format string, args ...interface{}) {
	Logf(ErrorLevel, format, args)
}

func Panicf(format string, args ...interface{}) {
	Logf(PanicLevel, format, args)
}

// PanicIfError panics when err is set. Used for conditions that only a programming error can cause.
func PanicIfError(err error, args ...interface{}) {
	if err == nil {
		return
	}
	if len(args) == 0 {
		args = []interface{}{err}
	}
	Log(PanicLevel, fmt.Sprint(args...))
}

// FatalIfError logs err and exits the process when err is set.
func FatalIfError(err error, args ...interface{}) {
	if err == nil {
		return
	}
	if len(args) == 0 {
		args = []interface{}{err}
	}
	Log(FatalLevel, fmt.Sprint(args...))
}

type assertLogger struct{}

func (t assertLogger) Errorf(format string, args ...interface{}) {
	Panicf(format, args...)
}

// AssertTrue panics with msgAndArgs when value is false.
func AssertTrue(value bool, msgAndArgs ...interface{}) bool {
	return assert.True(assertLogger{}, value, msgAndArgs...)
}
