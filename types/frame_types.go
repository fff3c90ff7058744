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

package types

import "fmt"

// FrameType is the TYPE byte of a serial frame exchanged with the gateway.
type FrameType = uint8

const (
	// Commands from the gateway.
	FrameSetTime       FrameType = 0x52
	FrameSetNodeId     FrameType = 0x53
	FrameGreenLedOn    FrameType = 0x54
	FrameGreenLedBlink FrameType = 0x55
	FrameConfigGpio    FrameType = 0x56

	// Asynchronous frames sent by the control node.
	FrameAck         FrameType = 0xFA
	FrameLogger      FrameType = 0xFB
	FrameEvent       FrameType = 0xFC
	FrameRadioMeas   FrameType = 0xFE
	FrameConsumption FrameType = 0xFF
)

// Reply codes carried as the single payload byte of a command answer.
const (
	Ack  uint8 = 0x0A
	Nack uint8 = 0x02
)

// Transmit priorities. Answers preempt queued measures.
const (
	MeasuresPriority uint8 = 0
	AnswerPriority   uint8 = 0x80
)

// Start/stop mode byte used by measurement configuration commands.
const (
	ModeStop  uint8 = 0
	ModeStart uint8 = 1
)

// LoggerLevel is the first payload byte of a logger frame.
type LoggerLevel uint8

const (
	LoggerDebug LoggerLevel = 0x01
	LoggerInfo  LoggerLevel = 0x02
	LoggerError LoggerLevel = 0x03
)

func (l LoggerLevel) String() string {
	switch l {
	case LoggerDebug:
		return "debug"
	case LoggerInfo:
		return "info"
	case LoggerError:
		return "error"
	default:
		return "unknown"
	}
}

// FrameTypeName returns a printable name for known frame types.
func FrameTypeName(t FrameType) string {
	switch t {
	case FrameSetTime:
		return "set_time"
	case FrameSetNodeId:
		return "set_node_id"
	case FrameGreenLedOn:
		return "green_led_on"
	case FrameGreenLedBlink:
		return "green_led_blink"
	case FrameConfigGpio:
		return "config_gpio"
	case FrameAck:
		return "ack_frame"
	case FrameLogger:
		return "logger_frame"
	case FrameEvent:
		return "event_frame"
	case FrameRadioMeas:
		return "radio_meas_frame"
	case FrameConsumption:
		return "consumption_frame"
	default:
		return fmt.Sprintf("0x%02x", t)
	}
}
