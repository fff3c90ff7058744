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

// Package frame encodes and decodes the serial frames on the gateway side of the link.
package frame

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/framing"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/types"
)

var (
	ErrLengthMismatch = errors.New("frame length mismatch")
)

// Frame is one serial frame: [SYNC][LEN][TYPE][payload].
type Frame struct {
	Type    types.FrameType
	Payload []byte
}

// New returns a frame holding a copy of payload.
func New(frameType types.FrameType, payload ...byte) Frame {
	return Frame{Type: frameType, Payload: append([]byte(nil), payload...)}
}

// Serialize returns the wire bytes of the frame.
func (f *Frame) Serialize() []byte {
	logger.AssertTrue(len(f.Payload) <= framing.PayloadMax, "payload of %d bytes", len(f.Payload))

	msg := make([]byte, framing.HeaderSize+len(f.Payload))
	msg[0] = framing.SyncByte
	msg[1] = uint8(len(f.Payload) + 1)
	msg[2] = f.Type
	n := copy(msg[framing.HeaderSize:], f.Payload)
	logger.AssertTrue(n == len(f.Payload))
	return msg
}

// Deserialize decodes the first frame found in data into f. Bytes before a SYNC byte,
// and SYNC bytes followed by a zero LEN, are skipped.
// It returns the number of bytes used from data, skipped ones included, or 0 if data
// does not contain one entire frame.
func (f *Frame) Deserialize(data []byte) int {
	i := 0
	for {
		j := bytes.IndexByte(data[i:], framing.SyncByte)
		if j < 0 {
			return 0
		}
		i += j
		if len(data)-i < 2 {
			return 0
		}
		datalen := int(data[i+1])
		if datalen == 0 {
			i++
			continue
		}
		if len(data)-i < 2+datalen {
			return 0
		}
		f.Type = data[i+2]
		f.Payload = make([]byte, datalen-1)
		copy(f.Payload, data[i+3:i+2+datalen])
		return i + 2 + datalen
	}
}

// Garbage returns how many leading bytes of data can never start a frame.
func Garbage(data []byte) int {
	i := 0
	for {
		j := bytes.IndexByte(data[i:], framing.SyncByte)
		if j < 0 {
			return len(data)
		}
		i += j
		if len(data)-i >= 2 && data[i+1] == 0 {
			i++
			continue
		}
		return i
	}
}

// Parse decodes data holding exactly one frame.
func Parse(data []byte) (Frame, error) {
	var f Frame
	if len(data) < framing.HeaderSize || data[0] != framing.SyncByte || data[1] == 0 ||
		int(data[1])+2 != len(data) {
		return f, errors.Wrapf(ErrLengthMismatch, "% x", data)
	}
	f.Deserialize(data)
	return f, nil
}

// IsAnswer reports whether the frame is the ACK or NACK answer to a command.
func (f *Frame) IsAnswer() bool {
	return len(f.Payload) == 1 && (f.Payload[0] == types.Ack || f.Payload[0] == types.Nack)
}

// IsAck reports whether the frame is a positive answer.
func (f *Frame) IsAck() bool {
	return len(f.Payload) == 1 && f.Payload[0] == types.Ack
}

func (f *Frame) String() string {
	paylStr := ""
	if len(f.Payload) > 0 {
		paylStr = fmt.Sprintf(",payl=%s", hex.EncodeToString(f.Payload))
	}
	return fmt.Sprintf("Frame{%s%s}", types.FrameTypeName(f.Type), paylStr)
}

// Decoder reads frames from a byte stream.
type Decoder struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	skipped atomic.Uint64
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:     r,
		chunk: make([]byte, 512),
	}
}

// Skipped returns the number of bytes discarded while looking for frames.
func (d *Decoder) Skipped() uint64 {
	return d.skipped.Load()
}

// Next returns the next frame of the stream. It returns the reader's error once no
// complete frame is left.
func (d *Decoder) Next() (Frame, error) {
	var f Frame
	for {
		if g := Garbage(d.buf); g > 0 {
			d.skipped.Add(uint64(g))
			d.buf = d.buf[g:]
		}
		if n := f.Deserialize(d.buf); n > 0 {
			d.buf = d.buf[n:]
			return f, nil
		}

		n, err := d.r.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:n]...)
		if err != nil && n == 0 {
			return f, err
		}
	}
}
