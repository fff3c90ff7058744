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

package gateway

import (
	"bytes"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/frame"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/measpkt"
	. "github.com/iot-lab/cn-node/types"
)

// MeasureKind describes the records of one measure frame type.
type MeasureKind struct {
	Name   string
	Fields []string
}

func (k MeasureKind) RecordSize() int {
	return measpkt.RecordSize(len(k.Fields))
}

// MeasureKinds lists the measure frames a control node can send.
var MeasureKinds = map[FrameType]MeasureKind{
	FrameEvent:       {Name: "event", Fields: []string{"value", "source"}},
	FrameRadioMeas:   {Name: "radio", Fields: []string{"channel", "rssi"}},
	FrameConsumption: {Name: "consumption", Fields: []string{"power", "voltage", "current"}},
}

// Sample is one exported measure.
type Sample struct {
	Node   uint16   `cbor:"node"`
	Kind   string   `cbor:"kind"`
	Sec    uint32   `cbor:"sec"`
	Usec   uint32   `cbor:"usec"`
	Fields []uint32 `cbor:"fields"`
}

// Samples flattens decoded measures.
func Samples(node uint16, kind string, m *measpkt.Measures) []Sample {
	samples := make([]Sample, len(m.Records))
	for i, rec := range m.Records {
		samples[i] = Sample{
			Node:   node,
			Kind:   kind,
			Sec:    rec.Time.Sec,
			Usec:   rec.Time.Usec,
			Fields: rec.Fields,
		}
	}
	return samples
}

// CBORWriter writes samples as a sequence of CBOR items.
type CBORWriter struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	written uint64
}

func NewCBORWriter(w io.Writer) *CBORWriter {
	return &CBORWriter{enc: cbor.NewEncoder(w)}
}

func (cw *CBORWriter) Write(samples ...Sample) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	for i := range samples {
		if err := cw.enc.Encode(&samples[i]); err != nil {
			return errors.Wrapf(err, "cbor export")
		}
		cw.written++
	}
	return nil
}

// Written returns the number of samples written.
func (cw *CBORWriter) Written() uint64 {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.written
}

// ReadSamples decodes a sequence written by a CBORWriter.
func ReadSamples(r io.Reader) ([]Sample, error) {
	var samples []Sample
	dec := cbor.NewDecoder(r)
	for {
		var s Sample
		err := dec.Decode(&s)
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return samples, errors.Wrapf(err, "cbor import")
		}
		samples = append(samples, s)
	}
}

// OnMeasures adds a handler receiving every decoded measure frame.
func (c *Client) OnMeasures(h func(kind MeasureKind, m *measpkt.Measures)) {
	for frameType, kind := range MeasureKinds {
		kind := kind
		c.Subscribe(frameType, func(f frame.Frame) {
			if m, err := measpkt.Decode(f.Payload, kind.RecordSize()); err == nil {
				h(kind, m)
			}
		})
	}
}

func (c *Client) onMeasures(f frame.Frame) {
	kind := MeasureKinds[f.Type]
	m, err := measpkt.Decode(f.Payload, kind.RecordSize())
	if err != nil {
		logger.Warnf("gateway: %s frame: %v", kind.Name, err)
		return
	}
	logger.Debugf("gateway: %d %s measures", len(m.Records), kind.Name)
	if c.export != nil {
		if err := c.export.Write(Samples(c.NodeId(), kind.Name, m)...); err != nil {
			logger.Errorf("gateway: %v", err)
		}
	}
}

// onLog records a logger frame: level byte, then the message, NUL terminated.
func (c *Client) onLog(f frame.Frame) {
	if len(f.Payload) < 1 {
		logger.Warnf("gateway: empty logger frame")
		return
	}
	level := logger.FromFrameLevel(LoggerLevel(f.Payload[0]))
	msg := f.Payload[1:]
	if i := bytes.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	logger.GetNodeLogger(c.opts.LogDir, c.NodeId()).Log(level, string(msg))
}
