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

package measpkt

import (
	"encoding/binary"

	"github.com/pkg/errors"

	. "github.com/iot-lab/cn-node/types"
)

var (
	ErrMalformed = errors.New("malformed measure payload")
)

// Record is one decoded measure.
type Record struct {
	Time   Timeval
	Fields []uint32
}

// Measures is a decoded measure packet.
type Measures struct {
	BaseSeconds uint32
	Records     []Record
}

// Decode parses the payload of a measure frame whose records are recordSize bytes long.
func Decode(payload []byte, recordSize int) (*Measures, error) {
	if recordSize < TimeLen || (recordSize-TimeLen)%4 != 0 {
		return nil, errors.Wrapf(ErrMalformed, "record size %d", recordSize)
	}
	if len(payload) < HeaderLen {
		return nil, errors.Wrapf(ErrMalformed, "%d byte payload", len(payload))
	}
	count := int(payload[countOffset])
	if len(payload) != HeaderLen+count*recordSize {
		return nil, errors.Wrapf(ErrMalformed, "%d records of %d bytes in %d byte payload",
			count, recordSize, len(payload))
	}

	m := &Measures{
		BaseSeconds: binary.LittleEndian.Uint32(payload[timeOffset:]),
		Records:     make([]Record, count),
	}
	nfields := (recordSize - TimeLen) / 4
	data := payload[HeaderLen:]
	for i := range m.Records {
		rec := data[i*recordSize : (i+1)*recordSize]
		usecs := binary.LittleEndian.Uint32(rec)
		r := &m.Records[i]
		r.Time = Timeval{
			Sec:  m.BaseSeconds + usecs/UsecPerSec,
			Usec: usecs % UsecPerSec,
		}
		r.Fields = make([]uint32, nfields)
		for j := range r.Fields {
			r.Fields[j] = binary.LittleEndian.Uint32(rec[TimeLen+4*j:])
		}
	}
	return m, nil
}
