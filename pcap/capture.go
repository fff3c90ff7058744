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

// Package pcap records the frames of a serial link in a PCAP file. Each record
// holds one direction byte followed by the frame bytes, SYNC included.
package pcap

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

const (
	// LinkTypeSerial is DLT_USER0.
	LinkTypeSerial = layers.LinkType(147)
	snapLen        = 512
)

// Direction tells which side sent a frame.
type Direction uint8

const (
	ToNode   Direction = 0
	FromNode Direction = 1
)

func (d Direction) String() string {
	if d == ToNode {
		return "to_node"
	}
	return "from_node"
}

// Frame is one captured frame.
type Frame struct {
	Timestamp time.Time
	Direction Direction
	Data      []byte
}

// File appends frames to a capture. It is safe for concurrent use.
type File struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	frames uint64
}

// NewFile creates or truncates filename and writes the capture header.
func NewFile(filename string) (*File, error) {
	fd, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "create capture")
	}
	pf, err := NewWriter(fd)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	pf.closer = fd
	return pf, nil
}

// NewWriter starts a capture on w.
func NewWriter(w io.Writer) (*File, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, LinkTypeSerial); err != nil {
		return nil, errors.Wrapf(err, "capture header")
	}
	return &File{w: pw}, nil
}

func (pf *File) AppendFrame(frame Frame) error {
	data := make([]byte, 1+len(frame.Data))
	data[0] = uint8(frame.Direction)
	copy(data[1:], frame.Data)

	pf.mu.Lock()
	defer pf.mu.Unlock()
	err := pf.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     frame.Timestamp,
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
	if err != nil {
		return errors.Wrapf(err, "capture")
	}
	pf.frames++
	return nil
}

// Frames returns the number of frames written.
func (pf *File) Frames() uint64 {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.frames
}

func (pf *File) Close() error {
	if pf.closer == nil {
		return nil
	}
	return pf.closer.Close()
}

// ReadFrames reads back a capture written by File.
func ReadFrames(r io.Reader) ([]Frame, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "capture header")
	}
	if pr.LinkType() != LinkTypeSerial {
		return nil, errors.Errorf("unexpected link type %d", pr.LinkType())
	}

	var frames []Frame
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, errors.Wrapf(err, "capture record")
		}
		if len(data) < 1 {
			return frames, errors.Errorf("empty capture record")
		}
		frames = append(frames, Frame{
			Timestamp: ci.Timestamp,
			Direction: Direction(data[0]),
			Data:      data[1:],
		})
	}
}
