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

// Package transport carries the bytes of the serial link: a real UART or an in-memory pipe.
package transport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/logger"
)

var (
	ErrBusy = errors.New("transfer already in progress")
)

// Port is the minimal interface of a serial port.
type Port interface {
	io.ReadWriter
	io.Closer
}

type txRequest struct {
	frame []byte
	done  func(err error)
}

// Stream drives a Port: a reader goroutine feeds every received byte to the receiver,
// and a writer performs one transfer at a time, reporting its end through a callback.
type Stream struct {
	name string
	port Port

	rxLock sync.Mutex
	rx     func(c byte)

	txReq chan txRequest
	busy  atomic.Bool

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

func NewStream(name string, port Port) *Stream {
	return &Stream{
		name:  name,
		port:  port,
		txReq: make(chan txRequest, 1),
	}
}

func (s *Stream) Name() string {
	return s.name
}

// SetReceiver installs the byte receiver. Bytes received without a receiver are dropped.
func (s *Stream) SetReceiver(rx func(c byte)) {
	s.rxLock.Lock()
	s.rx = rx
	s.rxLock.Unlock()
}

// Transmit starts writing frame. Only one transfer may be in progress.
func (s *Stream) Transmit(frame []byte, done func(err error)) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	s.txReq <- txRequest{frame: frame, done: done}
	return nil
}

// Counters returns the number of bytes received and sent.
func (s *Stream) Counters() (in, out uint64) {
	return s.bytesIn.Load(), s.bytesOut.Load()
}

// Run moves bytes until ctx is done or the port fails. The port is closed on return.
func (s *Stream) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readLoop()
	}()
	defer logger.Debugf("%s: stream exit.", s.name)

	for {
		select {
		case req := <-s.txReq:
			n, err := s.port.Write(req.frame)
			s.bytesOut.Add(uint64(n))
			s.busy.Store(false)
			req.done(errors.Wrapf(err, "%s write", s.name))
		case err := <-readErr:
			_ = s.port.Close()
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "%s read", s.name)
		case <-ctx.Done():
			_ = s.port.Close()
			return ctx.Err()
		}
	}
}

func (s *Stream) readLoop() error {
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.bytesIn.Add(uint64(n))
			s.rxLock.Lock()
			rx := s.rx
			s.rxLock.Unlock()
			if rx != nil {
				for _, c := range buf[:n] {
					rx(c)
				}
			}
		}
		if err != nil {
			return err
		}
	}
}
