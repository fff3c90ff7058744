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

// Package eventloop runs deferred work of the control node in a single goroutine,
// the task context. Posting never blocks so it can be done from a byte reader.
package eventloop

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/logger"
)

const (
	DefaultDepth = 64
)

var (
	ErrQueueFull = errors.New("event queue full")
)

// Loop is a bounded queue of functions run one after the other.
type Loop struct {
	taskChan chan func()
	dropped  atomic.Uint64
}

func New(depth int) *Loop {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Loop{
		taskChan: make(chan func(), depth),
	}
}

// Post queues f without blocking. A full queue drops f and returns ErrQueueFull.
func (l *Loop) Post(f func()) error {
	select {
	case l.taskChan <- f:
		return nil
	default:
		l.dropped.Add(1)
		return ErrQueueFull
	}
}

// Call runs f in the loop and waits for it to complete.
func (l *Loop) Call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		f()
	}
	select {
	case l.taskChan <- task:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many posts were refused because the queue was full.
func (l *Loop) Dropped() uint64 {
	return l.dropped.Load()
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	return len(l.taskChan)
}

// RunPending runs the queued functions in the calling goroutine until the queue is empty.
// It returns how many ran.
func (l *Loop) RunPending() int {
	count := 0
	for {
		select {
		case f := <-l.taskChan:
			f()
			count++
		default:
			return count
		}
	}
}

// Run executes posted functions until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer logger.Debugf("event loop exit.")
	for {
		select {
		case f := <-l.taskChan:
			f()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
