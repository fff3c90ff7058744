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

package framing

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// fakeTransport records transmitted frames and completes transfers at once.
type fakeTransport struct {
	mu       sync.Mutex
	rx       func(c byte)
	sent     chan []byte
	failNext error
	doneErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan []byte, 64)}
}

func (ft *fakeTransport) Transmit(frame []byte, done func(err error)) error {
	ft.mu.Lock()
	fail, doneErr := ft.failNext, ft.doneErr
	ft.failNext = nil
	ft.mu.Unlock()

	if fail != nil {
		return fail
	}
	ft.sent <- append([]byte(nil), frame...)
	go done(doneErr)
	return nil
}

func (ft *fakeTransport) SetReceiver(rx func(c byte)) {
	ft.mu.Lock()
	ft.rx = rx
	ft.mu.Unlock()
}

func (ft *fakeTransport) feed(data ...byte) {
	ft.mu.Lock()
	rx := ft.rx
	ft.mu.Unlock()
	for _, c := range data {
		rx(c)
	}
}

func (ft *fakeTransport) fail(err error) {
	ft.mu.Lock()
	ft.failNext = err
	ft.mu.Unlock()
}

var errLineDown = errors.New("line down")

// heldTransport keeps each transfer in progress until complete is called.
type heldTransport struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	pending     func(err error)
	started     chan []byte
}

func newHeldTransport() *heldTransport {
	return &heldTransport{started: make(chan []byte, 64)}
}

func (ht *heldTransport) Transmit(frame []byte, done func(err error)) error {
	ht.mu.Lock()
	ht.inFlight++
	if ht.inFlight > ht.maxInFlight {
		ht.maxInFlight = ht.inFlight
	}
	ht.pending = done
	ht.mu.Unlock()
	ht.started <- append([]byte(nil), frame...)
	return nil
}

func (ht *heldTransport) SetReceiver(func(c byte)) {}

func (ht *heldTransport) complete(err error) {
	ht.mu.Lock()
	done := ht.pending
	ht.pending = nil
	ht.inFlight--
	ht.mu.Unlock()
	done(err)
}

func (ht *heldTransport) maxConcurrent() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return ht.maxInFlight
}

func (ht *heldTransport) expectStarted(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-ht.started:
		return f
	case <-time.After(time.Second):
		t.Fatalf("no transfer started")
		return nil
	}
}

func (ht *heldTransport) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case f := <-ht.started:
		t.Errorf("unexpected transfer % x", f)
	case <-time.After(20 * time.Millisecond):
	}
}
