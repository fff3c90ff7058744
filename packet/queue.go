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

package packet

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/iot-lab/cn-node/logger"
)

// Queue is a singly linked list of packets. A pool queue owns the arena of its
// packets and hands them out last freed first. A pending queue keeps its packets
// in descending priority, first in first out among equal priorities.
type Queue struct {
	name     string
	pool     bool
	capacity int

	mu     sync.Mutex
	head   *Packet
	count  int
	signal chan struct{}
	slots  []Packet
}

// NewPool creates a pool of n packets, all free.
func NewPool(name string, n int) *Queue {
	q := &Queue{
		name:     name,
		pool:     true,
		capacity: n,
		signal:   make(chan struct{}, 1),
		slots:    make([]Packet, n),
	}
	for i := n - 1; i >= 0; i-- {
		p := &q.slots[i]
		p.storage = q
		p.owner.Store(int32(OwnerFree))
		p.next = q.head
		q.head = p
	}
	q.count = n
	return q
}

// NewQueue creates an empty pending queue.
func NewQueue(name string) *Queue {
	return &Queue{
		name:   name,
		signal: make(chan struct{}, 1),
	}
}

func (q *Queue) Name() string {
	return q.name
}

// Capacity is the number of packets a pool was created with, 0 for a pending queue.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Count returns the number of packets currently in the queue.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Alloc takes a packet from the pool and resets it with the given header offset.
// It never blocks.
func (q *Queue) Alloc(headerOffset int) (*Packet, error) {
	if !q.pool {
		return nil, errors.Errorf("alloc from pending queue %s", q.name)
	}
	if headerOffset < 0 || headerOffset > MaxSize {
		return nil, errors.Wrapf(ErrNoSpace, "header offset %d", headerOffset)
	}

	q.mu.Lock()
	p := q.head
	if p == nil {
		q.mu.Unlock()
		return nil, errors.Wrapf(ErrExhausted, "pool %s", q.name)
	}
	q.head = p.next
	q.count--
	q.mu.Unlock()

	p.next = nil
	p.reset(headerOffset)
	logger.AssertTrue(p.transfer(OwnerFree, OwnerUser), "pool %s held a %s packet", q.name, p.Owner())
	return p, nil
}

func (q *Queue) pushFree(p *Packet) {
	q.mu.Lock()
	p.next = q.head
	q.head = p
	q.count++
	q.mu.Unlock()
}

// PriorityInsert puts p before the first packet with a strictly lower priority.
func (q *Queue) PriorityInsert(p *Packet) error {
	if q.pool {
		return errors.Wrapf(ErrNotOwned, "insert into pool %s", q.name)
	}
	if !p.transfer(OwnerUser, OwnerPending) {
		err := errors.Wrapf(ErrNotOwned, "insert of a %s packet into %s", p.Owner(), q.name)
		logger.Warnf("%v", err)
		return err
	}

	q.mu.Lock()
	link := &q.head
	for *link != nil && (*link).Priority >= p.Priority {
		link = &(*link).next
	}
	p.next = *link
	*link = p
	q.count++
	wasEmpty := q.count == 1
	q.mu.Unlock()

	if wasEmpty {
		q.wake()
	}
	return nil
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := q.head
	if p == nil {
		return nil
	}
	q.head = p.next
	q.count--
	if q.count > 0 {
		q.wake()
	}
	p.next = nil
	return p
}

// TryGet takes the first packet of a pending queue, or returns nil if it is empty.
func (q *Queue) TryGet() *Packet {
	if q.pool {
		return nil
	}
	p := q.pop()
	if p != nil {
		logger.AssertTrue(p.transfer(OwnerPending, OwnerUser), "queue %s held a %s packet", q.name, p.Owner())
	}
	return p
}

// Get takes the first packet of a pending queue, waiting until there is one or ctx is done.
func (q *Queue) Get(ctx context.Context) (*Packet, error) {
	if q.pool {
		return nil, errors.Errorf("get from pool %s", q.name)
	}
	for {
		if p := q.TryGet(); p != nil {
			return p, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
