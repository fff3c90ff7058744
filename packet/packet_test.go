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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocFree(t *testing.T) {
	pool := NewPool("test", 3)
	assert.Equal(t, 3, pool.Count())
	assert.Equal(t, 3, pool.Capacity())

	var pkts []*Packet
	for i := 0; i < 3; i++ {
		p, err := pool.Alloc(3)
		require.NoError(t, err)
		assert.Equal(t, OwnerUser, p.Owner())
		assert.Equal(t, 3, p.HeaderOffset())
		assert.Equal(t, 0, p.Len())
		pkts = append(pkts, p)
		assert.Equal(t, 2-i, pool.Count())
	}

	p, err := pool.Alloc(3)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, pool.Count())

	for i, p := range pkts {
		require.NoError(t, p.Free())
		assert.Equal(t, i+1, pool.Count())
	}
}

func TestPoolIsLastFreedFirst(t *testing.T) {
	pool := NewPool("lifo", 2)
	a, _ := pool.Alloc(0)
	b, _ := pool.Alloc(0)
	require.NoError(t, a.Free())
	require.NoError(t, b.Free())

	p, err := pool.Alloc(0)
	require.NoError(t, err)
	assert.Same(t, b, p)
}

func TestAllocResetsPacket(t *testing.T) {
	pool := NewPool("reset", 1)
	p, _ := pool.Alloc(3)
	require.NoError(t, p.Append(1, 2, 3))
	p.Priority = 9
	p.Timestamp = 1234
	require.NoError(t, p.Free())

	p, _ = pool.Alloc(0)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, p.HeaderOffset())
	assert.Equal(t, uint8(0), p.Priority)
	assert.Equal(t, uint32(0), p.Timestamp)
}

func TestFreeOwnership(t *testing.T) {
	pool := NewPool("own", 1)
	q := NewQueue("pending")
	p, _ := pool.Alloc(0)

	require.NoError(t, q.PriorityInsert(p))
	assert.ErrorIs(t, p.Free(), ErrNotOwned)
	assert.ErrorIs(t, q.PriorityInsert(p), ErrNotOwned)
	assert.Equal(t, 1, q.Count())
	assert.Equal(t, 0, pool.Count())

	got := q.TryGet()
	require.Same(t, p, got)
	require.NoError(t, got.Free())
	assert.ErrorIs(t, got.Free(), ErrDoubleFree)
	assert.ErrorIs(t, q.PriorityInsert(got), ErrNotOwned)
	assert.Equal(t, 1, pool.Count())
	assert.Equal(t, 0, q.Count())
}

func TestFreeReturnsToOwningPool(t *testing.T) {
	pool1 := NewPool("one", 1)
	pool2 := NewPool("two", 1)
	q := NewQueue("tx")

	p1, _ := pool1.Alloc(0)
	p2, _ := pool2.Alloc(0)
	require.NoError(t, q.PriorityInsert(p2))
	require.NoError(t, q.PriorityInsert(p1))

	require.NoError(t, q.TryGet().Free())
	require.NoError(t, q.TryGet().Free())
	assert.Equal(t, 1, pool1.Count())
	assert.Equal(t, 1, pool2.Count())
}

func TestPriorityOrder(t *testing.T) {
	names := "abcdefghijklmnopqrst"
	priorities := []uint8{42, 10, 8, 7, 7, 6, 5, 5, 5, 4, 3, 2, 1, 1, 1, 1, 1, 0, 0, 0}
	insertOrder := "gcmndfhabirsjkloepqt"

	pool := NewPool("prio", len(names))
	q := NewQueue("prio")
	byName := map[byte]*Packet{}
	for i := 0; i < len(names); i++ {
		p, err := pool.Alloc(0)
		require.NoError(t, err)
		p.Priority = priorities[i]
		require.NoError(t, p.Append(names[i]))
		byName[names[i]] = p
	}

	for i := 0; i < len(insertOrder); i++ {
		require.NoError(t, q.PriorityInsert(byName[insertOrder[i]]))
	}
	assert.Equal(t, len(names), q.Count())

	ctx := context.Background()
	var drained []byte
	for q.Count() > 0 {
		p, err := q.Get(ctx)
		require.NoError(t, err)
		drained = append(drained, p.Data()[0])
		require.NoError(t, p.Free())
	}
	assert.Equal(t, names, string(drained))
	assert.Equal(t, len(names), pool.Count())
}

func TestGetBlocksUntilInsert(t *testing.T) {
	pool := NewPool("block", 1)
	q := NewQueue("block")

	got := make(chan *Packet)
	go func() {
		p, err := q.Get(context.Background())
		assert.NoError(t, err)
		got <- p
	}()

	select {
	case <-got:
		t.Fatal("Get returned from an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	p, _ := pool.Alloc(0)
	require.NoError(t, q.PriorityInsert(p))
	select {
	case g := <-got:
		assert.Same(t, p, g)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up")
	}
}

func TestGetWakesEveryWaiter(t *testing.T) {
	pool := NewPool("multi", 2)
	q := NewQueue("multi")

	got := make(chan *Packet, 2)
	for i := 0; i < 2; i++ {
		go func() {
			p, err := q.Get(context.Background())
			assert.NoError(t, err)
			got <- p
		}()
	}
	time.Sleep(10 * time.Millisecond)

	a, _ := pool.Alloc(0)
	b, _ := pool.Alloc(0)
	require.NoError(t, q.PriorityInsert(a))
	require.NoError(t, q.PriorityInsert(b))
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("waiter not woken")
		}
	}
}

func TestGetCancelled(t *testing.T) {
	q := NewQueue("cancel")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	p, err := q.Get(ctx)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolRejectsQueueOps(t *testing.T) {
	pool := NewPool("pool", 1)
	q := NewQueue("q")
	_, err := q.Alloc(0)
	assert.Error(t, err)

	p, _ := pool.Alloc(0)
	assert.ErrorIs(t, pool.PriorityInsert(p), ErrNotOwned)
	assert.Nil(t, pool.TryGet())
	_, err = pool.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, OwnerUser, p.Owner())
}

func TestPacketData(t *testing.T) {
	pool := NewPool("data", 1)
	p, _ := pool.Alloc(3)
	assert.Equal(t, MaxSize-3, p.Room())

	require.NoError(t, p.Append(0xAA, 0xBB))
	assert.Equal(t, []byte{0xAA, 0xBB}, p.Data())
	assert.Equal(t, byte(0xAA), p.Raw()[3])

	assert.ErrorIs(t, p.Append(make([]byte, p.Room()+1)...), ErrNoSpace)
	assert.Equal(t, 2, p.Len())
	require.NoError(t, p.Append(make([]byte, p.Room())...))
	assert.Equal(t, 0, p.Room())

	assert.ErrorIs(t, p.SetLen(MaxSize), ErrNoSpace)
	require.NoError(t, p.SetLen(1))
	assert.Equal(t, []byte{0xAA}, p.Data())

	require.NoError(t, p.Reframe(0, 4))
	assert.Equal(t, byte(0xAA), p.Data()[3])
	assert.ErrorIs(t, p.Reframe(200, 100), ErrNoSpace)
}

func TestStandalone(t *testing.T) {
	freed := 0
	p := NewStandalone(func(*Packet) { freed++ })
	assert.Equal(t, OwnerFree, p.Owner())

	require.NoError(t, p.Reclaim(3))
	assert.ErrorIs(t, p.Reclaim(3), ErrNotOwned)
	require.NoError(t, p.Append(1))
	require.NoError(t, p.Free())
	assert.Equal(t, 1, freed)
	assert.ErrorIs(t, p.Free(), ErrDoubleFree)
	assert.Equal(t, 1, freed)

	pooled, _ := NewPool("p", 1).Alloc(0)
	assert.ErrorIs(t, pooled.Reclaim(0), ErrNotOwned)
}

func TestStandaloneWithoutCallback(t *testing.T) {
	p := NewStandalone(nil)
	require.NoError(t, p.Reclaim(3))
	assert.ErrorIs(t, p.Free(), ErrNotOwned)
	assert.Equal(t, OwnerUser, p.Owner())
}
