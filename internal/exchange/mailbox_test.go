package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jqwang/partri/internal/wire"
)

func TestMailbox_PushThenPop(t *testing.T) {
	m := NewMailbox(4)
	m.Push(wire.Message{TargetLeaf: 1, SourceLeaf: 2})

	msg, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), msg.TargetLeaf)
	assert.Equal(t, uint64(2), msg.SourceLeaf)
}

func TestMailbox_PreservesPerProducerFIFO(t *testing.T) {
	m := NewMailbox(8)
	for i := uint64(0); i < 5; i++ {
		m.Push(wire.Message{SourceLeaf: 7, TargetLeaf: i})
	}

	for i := uint64(0); i < 5; i++ {
		msg, ok := m.Pop()
		require.True(t, ok)
		assert.Equal(t, i, msg.TargetLeaf)
	}
}

func TestMailbox_PopBlocksUntilPush(t *testing.T) {
	m := NewMailbox(1)
	received := make(chan wire.Message, 1)

	go func() {
		msg, ok := m.Pop()
		if ok {
			received <- msg
		}
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-received:
		t.Fatal("Pop returned before any Push")
	default:
	}

	m.Push(wire.Message{TargetLeaf: 9})

	select {
	case msg := <-received:
		assert.Equal(t, uint64(9), msg.TargetLeaf)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
}

func TestMailbox_CloseUnblocksPendingPop(t *testing.T) {
	m := NewMailbox(1)
	done := make(chan bool, 1)

	go func() {
		_, ok := m.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked after Close")
	}
}

func TestMailbox_CloseStillDrainsRemaining(t *testing.T) {
	m := NewMailbox(2)
	m.Push(wire.Message{TargetLeaf: 3})
	m.Close()

	msg, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(3), msg.TargetLeaf)

	_, ok = m.Pop()
	assert.False(t, ok)
}

func TestMailbox_ConcurrentProducersAllDelivered(t *testing.T) {
	m := NewMailbox(16)
	const producers = 4
	const perProducer = 10

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Push(wire.Message{SourceLeaf: uint64(p), TargetLeaf: uint64(i)})
			}
		}(p)
	}
	wg.Wait()

	count := 0
	for i := 0; i < producers*perProducer; i++ {
		_, ok := m.Pop()
		require.True(t, ok)
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
