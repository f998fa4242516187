package txqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighPriorityDrainsFirst(t *testing.T) {
	q := New()
	q.Push(PrioLow, Item{Payload: []byte("low")})
	q.Push(PrioHigh, Item{Payload: []byte("high")})

	item, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "high", string(item.Payload))

	item, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "low", string(item.Payload))
}

func TestTryPopEmpty(t *testing.T) {
	q := New()
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan Item, 1)
	go func() {
		item, ok := q.Pop()
		if ok {
			done <- item
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(PrioHigh, Item{Payload: []byte("x")})

	select {
	case item := <-done:
		assert.Equal(t, "x", string(item.Payload))
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up")
	}
}

func TestClosePopUnblocksWaiters(t *testing.T) {
	q := New()
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, ok := q.Pop()
			results <- ok
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()
	for i := 0; i < 3; i++ {
		select {
		case ok := <-results:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("Close never woke a waiter")
		}
	}
}

func TestClearDropsQueued(t *testing.T) {
	q := New()
	q.Push(PrioHigh, Item{})
	q.Push(PrioLow, Item{})
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
