package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()

	for _, name := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(Request{Op: OpDeletePath, ChainName: name}))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.ChainName)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestRequestQueue_Close(t *testing.T) {
	q := newRequestQueue()
	require.True(t, q.Enqueue(Request{ChainName: "A"}))

	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(Request{ChainName: "B"}), "enqueue after close should fail")
	assert.False(t, q.Drained(), "queued request still pending")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("closed queue must wake waiters")
	}
}

func TestRequestQueue_SignalNotDrained(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(Request{ChainName: "A"})
	_, _ = q.TryDequeue()

	// A stale signal on an open, empty queue must not read as drained.
	<-q.Wait()
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Drained())
}

func TestRequestQueue_ThreadSafe(t *testing.T) {
	q := newRequestQueue()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(Request{ChainName: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}
