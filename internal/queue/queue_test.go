package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 500; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 500, q.Len())

	for i := 0; i < 500; i++ {
		v, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	assert.True(t, q.Empty())
}

func TestTryDequeueEmpty(t *testing.T) {
	q := New[string]()
	v, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestInterleavedEnqueueDequeue(t *testing.T) {
	q := New[int]()
	next := 0
	want := 0
	for round := 0; round < 100; round++ {
		for i := 0; i < 3; i++ {
			q.Enqueue(next)
			next++
		}
		for i := 0; i < 2; i++ {
			v, ok := q.TryDequeue()
			require.True(t, ok)
			require.Equal(t, want, v)
			want++
		}
	}
	assert.Equal(t, next-want, q.Len())
}

// TestConcurrentProducersKeepPerProducerOrder runs several producers against
// one consumer and checks nothing is lost and each producer's items arrive
// in the order they were enqueued.
func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	type item struct{ producer, seq int }

	const producers = 4
	const perProducer = 2000

	q := New[item]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(item{p, i})
			}
		}(p)
	}

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	received := 0

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	drain := func() {
		for {
			it, ok := q.TryDequeue()
			if !ok {
				return
			}
			require.Greater(t, it.seq, last[it.producer])
			last[it.producer] = it.seq
			received++
		}
	}

	for {
		select {
		case <-done:
			drain()
			assert.Equal(t, producers*perProducer, received)
			return
		default:
			drain()
		}
	}
}

func TestClear(t *testing.T) {
	q := New[int]()
	assert.Zero(t, q.Clear())

	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 10, q.Clear())
	assert.True(t, q.Empty())

	q.Enqueue(42)
	v, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}
