package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueueGroup_RejectsEmptyGroup(t *testing.T) {
	_, err := NewQueueGroup(0)
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "queue_count", cfgErr.Field)
}

func TestQueueGroup_RoundRobin(t *testing.T) {
	g, err := NewQueueGroup(3)
	require.NoError(t, err)
	defer g.Stop()

	var ids []int
	for i := 0; i < 7; i++ {
		ids = append(ids, g.Next().ID())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, ids)
	assert.Equal(t, 3, g.Len())
}

func TestQueue_PreservesOrder(t *testing.T) {
	g, err := NewQueueGroup(4)
	require.NoError(t, err)

	const perQueue = 500
	results := make([][]int, g.Len())
	var wg sync.WaitGroup

	for qi := 0; qi < g.Len(); qi++ {
		q := g.Queue(qi)
		wg.Add(1)
		go func(qi int) {
			defer wg.Done()
			for i := 0; i < perQueue; i++ {
				i := i
				assert.True(t, q.Enqueue(func() { results[qi] = append(results[qi], i) }))
			}
		}(qi)
	}
	wg.Wait()
	g.Stop()

	for qi, got := range results {
		require.Len(t, got, perQueue, "queue %d", qi)
		for i, v := range got {
			assert.Equal(t, i, v, "queue %d out of order", qi)
		}
	}
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	var hooked atomic.Int32
	g, err := NewQueueGroup(1, WithPanicHook(func(int, any) { hooked.Add(1) }))
	require.NoError(t, err)

	q := g.Next()
	ran := make(chan struct{})
	q.Enqueue(func() { panic("boom") })
	q.Enqueue(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queue stopped after panic")
	}
	g.Stop()

	assert.Equal(t, uint64(1), q.Panics())
	assert.Equal(t, uint64(2), q.Processed())
	assert.Equal(t, int32(1), hooked.Load())
}

func TestQueue_StopDrainsThenRejects(t *testing.T) {
	g, err := NewQueueGroup(1)
	require.NoError(t, err)
	q := g.Next()

	block := make(chan struct{})
	var count atomic.Int32
	q.Enqueue(func() { <-block })
	for i := 0; i < 10; i++ {
		q.Enqueue(func() { count.Add(1) })
	}

	stopped := make(chan struct{})
	go func() {
		g.Stop()
		close(stopped)
	}()
	close(block)
	<-stopped

	assert.Equal(t, int32(10), count.Load())
	assert.False(t, q.Enqueue(func() {}))
	assert.Equal(t, 0, q.Len())
}

func TestQueueGroup_Pending(t *testing.T) {
	g, err := NewQueueGroup(2)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	q := g.Queue(0)
	q.Enqueue(func() {
		close(started)
		<-release
	})
	<-started

	q.Enqueue(func() {})
	q.Enqueue(func() {})
	assert.Equal(t, 2, g.Pending())

	close(release)
	g.Stop()
	assert.Equal(t, 0, g.Pending())
}
