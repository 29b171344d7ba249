package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abduss/cloudnest/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, nil)
	var running, peak, done int32

	h := pool.Wrap("t", func(context.Context, queue.Job) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&done, 1)
	})

	for i := 0; i < 6; i++ {
		h(context.Background(), queue.Job{})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Wait(ctx))

	assert.Equal(t, int32(6), atomic.LoadInt32(&done))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewPool(1, nil)
	var after int32

	pool.Wrap("t", func(context.Context, queue.Job) { panic("boom") })(context.Background(), queue.Job{})
	pool.Wrap("t", func(context.Context, queue.Job) { atomic.AddInt32(&after, 1) })(context.Background(), queue.Job{})

	require.NoError(t, pool.Wait(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}

func TestPoolDropsJobsAfterCancel(t *testing.T) {
	pool := NewPool(1, nil)
	var ran int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool.Wrap("t", func(context.Context, queue.Job) { atomic.AddInt32(&ran, 1) })(ctx, queue.Job{})

	require.NoError(t, pool.Wait(context.Background()))
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestNewRouterRegistersEveryTopic(t *testing.T) {
	proc := newTestProcessor(nil, &fakeReporter{})
	router, err := NewRouter(proc, NewPool(1, nil), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, queue.Topics(), router.Topics())
}
