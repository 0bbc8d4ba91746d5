package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPool_RunReturnsJobError(t *testing.T) {
	pool := New(2, zap.NewNop())
	defer pool.Close()

	want := errors.New("vendor down")
	err := pool.Run(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)

	assert.NoError(t, pool.Run(context.Background(), func() error { return nil }))
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := New(2, zap.NewNop())
	defer pool.Close()

	var running, peak int32
	release := make(chan struct{})

	futures := make([]*Future, 0, 5)
	for i := 0; i < 5; i++ {
		futures = append(futures, pool.Submit(context.Background(), func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return nil
		}))
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	for _, f := range futures {
		require.NoError(t, f.Wait(context.Background()))
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestPool_WaitHonoursContext(t *testing.T) {
	pool := New(1, zap.NewNop())

	block := make(chan struct{})
	f := pool.Submit(context.Background(), func() error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	// The job itself keeps running until it returns
	close(block)
	require.NoError(t, f.Wait(context.Background()))
	pool.Close()
}

func TestPool_PanicBecomesError(t *testing.T) {
	pool := New(1, zap.NewNop())
	defer pool.Close()

	err := pool.Run(context.Background(), func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := New(1, zap.NewNop())
	pool.Close()

	err := pool.AddExecutorJob(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
