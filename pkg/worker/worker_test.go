package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatchCountsSuccesses(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	var seen sync.Map

	ok := RunBatch(context.Background(), items, 3, func(_ context.Context, n int) error {
		seen.Store(n, true)
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	assert.Equal(t, int32(3), ok)
	for _, n := range items {
		_, found := seen.Load(n)
		assert.True(t, found, "item %d not processed", n)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	assert.Zero(t, RunBatch[int](context.Background(), nil, 4, nil))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("always")
	})
	assert.EqualError(t, err, "always")
	assert.Equal(t, 2, calls)
}

func TestPoolRunsAndDrains(t *testing.T) {
	p := NewPool(2, 8, nil)
	var ran int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			atomic.AddInt32(&ran, 1)
		}))
	}
	require.NoError(t, p.Submit(func(context.Context) { panic("recovered") }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
}

func TestPollerStopsWithContext(t *testing.T) {
	var ticks int32
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller("test", 5*time.Millisecond, func(context.Context) error {
		if atomic.AddInt32(&ticks, 1) >= 2 {
			cancel()
		}
		return nil
	}, nil)

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&ticks), int32(2))
}
