package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RunBatch processes items on at most maxWorkers goroutines and returns how
// many items fn handled without error.
func RunBatch[T any](ctx context.Context, items []T, maxWorkers int, fn func(context.Context, T) error) int32 {
	if len(items) == 0 {
		return 0
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	jobs := make(chan T, len(items))
	var succeeded int32
	var wg sync.WaitGroup

	for w := 0; w < min(len(items), maxWorkers); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(ctx, item); err == nil {
					atomic.AddInt32(&succeeded, 1)
				}
			}
		}()
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)

	wg.Wait()
	return atomic.LoadInt32(&succeeded)
}

// Retry calls fn up to attempts times, sleeping delay between tries.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
