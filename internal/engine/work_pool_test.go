package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool_SubmitAndProcess(t *testing.T) {
	pool := NewWorkerPool(2, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var mu sync.Mutex
	done := make(map[string]bool)
	var wg sync.WaitGroup

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		id := id
		wg.Add(1)
		ok := pool.Submit(Job{
			SessionID: id,
			Run: func(ctx context.Context) {
				defer wg.Done()
				mu.Lock()
				done[id] = true
				mu.Unlock()
			},
		})
		assert.True(t, ok)
	}

	wg.Wait()
	assert.Len(t, done, 5)
}

func TestWorkerPool_RejectsWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, zap.NewNop())
	// Not started: nothing drains the queue.

	blocker := Job{SessionID: "x", Run: func(ctx context.Context) {}}
	assert.True(t, pool.Submit(blocker))
	assert.False(t, pool.Submit(blocker))
}

func TestWorkerPool_StopsOnCancel(t *testing.T) {
	pool := NewWorkerPool(1, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	// Give the worker a moment to observe the cancellation; jobs submitted
	// afterwards may sit in the queue but must not run.
	time.Sleep(50 * time.Millisecond)

	ran := make(chan struct{}, 1)
	pool.Submit(Job{SessionID: "late", Run: func(ctx context.Context) {
		ran <- struct{}{}
	}})

	select {
	case <-ran:
		t.Fatal("job ran after the pool was stopped")
	case <-time.After(100 * time.Millisecond):
	}
}
