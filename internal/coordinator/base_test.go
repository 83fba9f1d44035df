package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/types"
)

func TestBaseGuardSuccessAndFailure(t *testing.T) {
	b := NewBase("test-base", testBreakerConfig(), 4)
	ctx := context.Background()

	require.NoError(t, b.Guard(ctx, func(ctx context.Context) error { return nil }))

	wantErr := errors.New("boom")
	err := b.Guard(ctx, func(ctx context.Context) error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	used, capacity := b.Permits()
	require.Equal(t, int64(0), used)
	require.Equal(t, int64(4), capacity)
}

func TestBaseGuardLimitsConcurrency(t *testing.T) {
	b := NewBase("concurrency-base", testBreakerConfig(), 2)
	ctx := context.Background()

	release := make(chan struct{})
	var wg sync.WaitGroup
	var maxObserved int64
	var mu sync.Mutex

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Guard(ctx, func(ctx context.Context) error {
				used, _ := b.Permits()
				mu.Lock()
				if used > maxObserved {
					maxObserved = used
				}
				mu.Unlock()
				<-release
				return nil
			})
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, maxObserved, int64(2))
	used, _ := b.Permits()
	require.Equal(t, int64(0), used)
}

func TestBaseLifecycle(t *testing.T) {
	b := NewBase("lifecycle-base", testBreakerConfig(), 1)
	require.False(t, b.IsReady())
	require.NoError(t, b.Initialize(context.Background()))
	require.True(t, b.IsReady())
	require.NoError(t, b.Shutdown(context.Background()))
	require.False(t, b.IsReady())
}

func TestBaseHealthReflectsCircuitState(t *testing.T) {
	b := NewBase("health-base", testBreakerConfig(), 1)
	h := b.Health()
	require.Equal(t, types.CircuitClosed, h.CircuitState)
}
