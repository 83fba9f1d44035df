package coordinator

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/batch"
	"github.com/cortexmem/cortex/internal/cache"
)

func newTestEmbeddingCoordinator(t *testing.T, model batch.TextWorkFunc) *EmbeddingCoordinator {
	t.Helper()
	ec := NewEmbeddingCoordinator(
		cache.Config{MaxBytes: 1 << 20, TTL: time.Minute},
		64,
		batch.Config{MinBatchSize: 1, MaxBatchSize: 4, WorkerThreads: 2, QueueCapacity: 16, BatchTimeout: 5 * time.Millisecond},
		model,
		testBreakerConfig(),
		4,
	)
	t.Cleanup(func() { _ = ec.Shutdown(context.Background()) })
	return ec
}

func TestEmbeddingCoordinatorCachesResult(t *testing.T) {
	var calls int64
	model := func(ctx context.Context, texts []string) ([][]float32, error) {
		atomic.AddInt64(&calls, 1)
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(strings.ToUpper(s)))}
		}
		return out, nil
	}
	ec := newTestEmbeddingCoordinator(t, model)
	ctx := context.Background()

	v1, err := ec.Embed(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{5}, v1)

	v2, err := ec.Embed(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
	stats := ec.CacheStats()
	require.Equal(t, uint64(1), stats.Hits)
}

func TestEmbeddingCoordinatorBatch(t *testing.T) {
	model := func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(s))}
		}
		return out, nil
	}
	ec := newTestEmbeddingCoordinator(t, model)

	out, err := ec.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}, {3}}, out)
}

func TestEmbeddingCoordinatorCoalescesConcurrentRequests(t *testing.T) {
	var calls int64
	block := make(chan struct{})
	model := func(ctx context.Context, texts []string) ([][]float32, error) {
		atomic.AddInt64(&calls, 1)
		<-block
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1}
		}
		return out, nil
	}
	ec := newTestEmbeddingCoordinator(t, model)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		_, _ = ec.Embed(ctx, "shared-key")
		done <- struct{}{}
	}()
	go func() {
		_, _ = ec.Embed(ctx, "shared-key")
		done <- struct{}{}
	}()

	time.Sleep(15 * time.Millisecond)
	close(block)
	<-done
	<-done

	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
