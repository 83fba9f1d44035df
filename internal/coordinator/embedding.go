package coordinator

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/cortexmem/cortex/internal/batch"
	"github.com/cortexmem/cortex/internal/cache"
	"github.com/cortexmem/cortex/internal/types"
)

// EmbeddingCoordinator implements spec §4.10: hash-key cache lookup,
// and on miss enqueue into the text Batch Processor, coalescing
// concurrent requests for the same content key into a single
// in-flight computation via singleflight.
type EmbeddingCoordinator struct {
	*Base
	cache *cache.Cache
	proc  *batch.TextProcessor
	group singleflight.Group
}

// NewEmbeddingCoordinator wires a cache and a text batch processor
// behind the shared coordinator plumbing.
func NewEmbeddingCoordinator(
	cacheCfg cache.Config,
	cacheCapacity int,
	batchCfg batch.Config,
	model batch.TextWorkFunc,
	cbCfg types.CircuitBreakerConfig,
	concurrency int64,
) *EmbeddingCoordinator {
	return &EmbeddingCoordinator{
		Base:  NewBase("embedding", cbCfg, concurrency),
		cache: cache.New(cacheCfg, cacheCapacity),
		proc:  batch.NewTextProcessor(batchCfg, model),
	}
}

// Embed returns the vector for text, populating the cache on miss.
func (e *EmbeddingCoordinator) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := e.Guard(ctx, func(ctx context.Context) error {
		key := cache.ContentKey(text)
		if v, ok := e.cache.Get(key); ok {
			recordCacheHit(e.Name())
			result = v
			return nil
		}
		recordCacheMiss(e.Name())

		v, err, _ := e.group.Do(key, func() (interface{}, error) {
			return e.proc.Submit(ctx, text)
		})
		if err != nil {
			return err
		}
		vec := v.([]float32)
		e.cache.Put(key, vec)
		result = vec
		return nil
	})
	return result, err
}

// EmbedBatch embeds each text, sharing cache and coalescing across
// calls just as Embed does.
func (e *EmbeddingCoordinator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CacheStats exposes the underlying cache's hit/miss counters.
func (e *EmbeddingCoordinator) CacheStats() cache.Stats { return e.cache.Stats() }

// Optimize sweeps expired cache entries and persists if configured.
func (e *EmbeddingCoordinator) Optimize() { e.cache.Optimize() }

// Shutdown stops the batch processor before marking not-ready.
func (e *EmbeddingCoordinator) Shutdown(ctx context.Context) error {
	e.proc.Close()
	return e.Base.Shutdown(ctx)
}
