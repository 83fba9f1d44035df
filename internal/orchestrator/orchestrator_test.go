package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/backup"
	"github.com/cortexmem/cortex/internal/batch"
	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/coordinator"
	"github.com/cortexmem/cortex/internal/txn"
	"github.com/cortexmem/cortex/internal/types"
)

var errBoom = errors.New("embedding backend unavailable")

// fixedVectorModel returns a caller-supplied vector for known query
// texts and an all-zero vector otherwise, standing in for the
// external embedding model service (spec §6).
func fixedVectorModel(known map[string][]float32, dim int) batch.TextWorkFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if v, ok := known[text]; ok {
				out[i] = v
				continue
			}
			out[i] = make([]float32, dim)
		}
		return out, nil
	}
}

func testConfig(t *testing.T, dim int) *config.Config {
	t.Helper()
	cfg := config.MinimalProfile()
	cfg.DataDir = t.TempDir()
	cfg.HNSW.Dimension = dim
	return cfg
}

func TestOrchestratorInsertSearchSymmetry(t *testing.T) {
	cfg := testConfig(t, 4)
	o, err := New(cfg, Deps{EmbeddingModel: fixedVectorModel(map[string][]float32{
		"query": {1, 0, 0, 0},
	}, 4)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	ctx := context.Background()
	r1, err := o.Insert(ctx, types.Record{Payload: "r1", Vector: []float32{1, 0, 0, 0}, Layer: types.Interact})
	require.NoError(t, err)
	_, err = o.Insert(ctx, types.Record{Payload: "r2", Vector: []float32{0, 1, 0, 0}, Layer: types.Interact})
	require.NoError(t, err)
	_, err = o.Insert(ctx, types.Record{Payload: "r3", Vector: []float32{0, 0, 1, 0}, Layer: types.Interact})
	require.NoError(t, err)

	results, err := o.Search(ctx, "query", []types.Layer{types.Interact}, coordinator.SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, r1.ID, results[0].Record.ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

// TestOrchestratorTransactionNeverAppliesBeforeCommit mirrors spec §8
// scenario 2: a guard dropped without Commit leaves no trace in either
// the Transaction Manager's registry or the Record Store/HNSW, since
// Insert only touches them after Commit succeeds.
func TestOrchestratorTransactionNeverAppliesBeforeCommit(t *testing.T) {
	cfg := testConfig(t, 4)
	o, err := New(cfg, Deps{EmbeddingModel: fixedVectorModel(nil, 4)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	rec := types.Record{
		ID: uuid.New(), Payload: "never-committed", Vector: []float32{1, 1, 1, 1}, Layer: types.Interact,
	}

	func() {
		g := txn.Begin(o.txMgr)
		defer g.Close()
		err := g.AddOp(
			types.Op{Kind: types.OpInsert, Layer: rec.Layer, ID: rec.ID, Record: rec},
			types.RollbackAction{Kind: types.RollbackDeleteInserted, Layer: rec.Layer, ID: rec.ID},
		)
		require.NoError(t, err)
	}()

	require.Equal(t, 0, o.txMgr.Active())
	_, found, err := o.recordStore.Get(types.Interact, rec.ID)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 0, o.indices[types.Interact].Len())
}

func TestOrchestratorPromotionHappyPath(t *testing.T) {
	cfg := testConfig(t, 4)
	cfg.Promotion.PerLayer["interact"] = config.PromotionLayerConfig{
		MinAccessCount: 3, MinConfidenceScore: 0.1, MaxAgeHours: 24 * 30,
	}
	o, err := New(cfg, Deps{EmbeddingModel: fixedVectorModel(nil, 4)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	ctx := context.Background()
	rec, err := o.Insert(ctx, types.Record{
		Payload: "promote-me", Vector: []float32{1, 0, 0, 0}, Layer: types.Interact,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, found, err := o.recordStore.Get(types.Interact, rec.ID)
		require.NoError(t, err)
		require.True(t, found)
		got.AccessCount++
		got.LastAccess = time.Now()
		require.NoError(t, o.recordStore.InsertBatchAtomic([]types.Record{got}))
	}

	_, err = o.RunPromotion(ctx)
	require.NoError(t, err)

	_, foundInteract, err := o.recordStore.Get(types.Interact, rec.ID)
	require.NoError(t, err)
	require.False(t, foundInteract)
}

func TestOrchestratorBackupIncrementalChainRestore(t *testing.T) {
	cfg := testConfig(t, 4)
	o, err := New(cfg, Deps{EmbeddingModel: fixedVectorModel(nil, 4)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	ctx := context.Background()
	rec, err := o.Insert(ctx, types.Record{Payload: "base", Vector: []float32{1, 0, 0, 0}, Layer: types.Interact})
	require.NoError(t, err)

	_, err = o.Backup(ctx, types.BackupFull, "b0", "")
	require.NoError(t, err)

	added, err := o.Insert(ctx, types.Record{Payload: "added", Vector: []float32{0, 1, 0, 0}, Layer: types.Interact})
	require.NoError(t, err)

	_, err = o.Backup(ctx, types.BackupIncremental, "b1", "b0")
	require.NoError(t, err)

	restoreCfg := testConfig(t, 4)
	restoreO, err := New(restoreCfg, Deps{EmbeddingModel: fixedVectorModel(nil, 4)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = restoreO.Shutdown(context.Background()) })

	// The restore target shares the original's backup archive directory
	// but its own fresh Record Store, the way a disaster-recovery
	// restore points a new instance at an existing backup store.
	restoreO.backupC = coordinator.NewBackupCoordinator(
		backup.New(cfg.DataDir, restoreO.recordStore),
		restoreCfg.CircuitBreaker,
		2,
	)

	require.NoError(t, restoreO.Restore(ctx, "b1"))

	_, found, err := restoreO.recordStore.Get(types.Interact, rec.ID)
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = restoreO.recordStore.Get(types.Interact, added.ID)
	require.NoError(t, err)
	require.True(t, found)
}

func TestOrchestratorCircuitBreakerTripsOnEmbeddingFailures(t *testing.T) {
	cfg := testConfig(t, 4)
	cfg.CircuitBreaker.FailureThreshold = 3
	cfg.CircuitBreaker.MinRequestThreshold = 3
	cfg.CircuitBreaker.RecoveryTimeout = 100 * time.Millisecond

	calls := 0
	failing := func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, errBoom
	}
	o, err := New(cfg, Deps{EmbeddingModel: failing})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := o.embedding.Embed(ctx, uniqueText(i))
		require.Error(t, err)
	}

	callsBeforeOpen := calls
	_, err = o.embedding.Embed(ctx, "one-more")
	require.ErrorContains(t, err, "circuit")
	require.Equal(t, callsBeforeOpen, calls, "circuit-open call must not reach the backend")

	time.Sleep(150 * time.Millisecond)
}

func uniqueText(i int) string {
	return "fail-" + string(rune('a'+i))
}
