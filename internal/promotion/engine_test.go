package promotion

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/hnsw"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/txn"
	"github.com/cortexmem/cortex/internal/types"
)

func newHarness(t *testing.T) (*store.RecordStore, map[types.Layer]*hnsw.Index, *txn.Manager) {
	t.Helper()
	rs, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	cfg := hnsw.Config{Dimension: 4, MaxConnections: 8, EFConstruction: 32, EFSearch: 16, MaxElements: 1000}
	indices := map[types.Layer]*hnsw.Index{
		types.Interact: hnsw.New(cfg),
		types.Insights: hnsw.New(cfg),
		types.Assets:   hnsw.New(cfg),
	}
	return rs, indices, txn.NewManager()
}

func TestPromotionHappyPath(t *testing.T) {
	rs, indices, txMgr := newHarness(t)

	rec := types.Record{
		ID: uuid.New(), Payload: "x", Vector: []float32{1, 0, 0, 0},
		Layer: types.Interact, CreatedAt: time.Now().Add(-time.Hour),
		LastAccess: time.Now(), AccessCount: 5, Relevance: 0.9,
	}
	require.NoError(t, rs.InsertBatchAtomic([]types.Record{rec}))
	require.NoError(t, indices[types.Interact].Insert(rec.ID.String(), rec.Vector))

	pcfg := config.PromotionConfig{
		Algorithm: "hybrid",
		PerLayer: map[string]config.PromotionLayerConfig{
			"interact": {MinAccessCount: 3, MinConfidenceScore: 0.1, MaxAgeHours: 0},
		},
		HybridFrequencyWeight: 0.5, HybridSemanticWeight: 0.5,
		MaxRecordsPerRun: 10,
	}
	rulesCfg := RulesConfig{GlobalRateCapPerHour: 1000}

	eng, err := New(rs, indices, txMgr, pcfg, rulesCfg, nil)
	require.NoError(t, err)

	decisions, err := eng.Run()
	require.NoError(t, err)
	require.NotEmpty(t, decisions)

	d := decisions[0]
	require.True(t, d.TargetLayer.Rank() > types.Interact.Rank())

	_, foundOld, err := rs.Get(types.Interact, rec.ID)
	require.NoError(t, err)
	require.False(t, foundOld)

	_, foundNew, err := rs.Get(d.TargetLayer, rec.ID)
	require.NoError(t, err)
	require.True(t, foundNew)
}

func TestPromotionNeverMovesBackwards(t *testing.T) {
	require.True(t, types.ValidTransition(types.Interact, types.Insights))
	require.True(t, types.ValidTransition(types.Interact, types.Assets))
	require.False(t, types.ValidTransition(types.Assets, types.Interact))
	require.True(t, types.ValidTransition(types.Assets, types.Assets))
}

func TestHybridAlgorithmTrainingHistory(t *testing.T) {
	algo := NewHybridAlgorithm(0.5, 0.5)
	examples := []types.TrainingExample{
		{Features: types.PromotionFeatures{AccessCount: 90, AccessFrequency: 1, AccessRecency: 1}, Promoted: true},
		{Features: types.PromotionFeatures{}, Promoted: false},
	}
	acc1 := algo.Train(examples)
	acc2 := algo.Train(examples)
	require.Equal(t, []float64{acc1, acc2}, algo.TrainingHistory())
}
