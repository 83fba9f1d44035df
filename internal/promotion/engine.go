package promotion

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/hnsw"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/txn"
	"github.com/cortexmem/cortex/internal/types"
)

// nextLayer implements the target-layer decision in spec §4.6 step 5:
// confidence > 0.9 skips Interact straight to Assets; > 0.7 moves up
// one tier; otherwise the record stays.
func nextLayer(cur types.Layer, confidence float64) types.Layer {
	if confidence > 0.9 {
		if cur == types.Interact {
			return types.Assets
		}
		return types.Assets
	}
	if confidence > 0.7 {
		switch cur {
		case types.Interact:
			return types.Insights
		case types.Insights:
			return types.Assets
		}
	}
	return cur
}

// recordHistory is the in-memory per-record promotion history used by
// the rules engine; it is process-local bookkeeping, not part of the
// durable Record (spec §4.7 "promotion history").
type recordHistory struct {
	mu   sync.Mutex
	data map[uuid.UUID]*History
}

func newRecordHistory() *recordHistory {
	return &recordHistory{data: make(map[uuid.UUID]*History)}
}

func (h *recordHistory) get(id uuid.UUID) History {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hist, ok := h.data[id]; ok {
		return *hist
	}
	return History{}
}

func (h *recordHistory) record(id uuid.UUID, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.data[id]
	if !ok {
		hist = &History{}
		h.data[id] = hist
	}
	if hist.LastPromotionTime.Day() != at.Day() || hist.LastPromotionTime.IsZero() {
		hist.PromotionsToday = 0
	}
	hist.PromotionsToday++
	hist.LastPromotionTime = at
}

// Engine runs periodic promotion ticks (spec §4.6). A tick is
// serialised against concurrent ticks by mu; two ticks never overlap
// (spec §5 "Promotion is serialised").
type Engine struct {
	mu sync.Mutex

	recordStore *store.RecordStore
	indices     map[types.Layer]*hnsw.Index
	txMgr       *txn.Manager

	cfg      config.PromotionConfig
	rulesCfg RulesConfig
	algo     Algorithm

	history       *recordHistory
	promotionsHr  []time.Time // sliding window of promotion timestamps
	loadFn        func() float64
}

// New builds a Promotion Engine wired to the shared Record Store,
// per-layer HNSW indices, and Transaction Manager.
func New(
	rs *store.RecordStore,
	indices map[types.Layer]*hnsw.Index,
	txMgr *txn.Manager,
	cfg config.PromotionConfig,
	rulesCfg RulesConfig,
	loadFn func() float64,
) (*Engine, error) {
	algo, err := ForName(cfg.Algorithm, cfg.HybridFrequencyWeight, cfg.HybridSemanticWeight)
	if err != nil {
		return nil, err
	}
	if loadFn == nil {
		loadFn = func() float64 { return 0 }
	}
	return &Engine{
		recordStore: rs,
		indices:     indices,
		txMgr:       txMgr,
		cfg:         cfg,
		rulesCfg:    rulesCfg,
		algo:        algo,
		history:     newRecordHistory(),
		loadFn:      loadFn,
	}, nil
}

// Algorithm exposes the configured scoring algorithm (for training and
// introspection).
func (e *Engine) Algorithm() Algorithm { return e.algo }

// Run executes one promotion tick across all non-Assets layers,
// bounded by cfg.MaxRecordsPerRun (spec §4.6 scheduling note).
func (e *Engine) Run() ([]types.PromotionDecision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	timer := logging.StartTimer(logging.CategoryPromotion, "run_tick")
	defer timer.Stop()

	now := time.Now()
	shares, err := e.computeShares()
	if err != nil {
		return nil, err
	}

	var applied []types.PromotionDecision
	budget := e.cfg.MaxRecordsPerRun
	if budget <= 0 {
		budget = 1000
	}

	for _, layer := range []types.Layer{types.Interact, types.Insights} {
		if budget <= 0 {
			break
		}
		decisions, err := e.tickLayer(layer, now, shares, &budget)
		if err != nil {
			return applied, err
		}
		applied = append(applied, decisions...)
	}
	return applied, nil
}

func (e *Engine) computeShares() (CorpusShares, error) {
	var shares CorpusShares
	for _, l := range types.AllLayers() {
		count := 0
		err := e.recordStore.IterLayer(l, func(types.Record) error {
			count++
			return nil
		})
		if err != nil {
			return shares, err
		}
		shares.Total += count
		switch l {
		case types.Interact:
			shares.InteractCount = count
		case types.Assets:
			shares.AssetsCount = count
		}
	}
	return shares, nil
}

func (e *Engine) tickLayer(layer types.Layer, now time.Time, shares CorpusShares, budget *int) ([]types.PromotionDecision, error) {
	layerCfg, hasLayerCfg := e.cfg.PerLayer[layer.String()]

	var candidates []types.Record
	err := e.recordStore.IterLayer(layer, func(r types.Record) error {
		if *budget <= 0 {
			return nil
		}
		if hasLayerCfg && int(r.AccessCount) < layerCfg.MinAccessCount {
			return nil
		}
		candidates = append(candidates, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	keywords := keywordSet(layerCfg.Keywords)

	var decisions []types.PromotionDecision
	for _, rec := range candidates {
		if *budget <= 0 {
			break
		}
		features := ExtractFeatures(rec, now, keywords)
		confidence := e.algo.Score(features)

		sys := SystemState{
			Now:                now,
			Load:               e.loadFn(),
			PromotionsThisHour: e.promotionsInLastHour(now),
			Shares:             shares,
		}
		decision := Evaluate(e.cfg, e.rulesCfg, rec, confidence, e.history.get(rec.ID), sys)
		if !decision.Allowed {
			continue
		}

		target := nextLayer(layer, confidence*decision.ThresholdMultiplier)
		pd := types.PromotionDecision{
			Record: rec, CurrentLayer: layer, TargetLayer: target,
			Confidence: confidence, Features: features, Timestamp: now,
			Algorithm: e.algo.Name(), Reason: decision.Reason,
		}
		if target == layer {
			continue // self-move: nothing to apply
		}
		if !types.ValidTransition(layer, target) {
			continue
		}
		if err := e.apply(pd); err != nil {
			return decisions, err
		}
		e.history.record(rec.ID, now)
		e.promotionsHr = append(e.promotionsHr, now)
		decisions = append(decisions, pd)
		*budget--
	}
	return decisions, nil
}

func (e *Engine) promotionsInLastHour(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	kept := e.promotionsHr[:0]
	count := 0
	for _, t := range e.promotionsHr {
		if t.After(cutoff) {
			kept = append(kept, t)
			count++
		}
	}
	e.promotionsHr = kept
	return count
}

// apply builds a Transaction with Delete(source)+Insert(target) and
// commits it through the Transaction Manager, then applies the result
// to the Record Store and HNSW indices (spec §4.6 step 6).
func (e *Engine) apply(pd types.PromotionDecision) error {
	g := txn.Begin(e.txMgr)
	defer g.Close()

	moved := pd.Record
	moved.Layer = pd.TargetLayer
	moved.CreatedAt = pd.Timestamp // residence time resets on promotion

	if err := g.AddOp(
		types.Op{Kind: types.OpDelete, Layer: pd.CurrentLayer, ID: pd.Record.ID},
		types.RollbackAction{Kind: types.RollbackRestoreDeleted, Layer: pd.CurrentLayer, ID: pd.Record.ID, Original: pd.Record},
	); err != nil {
		return err
	}
	if err := g.AddOp(
		types.Op{Kind: types.OpInsert, Layer: pd.TargetLayer, ID: moved.ID, Record: moved},
		types.RollbackAction{Kind: types.RollbackDeleteInserted, Layer: pd.TargetLayer, ID: moved.ID},
	); err != nil {
		return err
	}

	if _, err := g.Commit(); err != nil {
		return err
	}

	if _, err := e.recordStore.Delete(pd.CurrentLayer, pd.Record.ID); err != nil {
		return err
	}
	if err := e.recordStore.InsertBatchAtomic([]types.Record{moved}); err != nil {
		return err
	}
	if ix, ok := e.indices[pd.CurrentLayer]; ok {
		ix.Remove(pd.Record.ID.String())
	}
	if ix, ok := e.indices[pd.TargetLayer]; ok {
		if err := ix.Insert(moved.ID.String(), moved.Vector); err != nil {
			return err
		}
	}
	return nil
}

// SweepStaleTransactions is a diagnostic-only sweep: it logs and
// returns the number of currently Active transactions. The threshold
// argument is not used, so transactions are not filtered by age. It
// never rolls them back or otherwise affects correctness (see DESIGN.md
// Open Questions — cleanup is advisory only in spec.md).
func (e *Engine) SweepStaleTransactions(threshold time.Duration) int {
	active := e.txMgr.Active()
	if active > 0 {
		logging.For(logging.CategoryPromotion).Debug("stale transaction sweep", zap.Int("active", active))
	}
	return active
}
