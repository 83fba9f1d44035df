// Package orchestrator implements the Memory Orchestrator (spec §4.14):
// the top-level facade that owns every coordinator, routes each public
// call to the right one, enforces a global request deadline, and
// aggregates health/metrics across the whole engine.
package orchestrator

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexmem/cortex/internal/backup"
	"github.com/cortexmem/cortex/internal/batch"
	"github.com/cortexmem/cortex/internal/cache"
	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/coordinator"
	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/hnsw"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/promotion"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/txn"
	"github.com/cortexmem/cortex/internal/types"
)

// PolicyVerdict is the Policy engine's response (spec §6).
type PolicyVerdict int

const (
	Allow PolicyVerdict = iota
	Deny
	Ask
)

// Policy is the external collaborator consulted before mutating
// operations (spec §6). The Orchestrator treats Deny and Ask alike: a
// user-visible PolicyDenied error.
type Policy interface {
	Check(ctx context.Context, op string, rec types.Record) (PolicyVerdict, error)
}

// Stats is the result of get_stats().
type Stats struct {
	StoreStats   store.Stats
	CacheStats   cache.Stats
	IndexLengths map[types.Layer]int
	Active       int // in-flight transactions
}

// Orchestrator exclusively owns all coordinators and shared
// infrastructure; nothing outside this package touches them directly.
type Orchestrator struct {
	cfg *config.Config

	recordStore *store.RecordStore
	indices     map[types.Layer]*hnsw.Index
	txMgr       *txn.Manager

	embedding *coordinator.EmbeddingCoordinator
	search    *coordinator.SearchCoordinator
	backupC   *coordinator.BackupCoordinator
	resource  *coordinator.ResourceController
	health    *coordinator.HealthManager
	promote   *promotion.Engine

	policy Policy

	mu sync.Mutex // serializes promotion ticks (spec §5 "Promotion is serialised")
}

// Deps bundles the constructor arguments an Orchestrator needs beyond
// cfg, letting callers supply model/reranker/policy collaborators
// without the Orchestrator importing anything concrete for them.
type Deps struct {
	EmbeddingModel batch.TextWorkFunc
	Reranker       coordinator.Reranker // optional
	Policy         Policy               // optional; nil means always-Allow
	LoadFn         func() float64       // optional system-load probe for promotion
}

// New assembles every layer of the engine: Record Store, per-layer
// HNSW indices, Transaction Manager, the six coordinators, and the
// Promotion Engine, wiring each the way spec §2's data-flow diagram
// describes.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, cortexerr.New(cortexerr.Storage, "orchestrator.New", err)
	}

	rs, err := store.Open(cfg.DataDir + "/records.db")
	if err != nil {
		return nil, err
	}

	hnswCfg := hnsw.Config{
		Dimension:      cfg.HNSW.Dimension,
		MaxConnections: cfg.HNSW.MaxConnections,
		EFConstruction: cfg.HNSW.EFConstruction,
		EFSearch:       cfg.HNSW.EFSearch,
		MaxElements:    cfg.HNSW.MaxElements,
	}
	indices := make(map[types.Layer]*hnsw.Index, len(types.AllLayers()))
	for _, layer := range types.AllLayers() {
		ix, err := rebuildIndex(rs, hnswCfg, layer)
		if err != nil {
			return nil, err
		}
		indices[layer] = ix
	}

	txMgr := txn.NewManager()

	embedding := coordinator.NewEmbeddingCoordinator(
		cache.Config{
			MaxBytes:  int64(cfg.Cache.MaxSizeMB) * 1 << 20,
			TTL:       time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			CachePath: cfg.Cache.CachePath,
		},
		4096,
		batch.Config{
			MinBatchSize:  cfg.Batch.MinBatchSize,
			MaxBatchSize:  cfg.Batch.MaxBatchSize,
			WorkerThreads: cfg.Batch.WorkerThreads,
			QueueCapacity: cfg.Batch.QueueCapacity,
			BatchTimeout:  time.Duration(cfg.Batch.BatchTimeoutUS) * time.Microsecond,
			Adaptive:      cfg.Batch.Adaptive,
		},
		deps.EmbeddingModel,
		cfg.CircuitBreaker,
		int64(cfg.Batch.WorkerThreads*4),
	)

	searchC := coordinator.NewSearchCoordinator(embedding, indices, rs, deps.Reranker, cfg.CircuitBreaker, int64(cfg.Batch.WorkerThreads*4))

	backupMgr := backup.New(cfg.DataDir, rs)
	backupC := coordinator.NewBackupCoordinator(backupMgr, cfg.CircuitBreaker, 2)

	promoteEngine, err := promotion.New(rs, indices, txMgr, cfg.Promotion, promotion.DefaultRulesConfig(), deps.LoadFn)
	if err != nil {
		return nil, err
	}

	resourceC := coordinator.NewResourceController()
	resourceC.RegisterPermits("embedding", func() (int64, int64) { return embedding.Permits() })
	resourceC.RegisterPermits("search", func() (int64, int64) { return searchC.Permits() })
	resourceC.RegisterPermits("backup", func() (int64, int64) { return backupC.Permits() })

	healthMgr := coordinator.NewHealthManager(0)
	healthMgr.Register("embedding", embedding.Health)
	healthMgr.Register("search", searchC.Health)
	healthMgr.Register("backup", backupC.Health)

	ctx := context.Background()
	for _, lc := range []coordinator.Lifecycle{embedding, searchC, backupC} {
		if err := lc.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		cfg:         cfg,
		recordStore: rs,
		indices:     indices,
		txMgr:       txMgr,
		embedding:   embedding,
		search:      searchC,
		backupC:     backupC,
		resource:    resourceC,
		health:      healthMgr,
		promote:     promoteEngine,
		policy:      deps.Policy,
	}, nil
}

func rebuildIndex(rs *store.RecordStore, cfg hnsw.Config, layer types.Layer) (*hnsw.Index, error) {
	return hnsw.RebuildFrom(cfg, func(yield func(id string, vector []float32) error) error {
		return rs.IterLayer(layer, func(r types.Record) error {
			return yield(r.ID.String(), r.Vector)
		})
	})
}

func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.RequestDeadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.cfg.RequestDeadline)
}

func (o *Orchestrator) checkPolicy(ctx context.Context, op string, rec types.Record) error {
	if o.policy == nil {
		return nil
	}
	verdict, err := o.policy.Check(ctx, op, rec)
	if err != nil {
		return err
	}
	if verdict != Allow {
		return cortexerr.New(cortexerr.PolicyDenied, "orchestrator."+op, nil)
	}
	return nil
}

// Insert embeds (if the record carries no vector), policy-checks, and
// durably writes one record via a single-operation transaction
// (spec §2 "Insert" data flow).
func (o *Orchestrator) Insert(ctx context.Context, rec types.Record) (types.Record, error) {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryOrchestrator, "insert")
	defer timer.Stop()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Vector == nil {
		vec, err := o.embedding.Embed(ctx, rec.Payload)
		if err != nil {
			return types.Record{}, err
		}
		rec.Vector = vec
	}
	if err := o.checkPolicy(ctx, "insert", rec); err != nil {
		return types.Record{}, err
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.LastAccess = now

	guard := txn.Begin(o.txMgr)
	defer guard.Close()

	if err := guard.AddOp(
		types.Op{Kind: types.OpInsert, Layer: rec.Layer, ID: rec.ID, Record: rec},
		types.RollbackAction{Kind: types.RollbackDeleteInserted, Layer: rec.Layer, ID: rec.ID},
	); err != nil {
		return types.Record{}, err
	}

	if _, err := guard.Commit(); err != nil {
		return types.Record{}, err
	}

	if err := o.recordStore.InsertBatchAtomic([]types.Record{rec}); err != nil {
		return types.Record{}, err
	}
	if err := o.indices[rec.Layer].Insert(rec.ID.String(), rec.Vector); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

// InsertBatch embeds any vector-less records then inserts them in one
// transaction, matching spec.md's Transaction Op `BatchInsert`.
func (o *Orchestrator) InsertBatch(ctx context.Context, records []types.Record) ([]types.Record, error) {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryOrchestrator, "insert_batch")
	defer timer.Stop()

	out := make([]types.Record, len(records))
	now := time.Now()
	for i, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.Vector == nil {
			vec, err := o.embedding.Embed(ctx, rec.Payload)
			if err != nil {
				return nil, err
			}
			rec.Vector = vec
		}
		if err := o.checkPolicy(ctx, "insert_batch", rec); err != nil {
			return nil, err
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.LastAccess = now
		out[i] = rec
	}

	guard := txn.Begin(o.txMgr)
	defer guard.Close()

	if err := guard.AddOp(types.Op{Kind: types.OpBatchInsert, Records: out}, types.RollbackAction{Kind: types.RollbackDeleteInserted}); err != nil {
		return nil, err
	}

	if _, err := guard.Commit(); err != nil {
		return nil, err
	}

	if err := o.recordStore.InsertBatchAtomic(out); err != nil {
		return nil, err
	}
	for _, rec := range out {
		if err := o.indices[rec.Layer].Insert(rec.ID.String(), rec.Vector); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Search routes to the Search Coordinator (spec §2 "Search" data flow).
func (o *Orchestrator) Search(ctx context.Context, query string, layers []types.Layer, opts coordinator.SearchOptions) ([]coordinator.SearchResult, error) {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryOrchestrator, "search")
	defer timer.Stop()

	return o.search.Search(ctx, query, layers, opts)
}

// RunPromotion executes one promotion tick. Serialised: spec §5
// guarantees two ticks never overlap.
func (o *Orchestrator) RunPromotion(ctx context.Context) ([]types.PromotionDecision, error) {
	_, cancel := o.withDeadline(ctx)
	defer cancel()

	o.mu.Lock()
	defer o.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryOrchestrator, "run_promotion")
	defer timer.Stop()

	return o.promote.Run()
}

// Backup routes to the Backup Coordinator; kind selects Full vs
// Incremental (parentName required for Incremental).
func (o *Orchestrator) Backup(ctx context.Context, kind types.BackupType, name, parentName string) (types.BackupMetadata, error) {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryOrchestrator, "backup")
	defer timer.Stop()

	switch kind {
	case types.BackupFull:
		return o.backupC.Full(ctx, name)
	case types.BackupIncremental:
		return o.backupC.Incremental(ctx, name, parentName)
	default:
		return types.BackupMetadata{}, cortexerr.New(cortexerr.Validation, "orchestrator.backup", nil)
	}
}

// Restore replays a backup's ancestry chain into the live Record Store.
func (o *Orchestrator) Restore(ctx context.Context, name string) error {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()
	return o.backupC.Restore(ctx, name)
}

// CheckHealth aggregates health and alerts from every coordinator
// (spec §4.12/§4.14).
func (o *Orchestrator) CheckHealth() types.SystemHealth {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "check_health")
	defer timer.Stop()
	return o.health.CheckSystemHealth()
}

// ResourceHints exposes the Resource Controller's advisory scaling
// hints and pressure prediction for callers (e.g. an ops dashboard) to
// act on; the Orchestrator itself never auto-scales (spec §4.13).
func (o *Orchestrator) ResourceHints() (map[string]coordinator.ScalingHint, map[string]float64) {
	return o.resource.ScalingHints(), o.resource.PredictResourceNeeds()
}

// ObserveLoad feeds one CPU/memory/queue-depth sample to the Resource
// Controller; callers sample their own process/runtime metrics and
// report them on whatever cadence they like.
func (o *Orchestrator) ObserveLoad(cpu, memoryMB, queueDepth float64) {
	o.resource.Observe(cpu, memoryMB, queueDepth)
}

// GetStats returns a snapshot of storage, cache, index, and
// transaction-activity counters (spec §4.14 `get_stats()`).
func (o *Orchestrator) GetStats() Stats {
	lengths := make(map[types.Layer]int, len(o.indices))
	for layer, ix := range o.indices {
		lengths[layer] = ix.Len()
	}
	return Stats{
		StoreStats:   o.recordStore.Stats(),
		CacheStats:   o.embedding.CacheStats(),
		IndexLengths: lengths,
		Active:       o.txMgr.Active(),
	}
}

// Shutdown closes every coordinator in reverse dependency order
// (Search depends on Embedding, so Embedding is closed last)
// then the Record Store, per spec §4.14 and §5.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(o.backupC.Shutdown(ctx))
	record(o.search.Shutdown(ctx))
	record(o.embedding.Shutdown(ctx))
	record(o.recordStore.Close())
	return firstErr
}
