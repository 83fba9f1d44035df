// Package coordinator implements the shared Coordinator Framework
// (spec §4.9) plus the concrete coordinators. Embedding, Search and
// Backup embed Base and get its lifecycle, circuit breaker, permit cap
// and metrics; HealthManager and ResourceController are standalone
// types that do not use Base, and the Promotion Engine (in the
// promotion package) does not use it either.
package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/types"
)

// Lifecycle is the contract every coordinator satisfies (spec §4.9).
type Lifecycle interface {
	Initialize(ctx context.Context) error
	IsReady() bool
	Shutdown(ctx context.Context) error
}

// Base provides the plumbing shared by every coordinator: a circuit
// breaker, a concurrency-limiting semaphore (generalising the teacher's
// channel-based API slot scheduler to golang.org/x/sync/semaphore), and
// metrics recording. Concrete coordinators embed Base and add their own
// pipeline behind Guard.
type Base struct {
	name       string
	breaker    *CircuitBreaker
	sem        *semaphore.Weighted
	capacity   int64
	inFlight   int64 // atomic

	ready int32 // atomic bool
}

// NewBase builds shared coordinator plumbing. concurrency <= 0 means
// unbounded (semaphore sized to a very large weight).
func NewBase(name string, cbCfg types.CircuitBreakerConfig, concurrency int64) *Base {
	if concurrency <= 0 {
		concurrency = 1 << 20
	}
	return &Base{
		name:     name,
		breaker:  NewCircuitBreaker(cbCfg),
		sem:      semaphore.NewWeighted(concurrency),
		capacity: concurrency,
	}
}

// Permits reports the concurrency cap and the number of calls
// currently holding a permit, for the Resource Controller (spec §4.13).
func (b *Base) Permits() (used, capacity int64) {
	return atomic.LoadInt64(&b.inFlight), b.capacity
}

// Name is the coordinator's metrics/label identity.
func (b *Base) Name() string { return b.name }

// Initialize marks the coordinator ready. Concrete coordinators that
// need their own setup call this after it succeeds.
func (b *Base) Initialize(ctx context.Context) error {
	atomic.StoreInt32(&b.ready, 1)
	return nil
}

// IsReady reports whether Initialize has completed and Shutdown has not.
func (b *Base) IsReady() bool {
	return atomic.LoadInt32(&b.ready) == 1
}

// Shutdown marks the coordinator not-ready. Concrete coordinators with
// owned resources (processors, caches) close them before or after
// calling this, in reverse dependency order per spec §4.14.
func (b *Base) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&b.ready, 0)
	return nil
}

// Health reports the coordinator's current rollup (spec §4.12 inputs).
func (b *Base) Health() types.CoordinatorHealth {
	return types.CoordinatorHealth{
		IsReady:      b.IsReady(),
		CircuitState: b.breaker.State(),
		LastCheck:    time.Now(),
	}
}

// Guard is the single entry point every coordinator operation funnels
// through: it checks the circuit breaker, acquires a concurrency
// permit, runs fn, and records the outcome into both the breaker and
// the shared metrics vectors (spec §4.9/§5 "entry acquires a permit").
func (b *Base) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.breaker.Allow(); err != nil {
		requestsTotal.WithLabelValues(b.name, "circuit_open").Inc()
		return err
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return cortexerr.New(cortexerr.Timeout, "coordinator."+b.name, err)
	}
	atomic.AddInt64(&b.inFlight, 1)
	defer func() {
		atomic.AddInt64(&b.inFlight, -1)
		b.sem.Release(1)
	}()

	timer := startMetricsTimer(b.name)
	err := fn(ctx)
	if err != nil {
		b.breaker.RecordFailure()
		timer.observe("failure")
		return err
	}
	b.breaker.RecordSuccess()
	timer.observe("success")
	return nil
}
