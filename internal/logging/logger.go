// Package logging provides categorized structured logging for the
// memory engine: one zap logger per subsystem category, plus a timer
// helper for the "start, defer stop" idiom used at call sites.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category identifies which subsystem emitted a log line.
type Category string

const (
	CategoryStore       Category = "store"
	CategoryHNSW        Category = "hnsw"
	CategoryTxn         Category = "txn"
	CategoryCache       Category = "cache"
	CategoryBatch       Category = "batch"
	CategoryPromotion   Category = "promotion"
	CategoryBackup      Category = "backup"
	CategoryCoordinator Category = "coordinator"
	CategoryOrchestrator Category = "orchestrator"
)

var (
	base   *zap.Logger
	mu     sync.RWMutex
	byCat  = make(map[Category]*zap.Logger)
)

// Init installs the base logger used to derive per-category loggers.
// Safe to call multiple times; the last call wins. If never called,
// a production zap logger is lazily created on first use.
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	byCat = make(map[Category]*zap.Logger)
}

func root() *zap.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		z, err := zap.NewProduction()
		if err != nil {
			z = zap.NewNop()
		}
		base = z
	}
	return base
}

// For returns (and caches) the logger scoped to category.
func For(cat Category) *zap.Logger {
	mu.RLock()
	l, ok := byCat[cat]
	mu.RUnlock()
	if ok {
		return l
	}
	l = root().With(zap.String("category", string(cat)))
	mu.Lock()
	byCat[cat] = l
	mu.Unlock()
	return l
}

// Timer measures an operation's duration and logs it on Stop.
type Timer struct {
	logger *zap.Logger
	name   string
	start  time.Time
}

// StartTimer begins timing name within category. Callers defer
// timer.Stop().
func StartTimer(cat Category, name string) *Timer {
	return &Timer{logger: For(cat), name: name, start: time.Now()}
}

// Stop logs the elapsed duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("timer", zap.String("op", t.name), zap.Duration("elapsed", elapsed))
	return elapsed
}

// ErrorField is a small convenience wrapper so call sites don't need
// to import zap directly just to log an error value.
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// Sync flushes all cached loggers; call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
	for _, l := range byCat {
		_ = l.Sync()
	}
}
