package txn

import (
	"github.com/google/uuid"

	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/types"
)

// Guard wraps a transaction id and rolls back on scoped drop unless
// Commit was called first — the mandatory usage pattern for new call
// sites (spec §4.3).
type Guard struct {
	mgr       *Manager
	id        uuid.UUID
	committed bool
	rolledBack bool
}

// Begin starts a transaction and returns a Guard over it.
func Begin(mgr *Manager) *Guard {
	return &Guard{mgr: mgr, id: mgr.Begin()}
}

// ID returns the underlying transaction id.
func (g *Guard) ID() uuid.UUID { return g.id }

// AddOp accumulates one operation plus its compensating rollback
// action on the guarded transaction.
func (g *Guard) AddOp(op types.Op, rollback types.RollbackAction) error {
	return g.mgr.AddOp(g.id, op, rollback)
}

// Commit finalises the transaction and returns its ordered operations
// for the caller to apply to the Record Store and HNSW.
func (g *Guard) Commit() ([]types.Op, error) {
	ops, err := g.mgr.PrepareCommit(g.id)
	if err == nil {
		g.committed = true
	}
	return ops, err
}

// Close rolls back the transaction if it was never committed. Safe to
// call multiple times and safe to defer immediately after Begin.
func (g *Guard) Close() []types.RollbackAction {
	if g.committed || g.rolledBack {
		return nil
	}
	g.rolledBack = true
	actions := g.mgr.Rollback(g.id)
	if len(actions) > 0 {
		logging.For(logging.CategoryTxn).Warn("transaction rolled back on guard close without commit")
	}
	return actions
}
