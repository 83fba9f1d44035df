// Package txn implements the Transaction Manager (spec §4.3): scoped
// atomic multi-operation mutation with rollback actions and RAII-style
// guards.
package txn

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/types"
)

// transaction is the manager's internal bookkeeping for one Active tx.
type transaction struct {
	mu        sync.Mutex
	state     types.TxState
	ops       []types.Op
	rollbacks []types.RollbackAction
}

// Manager owns the registry of Active transactions.
type Manager struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*transaction
}

// NewManager creates an empty transaction registry.
func NewManager() *Manager {
	return &Manager{txs: make(map[uuid.UUID]*transaction)}
}

// Begin registers a new Active transaction and returns its id.
func (m *Manager) Begin() uuid.UUID {
	id := uuid.New()
	m.mu.Lock()
	m.txs[id] = &transaction{state: types.TxActive}
	m.mu.Unlock()
	return id
}

func (m *Manager) lookup(id uuid.UUID) (*transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// AddOp appends an operation (and its compensating rollback action) to
// an Active transaction. Rejected if the transaction is not Active or
// unknown.
func (m *Manager) AddOp(id uuid.UUID, op types.Op, rollback types.RollbackAction) error {
	tx, ok := m.lookup(id)
	if !ok {
		return cortexerr.New(cortexerr.Validation, "txn.AddOp", fmt.Errorf("unknown transaction %s", id))
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != types.TxActive {
		return cortexerr.New(cortexerr.TransactionAborted, "txn.AddOp", fmt.Errorf("transaction %s is %s, not active", id, tx.state))
	}
	tx.ops = append(tx.ops, op)
	tx.rollbacks = append(tx.rollbacks, rollback)
	return nil
}

// PrepareCommit transitions the transaction to Committed, removes it
// from the registry, and returns its ordered operations for the
// caller to apply atomically. Not idempotent: a second call fails.
func (m *Manager) PrepareCommit(id uuid.UUID) ([]types.Op, error) {
	m.mu.Lock()
	tx, ok := m.txs[id]
	if ok {
		delete(m.txs, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil, cortexerr.New(cortexerr.Validation, "txn.PrepareCommit", fmt.Errorf("unknown transaction %s", id))
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != types.TxActive {
		return nil, cortexerr.New(cortexerr.TransactionAborted, "txn.PrepareCommit", fmt.Errorf("transaction %s already %s", id, tx.state))
	}
	tx.state = types.TxCommitted
	return tx.ops, nil
}

// Rollback transitions the transaction to Aborted, drops its
// operations, and returns the rollback actions to invoke in reverse
// order. Rollback of an unknown id is a no-op success.
func (m *Manager) Rollback(id uuid.UUID) []types.RollbackAction {
	m.mu.Lock()
	tx, ok := m.txs[id]
	if ok {
		delete(m.txs, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != types.TxActive {
		return nil
	}
	tx.state = types.TxAborted
	actions := make([]types.RollbackAction, len(tx.rollbacks))
	for i, a := range tx.rollbacks {
		actions[len(tx.rollbacks)-1-i] = a
	}
	tx.ops = nil
	tx.rollbacks = nil
	return actions
}

// Active reports the number of currently Active transactions,
// supporting the diagnostic stale-transaction sweep in
// internal/promotion (see DESIGN.md Open Questions: cleanup is
// advisory only).
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}
