package txn

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/types"
)

func TestPrepareCommitNotIdempotent(t *testing.T) {
	m := NewManager()
	id := m.Begin()
	require.NoError(t, m.AddOp(id, types.Op{Kind: types.OpInsert, ID: uuid.New()}, types.RollbackAction{}))

	ops, err := m.PrepareCommit(id)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	_, err = m.PrepareCommit(id)
	require.Error(t, err)
}

func TestRollbackUnknownIsNoOp(t *testing.T) {
	m := NewManager()
	actions := m.Rollback(uuid.New())
	require.Nil(t, actions)
}

func TestRollbackReversesOrder(t *testing.T) {
	m := NewManager()
	id := m.Begin()
	a := uuid.New()
	b := uuid.New()
	require.NoError(t, m.AddOp(id, types.Op{Kind: types.OpInsert, ID: a}, types.RollbackAction{Kind: types.RollbackDeleteInserted, ID: a}))
	require.NoError(t, m.AddOp(id, types.Op{Kind: types.OpInsert, ID: b}, types.RollbackAction{Kind: types.RollbackDeleteInserted, ID: b}))

	actions := m.Rollback(id)
	require.Len(t, actions, 2)
	require.Equal(t, b, actions[0].ID)
	require.Equal(t, a, actions[1].ID)
}

func TestOpsRejectedAfterTerminal(t *testing.T) {
	m := NewManager()
	id := m.Begin()
	_, err := m.PrepareCommit(id)
	require.NoError(t, err)

	err = m.AddOp(id, types.Op{Kind: types.OpInsert, ID: uuid.New()}, types.RollbackAction{})
	require.Error(t, err)
}

func TestGuardRollsBackOnCloseWithoutCommit(t *testing.T) {
	m := NewManager()
	g := Begin(m)
	require.NoError(t, g.AddOp(types.Op{Kind: types.OpInsert, ID: uuid.New()}, types.RollbackAction{Kind: types.RollbackDeleteInserted}))

	actions := g.Close()
	require.Len(t, actions, 1)

	// A second close is a no-op.
	require.Nil(t, g.Close())
}

func TestGuardCommitPreventsRollback(t *testing.T) {
	m := NewManager()
	g := Begin(m)
	require.NoError(t, g.AddOp(types.Op{Kind: types.OpInsert, ID: uuid.New()}, types.RollbackAction{}))

	_, err := g.Commit()
	require.NoError(t, err)

	require.Nil(t, g.Close())
	require.Equal(t, 0, m.Active())
}
