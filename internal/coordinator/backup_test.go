package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/backup"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/types"
)

func TestBackupCoordinatorFullAndRestore(t *testing.T) {
	rs, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	rec := types.Record{
		ID: uuid.New(), Payload: "hello", Vector: []float32{0.1, 0.2},
		Layer: types.Interact, Kind: "note", CreatedAt: time.Now(), LastAccess: time.Now(),
	}
	require.NoError(t, rs.InsertBatchAtomic([]types.Record{rec}))

	baseDir := t.TempDir()
	bc := NewBackupCoordinator(backup.New(baseDir, rs), testBreakerConfig(), 2)

	ctx := context.Background()
	meta, err := bc.Full(ctx, "snap1")
	require.NoError(t, err)
	require.Equal(t, types.BackupFull, meta.Type)

	restoreRS, err := store.Open(filepath.Join(t.TempDir(), "restore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = restoreRS.Close() })

	restoreBC := NewBackupCoordinator(backup.New(baseDir, restoreRS), testBreakerConfig(), 2)
	require.NoError(t, restoreBC.Restore(ctx, "snap1"))

	got, found, err := restoreRS.Get(types.Interact, rec.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec.Payload, got.Payload)
}
