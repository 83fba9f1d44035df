package coordinator

import (
	"context"

	"github.com/cortexmem/cortex/internal/backup"
	"github.com/cortexmem/cortex/internal/types"
)

// BackupCoordinator fronts the backup.Manager with the shared
// lifecycle/circuit-breaker/metrics plumbing (spec §4.8 combined with
// the Coordinator Framework of §4.9) so backup operations are subject
// to the same permit cap and health rollup as every other coordinator.
type BackupCoordinator struct {
	*Base
	mgr *backup.Manager
}

// NewBackupCoordinator wraps an already-constructed backup.Manager.
func NewBackupCoordinator(mgr *backup.Manager, cbCfg types.CircuitBreakerConfig, concurrency int64) *BackupCoordinator {
	return &BackupCoordinator{
		Base: NewBase("backup", cbCfg, concurrency),
		mgr:  mgr,
	}
}

// Full runs a full backup under the coordinator's permit/breaker guard.
func (bc *BackupCoordinator) Full(ctx context.Context, name string) (types.BackupMetadata, error) {
	var meta types.BackupMetadata
	err := bc.Guard(ctx, func(ctx context.Context) error {
		m, err := bc.mgr.Full(name)
		meta = m
		return err
	})
	return meta, err
}

// Incremental runs an incremental backup chained off parentName.
func (bc *BackupCoordinator) Incremental(ctx context.Context, name, parentName string) (types.BackupMetadata, error) {
	var meta types.BackupMetadata
	err := bc.Guard(ctx, func(ctx context.Context) error {
		m, err := bc.mgr.Incremental(name, parentName)
		meta = m
		return err
	})
	return meta, err
}

// Restore replays the ancestry chain ending at name into the live
// Record Store backing this Manager.
func (bc *BackupCoordinator) Restore(ctx context.Context, name string) error {
	return bc.Guard(ctx, func(ctx context.Context) error {
		return bc.mgr.Restore(name)
	})
}
