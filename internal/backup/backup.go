// Package backup implements Full and Incremental backups with
// ancestry-chain restore (spec §4.8): per-layer record files wrapped
// in a tar+deflate archive, plus a companion id->checksum snapshot for
// computing future deltas.
package backup

import (
	"archive/tar"
	"compress/flate"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/types"
)

// maxChainDepth is the ancestry-walk safety bound from spec §4.8.
const maxChainDepth = 100

// recordJSON is the canonical per-record form used both inside backup
// archives and for checksum computation.
type recordJSON struct {
	ID          string    `json:"id"`
	Payload     string    `json:"payload"`
	Vector      []float32 `json:"vector"`
	Layer       string    `json:"layer"`
	Kind        string    `json:"kind"`
	Tags        []string  `json:"tags"`
	Project     string    `json:"project"`
	Session     string    `json:"session"`
	Relevance   float64   `json:"relevance"`
	CreatedAt   time.Time `json:"created_at"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount uint32    `json:"access_count"`
}

func toJSON(r types.Record) recordJSON {
	return recordJSON{
		ID: r.ID.String(), Payload: r.Payload, Vector: r.Vector,
		Layer: r.Layer.String(), Kind: r.Kind, Tags: r.Tags,
		Project: r.Project, Session: r.Session, Relevance: r.Relevance,
		CreatedAt: r.CreatedAt, LastAccess: r.LastAccess, AccessCount: r.AccessCount,
	}
}

func fromJSON(rj recordJSON) (types.Record, error) {
	layer, _ := types.ParseLayer(rj.Layer)
	id, err := parseUUID(rj.ID)
	if err != nil {
		return types.Record{}, err
	}
	return types.Record{
		ID: id, Payload: rj.Payload, Vector: rj.Vector, Layer: layer,
		Kind: rj.Kind, Tags: rj.Tags, Project: rj.Project, Session: rj.Session,
		Relevance: rj.Relevance, CreatedAt: rj.CreatedAt, LastAccess: rj.LastAccess,
		AccessCount: rj.AccessCount,
	}, nil
}

func checksumOf(rj recordJSON) string {
	data, _ := json.Marshal(rj)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Manager creates and restores backups for a Record Store.
type Manager struct {
	dir         string // base backup directory
	recordStore *store.RecordStore
}

// New builds a backup Manager writing into baseDir/backups.
func New(baseDir string, rs *store.RecordStore) *Manager {
	return &Manager{dir: filepath.Join(baseDir, "backups"), recordStore: rs}
}

func (m *Manager) archivePath(name string) string {
	return filepath.Join(m.dir, name+".tar.gz")
}

func (m *Manager) snapshotPath(name string) string {
	return filepath.Join(m.dir, "snapshots", name+"_snapshot.json")
}

func (m *Manager) metadataPath(name string) string {
	return filepath.Join(m.dir, name+"_metadata.json")
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// snapshotFile is the persisted form of a per-layer id->checksum map.
type snapshotFile map[string]types.Snapshot // layer name -> snapshot

// Full writes a Full backup named name: every record, every layer,
// wrapped in a single tar+deflate archive, plus a companion snapshot
// file (spec §4.8).
func (m *Manager) Full(name string) (types.BackupMetadata, error) {
	timer := logging.StartTimer(logging.CategoryBackup, "full_backup")
	defer timer.Stop()

	layerRecords := make(map[types.Layer][]recordJSON)
	snap := make(snapshotFile)
	stats := make(map[types.Layer]types.LayerStat)

	for _, l := range types.AllLayers() {
		snap[l.String()] = types.Snapshot{}
		err := m.recordStore.IterLayer(l, func(r types.Record) error {
			rj := toJSON(r)
			layerRecords[l] = append(layerRecords[l], rj)
			snap[l.String()][rj.ID] = checksumOf(rj)
			return nil
		})
		if err != nil {
			return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.Full", err)
		}
		sort.Slice(layerRecords[l], func(i, j int) bool { return layerRecords[l][i].ID < layerRecords[l][j].ID })
		data, _ := json.Marshal(layerRecords[l])
		stats[l] = types.LayerStat{Count: len(layerRecords[l]), Bytes: int64(len(data))}
	}

	meta := types.BackupMetadata{
		Name: name, Version: 1, CreatedAt: time.Now(),
		Type: types.BackupFull, LayerStats: stats,
	}

	if err := m.writeArchive(name, meta, layerRecords); err != nil {
		return types.BackupMetadata{}, err
	}
	if err := m.writeSnapshot(name, snap); err != nil {
		return types.BackupMetadata{}, err
	}
	return meta, nil
}

// Incremental writes a backup containing only records added or
// modified since parentName's snapshot (spec §4.8). Refuses with
// Validation if there are no changes.
func (m *Manager) Incremental(name, parentName string) (types.BackupMetadata, error) {
	timer := logging.StartTimer(logging.CategoryBackup, "incremental_backup")
	defer timer.Stop()

	parentSnap, err := m.readSnapshot(parentName)
	if err != nil {
		return types.BackupMetadata{}, err
	}

	layerRecords := make(map[types.Layer][]recordJSON)
	curSnap := make(snapshotFile)
	stats := make(map[types.Layer]types.LayerStat)
	delta := &types.DeltaInfo{ModifiedChecksums: map[string]string{}}

	for _, l := range types.AllLayers() {
		curSnap[l.String()] = types.Snapshot{}
		parentLayerSnap := parentSnap[l.String()]
		err := m.recordStore.IterLayer(l, func(r types.Record) error {
			rj := toJSON(r)
			sum := checksumOf(rj)
			curSnap[l.String()][rj.ID] = sum
			prevSum, existed := parentLayerSnap[rj.ID]
			switch {
			case !existed:
				layerRecords[l] = append(layerRecords[l], rj)
				delta.Added++
			case prevSum != sum:
				layerRecords[l] = append(layerRecords[l], rj)
				delta.Modified++
				delta.ModifiedChecksums[rj.ID] = sum
			}
			return nil
		})
		if err != nil {
			return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.Incremental", err)
		}
		for id := range parentLayerSnap {
			if _, ok := curSnap[l.String()][id]; !ok {
				delta.Deleted++
			}
		}
		sort.Slice(layerRecords[l], func(i, j int) bool { return layerRecords[l][i].ID < layerRecords[l][j].ID })
		data, _ := json.Marshal(layerRecords[l])
		stats[l] = types.LayerStat{Count: len(layerRecords[l]), Bytes: int64(len(data))}
	}

	if delta.Added == 0 && delta.Modified == 0 && delta.Deleted == 0 {
		return types.BackupMetadata{}, cortexerr.New(cortexerr.Validation, "backup.Incremental", fmt.Errorf("no changes since parent %q", parentName))
	}

	meta := types.BackupMetadata{
		Name: name, Version: 1, CreatedAt: time.Now(),
		Type: types.BackupIncremental, ParentID: parentName,
		LayerStats: stats, Delta: delta, Since: time.Now(),
	}

	if err := m.writeArchive(name, meta, layerRecords); err != nil {
		return types.BackupMetadata{}, err
	}
	if err := m.writeSnapshot(name, curSnap); err != nil {
		return types.BackupMetadata{}, err
	}
	return meta, nil
}

// Restore reconstructs the record set by walking the ancestry chain
// back to the nearest Full backup and replaying archives in order
// (spec §4.8). Differential links are rejected (see DESIGN.md Open
// Questions). The chain is bounded by maxChainDepth.
func (m *Manager) Restore(name string) error {
	timer := logging.StartTimer(logging.CategoryBackup, "restore")
	defer timer.Stop()

	chain, err := m.resolveChain(name)
	if err != nil {
		return err
	}

	for _, link := range chain {
		records, err := m.readArchive(link)
		if err != nil {
			return err
		}
		for layer, recs := range records {
			for _, rj := range recs {
				rec, err := fromJSON(rj)
				if err != nil {
					return cortexerr.New(cortexerr.Validation, "backup.Restore", err)
				}
				rec.Layer = layer
				if err := m.recordStore.InsertBatchAtomic([]types.Record{rec}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// resolveChain walks parent links from name back to the nearest Full,
// returning links oldest-first (Full first, name last).
func (m *Manager) resolveChain(name string) ([]string, error) {
	var reverseChain []string
	cur := name
	for depth := 0; ; depth++ {
		if depth > maxChainDepth {
			return nil, cortexerr.New(cortexerr.Validation, "backup.Restore", fmt.Errorf("ancestry chain exceeds safety bound of %d", maxChainDepth))
		}
		meta, err := m.readMetadata(cur)
		if err != nil {
			return nil, err
		}
		if meta.Type == types.BackupDifferential {
			return nil, cortexerr.New(cortexerr.Validation, "backup.Restore", fmt.Errorf("differential backup %q cannot be restored", cur))
		}
		reverseChain = append(reverseChain, cur)
		if meta.Type == types.BackupFull {
			break
		}
		if meta.ParentID == "" {
			return nil, cortexerr.New(cortexerr.Validation, "backup.Restore", fmt.Errorf("broken ancestry chain at %q", cur))
		}
		cur = meta.ParentID
	}
	// reverse to oldest-first
	chain := make([]string, len(reverseChain))
	for i, n := range reverseChain {
		chain[len(reverseChain)-1-i] = n
	}
	return chain, nil
}
