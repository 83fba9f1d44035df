package backup

import (
	"archive/tar"
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/types"
)

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("backup: invalid record id %q: %w", s, err)
	}
	return id, nil
}

// writeArchive wraps incremental_metadata.json plus one
// <layer>_records.json (or _delta.json for incremental backups) per
// active layer into a tar stream compressed with deflate at best
// compression (spec §6 binary envelope).
func (m *Manager) writeArchive(name string, meta types.BackupMetadata, layerRecords map[types.Layer][]recordJSON) error {
	path := m.archivePath(name)
	if err := ensureDir(path); err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}
	defer f.Close()

	fw, err := flate.NewWriter(f, flate.BestCompression)
	if err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}
	tw := tar.NewWriter(fw)

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}
	if err := writeTarEntry(tw, "incremental_metadata.json", metaBytes); err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}

	suffix := "records.json"
	if meta.Type == types.BackupIncremental {
		suffix = "delta.json"
	}
	for _, l := range types.AllLayers() {
		recs := layerRecords[l]
		if len(recs) == 0 {
			continue
		}
		data, err := json.Marshal(recs)
		if err != nil {
			return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
		}
		if err := writeTarEntry(tw, l.String()+"_"+suffix, data); err != nil {
			return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
		}
	}

	if err := tw.Close(); err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}
	if err := fw.Close(); err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeArchive", err)
	}
	return nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// readArchive decodes an archive back into per-layer record lists.
func (m *Manager) readArchive(name string) (map[types.Layer][]recordJSON, error) {
	f, err := os.Open(m.archivePath(name))
	if err != nil {
		return nil, cortexerr.New(cortexerr.Storage, "backup.readArchive", err)
	}
	defer f.Close()

	fr := flate.NewReader(f)
	defer fr.Close()
	tr := tar.NewReader(fr)

	out := make(map[types.Layer][]recordJSON)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cortexerr.New(cortexerr.Storage, "backup.readArchive", err)
		}
		if hdr.Name == "incremental_metadata.json" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, cortexerr.New(cortexerr.Storage, "backup.readArchive", err)
		}
		layer, ok := layerFromEntryName(hdr.Name)
		if !ok {
			continue
		}
		var recs []recordJSON
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, cortexerr.New(cortexerr.Storage, "backup.readArchive", err)
		}
		out[layer] = recs
	}
	return out, nil
}

func layerFromEntryName(name string) (types.Layer, bool) {
	for _, l := range types.AllLayers() {
		if name == l.String()+"_records.json" || name == l.String()+"_delta.json" {
			return l, true
		}
	}
	return 0, false
}

func (m *Manager) writeSnapshot(name string, snap snapshotFile) error {
	path := m.snapshotPath(name)
	if err := ensureDir(path); err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeSnapshot", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeSnapshot", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cortexerr.New(cortexerr.Storage, "backup.writeSnapshot", err)
	}
	return nil
}

func (m *Manager) readSnapshot(name string) (snapshotFile, error) {
	data, err := os.ReadFile(m.snapshotPath(name))
	if err != nil {
		return nil, cortexerr.New(cortexerr.Storage, "backup.readSnapshot", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, cortexerr.New(cortexerr.Storage, "backup.readSnapshot", err)
	}
	return snap, nil
}

func (m *Manager) readMetadata(name string) (types.BackupMetadata, error) {
	f, err := os.Open(m.archivePath(name))
	if err != nil {
		return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.readMetadata", err)
	}
	defer f.Close()

	fr := flate.NewReader(f)
	defer fr.Close()
	tr := tar.NewReader(fr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.readMetadata", err)
		}
		if hdr.Name != "incremental_metadata.json" {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.readMetadata", err)
		}
		var meta types.BackupMetadata
		if err := json.Unmarshal(buf.Bytes(), &meta); err != nil {
			return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.readMetadata", err)
		}
		return meta, nil
	}
	return types.BackupMetadata{}, cortexerr.New(cortexerr.Storage, "backup.readMetadata", fmt.Errorf("no metadata entry in %q", name))
}
