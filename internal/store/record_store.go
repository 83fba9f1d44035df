// Package store implements the Record Store (spec §4.1): durable
// per-layer storage of serialized records, keyed by record id,
// backed by bbolt with one bucket per layer.
package store

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/types"
)

func bucketName(l types.Layer) []byte {
	return []byte("records:" + l.String())
}

// envelope is the on-disk record form: the full Record plus a
// monotonic write counter used to break ties between records written
// in the same batch (spec §4.1 encoding note). Unknown trailing JSON
// fields are tolerated on read — forward compatibility is the default
// behaviour of json.Unmarshal into a superset struct.
type envelope struct {
	WriteSeq    uint64    `json:"write_seq"`
	ID          uuid.UUID `json:"id"`
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

func toEnvelope(r types.Record, seq uint64) envelope {
	return envelope{
		WriteSeq:    seq,
		ID:          r.ID,
		Payload:     r.Payload,
		Vector:      r.Vector,
		Layer:       r.Layer.String(),
		Kind:        r.Kind,
		Tags:        r.Tags,
		Project:     r.Project,
		Session:     r.Session,
		Relevance:   r.Relevance,
		CreatedAt:   r.CreatedAt,
		LastAccess:  r.LastAccess,
		AccessCount: r.AccessCount,
	}
}

func fromEnvelope(e envelope) types.Record {
	layer, _ := types.ParseLayer(e.Layer)
	return types.Record{
		ID:          e.ID,
		Payload:     e.Payload,
		Vector:      e.Vector,
		Layer:       layer,
		Kind:        e.Kind,
		Tags:        e.Tags,
		Project:     e.Project,
		Session:     e.Session,
		Relevance:   e.Relevance,
		CreatedAt:   e.CreatedAt,
		LastAccess:  e.LastAccess,
		AccessCount: e.AccessCount,
	}
}

// Stats are cumulative counters surfaced by GetStats.
type Stats struct {
	CorruptedSkipped uint64
}

// RecordStore is the bbolt-backed, per-layer durable KV store.
type RecordStore struct {
	db      *bolt.DB
	writeSeq uint64
	stats   Stats
}

// Open creates/opens the bbolt database at path and ensures one
// bucket per layer exists.
func Open(path string) (*RecordStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, cortexerr.New(cortexerr.Storage, "store.Open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, l := range types.AllLayers() {
			if _, err := tx.CreateBucketIfNotExists(bucketName(l)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, cortexerr.New(cortexerr.Storage, "store.Open", err)
	}
	return &RecordStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *RecordStore) Close() error {
	if err := s.db.Close(); err != nil {
		return cortexerr.New(cortexerr.Storage, "store.Close", err)
	}
	return nil
}

func keyFor(id uuid.UUID) []byte {
	b := id // [16]byte backing array
	return b[:]
}

// InsertBatchAtomic writes all records in a single durable batch:
// either all are visible or none (spec §4.1). Records may span
// layers; each is written to its own layer's bucket within the same
// bbolt transaction, which gives all-or-nothing visibility natively.
func (s *RecordStore) InsertBatchAtomic(records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "insert_batch_atomic")
	defer timer.Stop()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, r := range records {
			if len(r.Vector) == 0 {
				return cortexerr.New(cortexerr.Validation, "store.InsertBatchAtomic", fmt.Errorf("record %s has empty vector", r.ID))
			}
			b := tx.Bucket(bucketName(r.Layer))
			if b == nil {
				return fmt.Errorf("unknown layer bucket %s", r.Layer)
			}
			seq := atomic.AddUint64(&s.writeSeq, 1)
			data, err := json.Marshal(toEnvelope(r, seq))
			if err != nil {
				return err
			}
			if err := b.Put(keyFor(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if ce, ok := err.(*cortexerr.Error); ok {
			return ce
		}
		return cortexerr.New(cortexerr.Storage, "store.InsertBatchAtomic", err)
	}
	return nil
}

// Get returns the record at (layer, id), or ok=false if absent.
func (s *RecordStore) Get(layer types.Layer, id uuid.UUID) (types.Record, bool, error) {
	var rec types.Record
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(layer))
		if b == nil {
			return fmt.Errorf("unknown layer bucket %s", layer)
		}
		data := b.Get(keyFor(id))
		if data == nil {
			return nil
		}
		var e envelope
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		rec = fromEnvelope(e)
		found = true
		return nil
	})
	if err != nil {
		return types.Record{}, false, cortexerr.New(cortexerr.Storage, "store.Get", err)
	}
	return rec, found, nil
}

// Delete removes the record at (layer, id); reports whether it
// existed.
func (s *RecordStore) Delete(layer types.Layer, id uuid.UUID) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(layer))
		if b == nil {
			return fmt.Errorf("unknown layer bucket %s", layer)
		}
		if b.Get(keyFor(id)) != nil {
			existed = true
		}
		return b.Delete(keyFor(id))
	})
	if err != nil {
		return false, cortexerr.New(cortexerr.Storage, "store.Delete", err)
	}
	return existed, nil
}

// IterLayer walks all records of layer inside a single read-only
// bbolt transaction, which gives a consistent MVCC snapshot even
// under concurrent writers (satisfying spec §4.1's "consistent
// snapshot or best-effort" clause). Corrupted entries are skipped
// with a warning and a counter bump rather than aborting iteration.
func (s *RecordStore) IterLayer(layer types.Layer, fn func(types.Record) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(layer))
		if b == nil {
			return fmt.Errorf("unknown layer bucket %s", layer)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e envelope
			if err := json.Unmarshal(v, &e); err != nil {
				atomic.AddUint64(&s.stats.CorruptedSkipped, 1)
				logging.For(logging.CategoryStore).Warn("corrupted record skipped during iteration",
					zap.String("layer", layer.String()), zap.String("id", bytesToID(k).String()))
				continue
			}
			if err := fn(fromEnvelope(e)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats returns cumulative diagnostic counters.
func (s *RecordStore) Stats() Stats {
	return Stats{CorruptedSkipped: atomic.LoadUint64(&s.stats.CorruptedSkipped)}
}

// bytesToID reconstructs a uuid.UUID from a bbolt cursor key, used
// only for log fields.
func bytesToID(k []byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], k)
	return id
}
