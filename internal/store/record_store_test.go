package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/types"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(layer types.Layer) types.Record {
	return types.Record{
		ID:        uuid.New(),
		Payload:   "hello world",
		Vector:    []float32{1, 0, 0, 0},
		Layer:     layer,
		Kind:      "note",
		CreatedAt: time.Now(),
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r := sampleRecord(types.Interact)

	require.NoError(t, s.InsertBatchAtomic([]types.Record{r}))

	got, ok, err := s.Get(types.Interact, r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	// cmp.Diff over the whole struct catches any field the envelope
	// round trip silently drops, not just the ones named explicitly.
	if diff := cmp.Diff(r, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Fatalf("round-tripped record differs (-want +got):\n%s", diff)
	}
}

func TestInsertBatchAtomicRejectsEmptyVector(t *testing.T) {
	s := newTestStore(t)
	r := sampleRecord(types.Interact)
	r.Vector = nil
	ok := sampleRecord(types.Interact)

	err := s.InsertBatchAtomic([]types.Record{ok, r})
	require.Error(t, err)

	_, found, err := s.Get(types.Interact, ok.ID)
	require.NoError(t, err)
	require.False(t, found, "batch must be all-or-nothing")
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	r := sampleRecord(types.Insights)
	require.NoError(t, s.InsertBatchAtomic([]types.Record{r}))

	existed, err := s.Delete(types.Insights, r.ID)
	require.NoError(t, err)
	require.True(t, existed)

	_, found, err := s.Get(types.Insights, r.ID)
	require.NoError(t, err)
	require.False(t, found)

	existed, err = s.Delete(types.Insights, r.ID)
	require.NoError(t, err)
	require.False(t, existed)
}

func TestIterLayer(t *testing.T) {
	s := newTestStore(t)
	want := map[uuid.UUID]bool{}
	var batch []types.Record
	for i := 0; i < 5; i++ {
		r := sampleRecord(types.Assets)
		want[r.ID] = true
		batch = append(batch, r)
	}
	require.NoError(t, s.InsertBatchAtomic(batch))

	seen := map[uuid.UUID]bool{}
	require.NoError(t, s.IterLayer(types.Assets, func(r types.Record) error {
		seen[r.ID] = true
		return nil
	}))
	require.Equal(t, want, seen)
}

func TestIterLayerIsolatedFromOtherLayers(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertBatchAtomic([]types.Record{sampleRecord(types.Interact)}))
	require.NoError(t, s.InsertBatchAtomic([]types.Record{sampleRecord(types.Assets)}))

	count := 0
	require.NoError(t, s.IterLayer(types.Interact, func(types.Record) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}
