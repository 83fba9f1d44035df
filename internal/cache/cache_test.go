package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20}, 100)
	key := ContentKey("hello")
	c.Put(key, []float32{1, 2, 3})

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, got)
	require.Equal(t, Stats{Hits: 1, Misses: 0, Size: 1}, c.Stats())
}

func TestOversizedEntrySilentlyRejected(t *testing.T) {
	c := New(Config{MaxBytes: 8}, 100) // 2 float32s
	key := ContentKey("big")
	c.Put(key, []float32{1, 2, 3, 4})

	_, ok := c.Get(key)
	require.False(t, ok)
	require.Equal(t, 0, c.Stats().Size)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20, TTL: time.Millisecond}, 100)
	key := ContentKey("k")
	c.Put(key, []float32{1})

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(key)
	require.False(t, ok)
	require.Equal(t, 0, c.Stats().Size)
}

func TestEvictionTieBreakAscendingID(t *testing.T) {
	c := New(Config{MaxBytes: 8}, 100) // room for exactly two one-float32 entries (4 bytes each)
	// PutBatch stamps every entry with the same time, so "a" and "b"
	// share LastAccess and the tie is broken by ascending key.
	c.PutBatch(map[string][]float32{"b": {1}, "a": {1}})
	// A third entry overflows the 8-byte budget and evicts "a".
	c.Put("c", []float32{1})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	require.False(t, aOK)
	require.True(t, bOK)
	require.True(t, cOK)
}

func TestOptimizePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	c1 := New(Config{MaxBytes: 1 << 20, CachePath: path}, 100)
	c1.Put(ContentKey("x"), []float32{9, 9})
	c1.Optimize()

	c2 := New(Config{MaxBytes: 1 << 20, CachePath: path}, 100)
	got, ok := c2.Get(ContentKey("x"))
	require.True(t, ok)
	require.Equal(t, []float32{9, 9}, got)
}

func TestOptimizeSweepsExpired(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20, TTL: time.Millisecond}, 100)
	c.Put("k", []float32{1})
	time.Sleep(5 * time.Millisecond)
	c.Optimize()
	require.Equal(t, 0, c.Stats().Size)
}
