// Package cache implements the Embedding Cache (spec §4.4): an
// LRU+TTL store keyed by a content-derived hash, with an external
// byte-budget tracker layered over hashicorp/golang-lru, optional
// on-disk persistence, and best-effort failure semantics.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/types"
)

// Config tunes the cache (spec §6).
type Config struct {
	MaxBytes  int64
	TTL       time.Duration // 0 = no expiry
	CachePath string        // empty disables persistence
}

// Stats are the counters returned by Stats().
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Cache is the LRU+TTL embedding cache. Every operation is
// best-effort: internal errors are logged and the cache degrades to a
// smaller consistent subset rather than failing the caller (spec
// §4.4 failure semantics).
type Cache struct {
	mu         sync.RWMutex
	entries    *lru.Cache[string, *types.CacheEntry]
	cfg        Config
	totalBytes int64
	hits       uint64
	misses     uint64
}

// New builds an empty cache. capacity bounds the number of entries
// tracked by the underlying LRU; byte-budget eviction is enforced
// independently via cfg.MaxBytes.
func New(cfg Config, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1 << 20 // effectively unbounded by count; bytes still gate admission
	}
	l, _ := lru.New[string, *types.CacheEntry](capacity)
	c := &Cache{entries: l, cfg: cfg}
	if cfg.CachePath != "" {
		c.loadFromDisk()
	}
	return c
}

// ContentKey truncates SHA-256 of text to 16 bytes, hex-encoded (spec
// §3 Cache Entry: "content-hash key").
func ContentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// Get returns the vector for key if present and not expired.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	now := time.Now()
	if e.Expired(now) {
		c.entries.Remove(key)
		c.totalBytes -= e.Bytes
		c.misses++
		return nil, false
	}
	e.LastAccess = now
	e.AccessCount++
	c.hits++
	return e.Vector, true
}

func vectorBytes(v []float32) int64 { return int64(len(v)) * 4 }

// Put admits key -> vector. A vector whose size exceeds the cache
// capacity is silently rejected (spec §4.4 admission rule); otherwise
// eviction runs by oldest last_access (ties broken by ascending key,
// per the Open Question resolution in DESIGN.md) until there's room.
func (c *Cache) Put(key string, vector []float32) {
	size := vectorBytes(vector)
	if c.cfg.MaxBytes > 0 && size > c.cfg.MaxBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, vector, size, time.Now())
}

func (c *Cache) putLocked(key string, vector []float32, size int64, now time.Time) {
	if old, ok := c.entries.Peek(key); ok {
		c.totalBytes -= old.Bytes
		c.entries.Remove(key)
	}
	for c.cfg.MaxBytes > 0 && c.totalBytes+size > c.cfg.MaxBytes && c.entries.Len() > 0 {
		if !c.evictOneLocked() {
			break
		}
	}
	e := &types.CacheEntry{
		Key:        key,
		Vector:     vector,
		CreatedAt:  now,
		LastAccess: now,
		Bytes:      size,
	}
	if c.cfg.TTL > 0 {
		e.Expiry = now.Add(c.cfg.TTL)
	}
	c.entries.Add(key, e)
	c.totalBytes += size
}

// evictOneLocked removes the entry with the oldest LastAccess,
// breaking ties by ascending key. Returns false if the cache is empty.
func (c *Cache) evictOneLocked() bool {
	keys := c.entries.Keys()
	if len(keys) == 0 {
		return false
	}
	var oldestKey string
	var oldest *types.CacheEntry
	for _, k := range keys {
		e, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if oldest == nil ||
			e.LastAccess.Before(oldest.LastAccess) ||
			(e.LastAccess.Equal(oldest.LastAccess) && k < oldestKey) {
			oldest = e
			oldestKey = k
		}
	}
	if oldest == nil {
		return false
	}
	c.entries.Remove(oldestKey)
	c.totalBytes -= oldest.Bytes
	return true
}

// PutBatch admits several entries in one call.
func (c *Cache) PutBatch(items map[string][]float32) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range items {
		size := vectorBytes(v)
		if c.cfg.MaxBytes > 0 && size > c.cfg.MaxBytes {
			continue
		}
		c.putLocked(k, v, size, now)
	}
}

// Evict removes key explicitly, if present.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries.Peek(key); ok {
		c.totalBytes -= e.Bytes
		c.entries.Remove(key)
	}
}

// Prefetch is a hook for callers to warm likely-needed keys; absent a
// backing embedding source here, it is a targeted no-op unless the
// key is already resident (touching it to keep it warm).
func (c *Cache) Prefetch(keys []string) {
	for _, k := range keys {
		c.Get(k)
	}
}

// WarmCache is an alias of Prefetch matching spec §4.4's naming.
func (c *Cache) WarmCache(keys []string) { c.Prefetch(keys) }

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.totalBytes = 0
}

// Stats reports hit/miss counters and current size.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.entries.Len()}
}

// Optimize sweeps expired entries and, if a cache path is configured,
// persists the remaining non-expired entries as a single snapshot
// file (spec §4.4 persistence). Failures are logged, not returned —
// cache health must never block a read.
func (c *Cache) Optimize() {
	c.mu.Lock()
	now := time.Now()
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if ok && e.Expired(now) {
			c.entries.Remove(k)
			c.totalBytes -= e.Bytes
		}
	}
	c.mu.Unlock()

	if c.cfg.CachePath == "" {
		return
	}
	if err := c.saveToDisk(); err != nil {
		logging.For(logging.CategoryCache).Warn("cache snapshot save failed", logging.ErrorField(err))
	}
}

type snapshotEntry struct {
	Key        string    `json:"key"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	Expiry     time.Time `json:"expiry"`
	Bytes      int64     `json:"bytes"`
}

func (c *Cache) saveToDisk() error {
	c.mu.RLock()
	keys := c.entries.Keys()
	snap := make([]snapshotEntry, 0, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := c.entries.Peek(k)
		if !ok || e.Expired(now) {
			continue
		}
		snap = append(snap, snapshotEntry{
			Key: e.Key, Vector: e.Vector, CreatedAt: e.CreatedAt,
			LastAccess: e.LastAccess, Expiry: e.Expiry, Bytes: e.Bytes,
		})
	}
	c.mu.RUnlock()

	sort.Slice(snap, func(i, j int) bool { return snap[i].Key < snap[j].Key })
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(c.cfg.CachePath, data, 0o644)
}

// loadFromDisk is called once at construction; a missing or corrupt
// file is non-fatal (spec §4.4: "load failures are non-fatal").
func (c *Cache) loadFromDisk() {
	data, err := os.ReadFile(c.cfg.CachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.For(logging.CategoryCache).Warn("cache snapshot load failed", logging.ErrorField(err))
		}
		return
	}
	var snap []snapshotEntry
	if err := json.Unmarshal(data, &snap); err != nil {
		logging.For(logging.CategoryCache).Warn("cache snapshot parse failed", logging.ErrorField(err))
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range snap {
		if !e.Expiry.IsZero() && now.After(e.Expiry) {
			continue
		}
		ce := &types.CacheEntry{
			Key: e.Key, Vector: e.Vector, CreatedAt: e.CreatedAt,
			LastAccess: e.LastAccess, Expiry: e.Expiry, Bytes: e.Bytes,
		}
		c.entries.Add(ce.Key, ce)
		c.totalBytes += ce.Bytes
	}
}
