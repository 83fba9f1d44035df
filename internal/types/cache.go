package types

import "time"

// CacheEntry is one mapping from a content-hash key to an embedding
// vector in the Embedding Cache (spec §3/§4.4).
type CacheEntry struct {
	Key         string
	Vector      []float32
	CreatedAt   time.Time
	LastAccess  time.Time
	Expiry      time.Time // zero value means no expiry
	AccessCount uint32
	Bytes       int64
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.Expiry.IsZero() && now.After(e.Expiry)
}
