package types

import (
	"time"

	"github.com/google/uuid"
)

// Record is the unit of storage: a textual payload plus a fixed
// dimension dense vector, tagged with a layer and lifecycle metadata.
//
// Ownership: exclusively owned by the Record Store once inserted;
// callers always receive cloned values (see Clone).
type Record struct {
	ID         uuid.UUID
	Payload    string
	Vector     []float32
	Layer      Layer
	Kind       string
	Tags       []string
	Project    string
	Session    string
	Relevance  float64
	CreatedAt  time.Time
	LastAccess time.Time
	AccessCount uint32
}

// Clone returns a deep copy so callers can never mutate store-owned
// state through a returned Record.
func (r Record) Clone() Record {
	out := r
	if r.Vector != nil {
		out.Vector = make([]float32, len(r.Vector))
		copy(out.Vector, r.Vector)
	}
	if r.Tags != nil {
		out.Tags = make([]string, len(r.Tags))
		copy(out.Tags, r.Tags)
	}
	return out
}

// Touch bumps LastAccess and AccessCount. AccessCount is monotonically
// non-decreasing per the Record invariant in spec §3.
func (r *Record) Touch(at time.Time) {
	r.LastAccess = at
	r.AccessCount++
}

// ResidenceTime is how long the record has sat in its current layer,
// measured from CreatedAt (reset on each promotion apply).
func (r Record) ResidenceTime(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
