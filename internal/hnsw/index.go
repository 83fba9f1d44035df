// Package hnsw wraps github.com/coder/hnsw into the per-layer
// approximate-nearest-neighbour index described in spec §4.2: fixed
// dimension, configurable M/efConstruction/efSearch/maxElements,
// cosine distance, descending-score results with ascending-id
// tiebreak.
package hnsw

import (
	"fmt"
	"sort"
	"sync"

	chnsw "github.com/coder/hnsw"

	"github.com/cortexmem/cortex/internal/cortexerr"
)

// Config mirrors spec §4.2/§6's HNSW configuration surface.
type Config struct {
	Dimension      int
	MaxConnections int // M
	EFConstruction int
	EFSearch       int
	MaxElements    int
}

// Result is one scored match: score is cosine similarity (1 - distance).
type Result struct {
	ID    string
	Score float64
}

// Index is a single layer's HNSW graph, keyed by string record id
// (the textual form of the record's UUID — coder/hnsw requires an
// ordered key type, which uuid.UUID's array representation is not).
type Index struct {
	mu     sync.RWMutex
	graph  *chnsw.Graph[string]
	cfg    Config
	count  int
}

// New builds an empty index for one layer.
func New(cfg Config) *Index {
	g := chnsw.NewGraph[string]()
	g.M = cfg.MaxConnections
	g.EfSearch = cfg.EFSearch
	g.Distance = chnsw.CosineDistance
	return &Index{graph: g, cfg: cfg}
}

func (ix *Index) validate(vector []float32) error {
	if len(vector) != ix.cfg.Dimension {
		return cortexerr.New(cortexerr.Validation, "hnsw.Index", fmt.Errorf("vector length %d != configured dimension %d", len(vector), ix.cfg.Dimension))
	}
	return nil
}

// Insert adds id -> vector. An id already present is overwritten (the
// invariant "an id appears at most once per index" is preserved by
// Update below; Insert itself refuses to silently double-add).
func (ix *Index) Insert(id string, vector []float32) error {
	if err := ix.validate(vector); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.count >= ix.cfg.MaxElements {
		return cortexerr.New(cortexerr.Capacity, "hnsw.Index.Insert", fmt.Errorf("index at max_elements=%d", ix.cfg.MaxElements))
	}
	_, existed := ix.graph.Lookup(id)
	ix.graph.Add(chnsw.MakeNode(id, vector))
	if !existed {
		ix.count++
	}
	return nil
}

// Remove deletes id from the index; reports whether it was present.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ok := ix.graph.Delete(id)
	if ok {
		ix.count--
	}
	return ok
}

// Update replaces the vector for id, keeping the "appears at most
// once" invariant.
func (ix *Index) Update(id string, vector []float32) error {
	if err := ix.validate(vector); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph.Delete(id)
	ix.graph.Add(chnsw.MakeNode(id, vector))
	return nil
}

// Search returns the top k matches for query, sorted by score
// descending with ascending-id tiebreak (spec §4.2, §8 scenario 1).
// If efSearchOverride is > 0 it is used for this call only; it is
// clamped up to k per the boundary behaviour in spec §8 ("ef_search <
// k must either clamp to k or return Validation" — this index
// clamps).
func (ix *Index) Search(query []float32, k int, efSearchOverride int) ([]Result, error) {
	if err := ix.validate(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	// coder/hnsw's Graph.Search takes no per-call ef parameter; EfSearch
	// is a shared field on the graph, so overriding it for this call
	// requires the write lock even though Search itself only reads the
	// graph (otherwise two concurrent searches race on EfSearch and one
	// can restore the other's prevEf).
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ef := ix.cfg.EFSearch
	if efSearchOverride > 0 {
		ef = efSearchOverride
	}
	if ef < k {
		ef = k
	}
	prevEf := ix.graph.EfSearch
	ix.graph.EfSearch = ef
	nodes := ix.graph.Search(query, k)
	ix.graph.EfSearch = prevEf

	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		results = append(results, Result{
			ID:    n.Key,
			Score: 1 - chnsw.CosineDistance(query, n.Value),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Len reports the number of vectors currently indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// RebuildFrom bulk-loads the index from an iterator, used when
// catching up from the Record Store (spec §4.2).
func RebuildFrom(cfg Config, iter func(yield func(id string, vector []float32) error) error) (*Index, error) {
	ix := New(cfg)
	err := iter(func(id string, vector []float32) error {
		return ix.Insert(id, vector)
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}
