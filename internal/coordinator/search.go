package coordinator

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/hnsw"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/types"
)

// Filter is a metadata predicate applied after the merge step.
type Filter func(types.Record) bool

// SearchOptions tunes one search call (spec §4.11).
type SearchOptions struct {
	TopK             int
	MinScore         float64
	Filters          []Filter
	IncludeVectors   bool
	EFSearchOverride int
}

// SearchResult pairs a record with its match score.
type SearchResult struct {
	Record types.Record
	Score  float64
}

// Reranker is the optional external reranker collaborator (spec §6):
// rerank(query, candidates[]) -> scored[].
type Reranker interface {
	Rerank(ctx context.Context, query []float32, candidates []SearchResult) ([]SearchResult, error)
}

// overfetchFactor widens the per-layer candidate pool beyond top_k so
// that min_score/metadata filtering and reranking still have enough
// candidates to choose from after the merge step.
const overfetchFactor = 4

// SearchCoordinator implements spec §4.11's pipeline: embed, fan-out
// per layer, merge, filter, optional rerank, truncate.
type SearchCoordinator struct {
	*Base
	embedding   *EmbeddingCoordinator
	indices     map[types.Layer]*hnsw.Index
	recordStore *store.RecordStore
	reranker    Reranker // nil disables step 5
}

// NewSearchCoordinator wires the query path to the per-layer indices
// and the shared Record Store.
func NewSearchCoordinator(
	embedding *EmbeddingCoordinator,
	indices map[types.Layer]*hnsw.Index,
	rs *store.RecordStore,
	reranker Reranker,
	cbCfg types.CircuitBreakerConfig,
	concurrency int64,
) *SearchCoordinator {
	return &SearchCoordinator{
		Base:        NewBase("search", cbCfg, concurrency),
		embedding:   embedding,
		indices:     indices,
		recordStore: rs,
		reranker:    reranker,
	}
}

// Search runs the full pipeline for a text query against the given
// layers, returning at most opts.TopK results.
func (sc *SearchCoordinator) Search(ctx context.Context, query string, layers []types.Layer, opts SearchOptions) ([]SearchResult, error) {
	var out []SearchResult
	err := sc.Guard(ctx, func(ctx context.Context) error {
		if opts.TopK <= 0 {
			return cortexerr.New(cortexerr.Validation, "coordinator.search", nil)
		}

		vec, err := sc.embedding.Embed(ctx, query)
		if err != nil {
			return err
		}

		candidateK := opts.TopK * overfetchFactor
		merged, err := sc.fanOut(ctx, vec, layers, candidateK, opts.EFSearchOverride)
		if err != nil {
			return err
		}

		filtered := sc.filter(merged, opts)

		if sc.reranker != nil && len(filtered) > 0 {
			rerankWindow := filtered
			if len(rerankWindow) > candidateK {
				rerankWindow = rerankWindow[:candidateK]
			}
			reranked, err := sc.reranker.Rerank(ctx, vec, rerankWindow)
			if err != nil {
				return err
			}
			filtered = reranked
		}

		sortResults(filtered)
		if len(filtered) > opts.TopK {
			filtered = filtered[:opts.TopK]
		}
		if !opts.IncludeVectors {
			for i := range filtered {
				filtered[i].Record.Vector = nil
			}
		}
		out = filtered
		return nil
	})
	return out, err
}

// fanOut searches every requested layer concurrently and resolves
// matches back to full records.
func (sc *SearchCoordinator) fanOut(ctx context.Context, vec []float32, layers []types.Layer, candidateK, efOverride int) ([]SearchResult, error) {
	g, ctx := errgroup.WithContext(ctx)
	perLayer := make([][]SearchResult, len(layers))

	for i, layer := range layers {
		i, layer := i, layer
		ix, ok := sc.indices[layer]
		if !ok {
			continue
		}
		g.Go(func() error {
			matches, err := ix.Search(vec, candidateK, efOverride)
			if err != nil {
				return err
			}
			results := make([]SearchResult, 0, len(matches))
			for _, m := range matches {
				id, err := uuid.Parse(m.ID)
				if err != nil {
					continue
				}
				rec, found, err := sc.recordStore.Get(layer, id)
				if err != nil {
					return err
				}
				if !found {
					continue
				}
				results = append(results, SearchResult{Record: rec, Score: m.Score})
			}
			perLayer[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []SearchResult
	for _, rs := range perLayer {
		merged = append(merged, rs...)
	}
	sortResults(merged)
	return merged, nil
}

func (sc *SearchCoordinator) filter(results []SearchResult, opts SearchOptions) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score < opts.MinScore {
			continue
		}
		keep := true
		for _, f := range opts.Filters {
			if !f(r.Record) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

// sortResults orders by score descending with ascending-id tiebreak,
// matching the per-layer HNSW ordering (spec §4.2/§4.11).
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID.String() < results[j].Record.ID.String()
	})
}
