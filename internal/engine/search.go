package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/lazypower/salience/internal/store"
	"github.com/lazypower/salience/internal/tensor"
)

// SearchResult is one atom ranked against a query atom.
type SearchResult struct {
	Atom       store.Atom `json:"atom"`
	Score      float64    `json:"score"`
	Similarity float64    `json:"similarity"`
}

// SearchOpts controls search behavior.
type SearchOpts struct {
	Limit int // max results (default 10)
}

func (o SearchOpts) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	ta, tb := tensor.Vector("a", a), tensor.Vector("b", b)
	dot, err := tensor.Dot(ta, tb)
	if err != nil {
		return 0
	}
	denom := tensor.Norm(ta) * tensor.Norm(tb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Similar ranks the other atoms by embedding similarity to externalID.
// Score = 0.7*similarity + 0.3*(attention / max attention), so atoms the
// allocator currently favours surface first among equally similar ones.
func Similar(ctx context.Context, db *store.DB, externalID string, opts SearchOpts) ([]SearchResult, error) {
	query, err := db.GetAtom(externalID)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, fmt.Errorf("atom %s not found", externalID)
	}
	if len(query.Embedding) == 0 {
		return nil, nil
	}

	atoms, err := db.ListAtoms(0)
	if err != nil {
		return nil, fmt.Errorf("load atoms: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxAttention := 0.0
	for _, a := range atoms {
		if a.Attention > maxAttention {
			maxAttention = a.Attention
		}
	}

	var results []SearchResult
	for _, a := range atoms {
		if a.ExternalID == query.ExternalID {
			continue
		}
		sim := CosineSimilarity(query.Embedding, a.Embedding)
		if sim <= 0 {
			continue
		}
		share := 0.0
		if maxAttention > 0 {
			share = a.Attention / maxAttention
		}
		results = append(results, SearchResult{
			Atom:       a,
			Score:      0.7*sim + 0.3*share,
			Similarity: sim,
		})
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	limit := opts.limit()
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
