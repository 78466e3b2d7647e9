// Package retrieval runs hybrid dense+sparse search with rank fusion and
// optional cross-encoder reranking.
package retrieval

import (
	"sort"

	"github.com/clearlane/htsnav/internal/domain"
)

// defaultRRFK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const defaultRRFK = 60

// minMaxEpsilon guards the normalization denominator against a zero score range.
const minMaxEpsilon = 1e-6

// fuse merges the dense and sparse arms: min-max normalize each list
// independently, assign RRF contributions by rank, sum per id, sort
// descending, truncate to limit. An id in both lists accumulates both
// contributions. Either list may be empty. k <= 0 falls back to the
// standard constant.
func fuse(dense, sparse []domain.SearchHit, limit, k int) []domain.SearchHit {
	if k <= 0 {
		k = defaultRRFK
	}
	type scored struct {
		hit   domain.SearchHit
		score float64
	}

	merged := make(map[string]*scored)

	for _, list := range [][]domain.SearchHit{normalize(dense), normalize(sparse)} {
		ranked := rankDescending(list)
		for rank, h := range ranked {
			contribution := 1.0 / float64(k+rank+1)
			if existing, ok := merged[h.ID]; ok {
				existing.score += contribution
			} else {
				merged[h.ID] = &scored{hit: h, score: contribution}
			}
		}
	}

	fused := make([]domain.SearchHit, 0, len(merged))
	for _, s := range merged {
		h := s.hit
		h.Score = s.score
		fused = append(fused, h)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

// normalize rescales scores into [0,1] within the list. A single-item or
// constant-score list maps to zero offsets over the epsilon denominator
// rather than dividing by zero.
func normalize(hits []domain.SearchHit) []domain.SearchHit {
	if len(hits) == 0 {
		return nil
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	span := hi - lo
	if span < minMaxEpsilon {
		span = minMaxEpsilon
	}

	out := make([]domain.SearchHit, len(hits))
	for i, h := range hits {
		h.Score = (h.Score - lo) / span
		out[i] = h
	}
	return out
}

// rankDescending orders hits by normalized score descending with id as the
// deterministic tie-break.
func rankDescending(hits []domain.SearchHit) []domain.SearchHit {
	out := make([]domain.SearchHit, len(hits))
	copy(out, hits)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
