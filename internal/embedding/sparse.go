// Package embedding provides the local hashed sparse embedder. Dense
// embedding lives in transport/openai; sparse vectors are computed in-process
// so they never fail on network I/O.
package embedding

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/clearlane/htsnav/internal/domain"
)

// DefaultSparseDim is the hashed sparse embedding space size.
const DefaultSparseDim = 100000

// HashedSparse maps lowercase alphanumeric tokens into a fixed-size sparse
// space via 64-bit FNV hashing, with term counts as weights.
type HashedSparse struct {
	dim uint32
}

// NewHashedSparse creates a sparse embedder with the given dimensionality.
func NewHashedSparse(dim int) *HashedSparse {
	if dim <= 0 {
		dim = DefaultSparseDim
	}
	return &HashedSparse{dim: uint32(dim)}
}

// EmbedSparse implements domain.SparseEmbedder. Empty or non-alphanumeric
// input yields a zero vector, never an error.
func (h *HashedSparse) EmbedSparse(_ context.Context, text string) (domain.SparseVector, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return domain.SparseVector{}, nil
	}

	counts := make(map[uint32]float32, len(tokens))
	for _, tok := range tokens {
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(tok))
		idx := uint32(hash.Sum64() % uint64(h.dim))
		counts[idx]++
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = counts[idx]
	}

	return domain.SparseVector{Indices: indices, Values: values}, nil
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
