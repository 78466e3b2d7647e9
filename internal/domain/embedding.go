package domain

import "context"

// Embedder is the shared dense vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// SparseEmbedder produces term-weighted sparse representations of text.
type SparseEmbedder interface {
	EmbedSparse(ctx context.Context, text string) (SparseVector, error)
}

// Reranker scores (query, passage) pairs with a cross-encoder relevance model.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries one vector per input text, in input order,
// plus the aggregate token usage of the call.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// SparseVector is a term-weighted sparse text representation. Indices are
// sorted ascending and unique; Values[i] is the weight of Indices[i].
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// IsZero reports whether the vector has no non-zero terms.
func (v SparseVector) IsZero() bool { return len(v.Indices) == 0 }
