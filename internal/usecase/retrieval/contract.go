package retrieval

import (
	"context"

	"github.com/clearlane/htsnav/internal/domain"
)

// Index is the vector index contract for both search arms.
type Index interface {
	QueryDense(ctx context.Context, vector []float32, limit int) ([]domain.SearchHit, error)
	QuerySparse(ctx context.Context, sv domain.SparseVector, limit int) ([]domain.SearchHit, error)
}
