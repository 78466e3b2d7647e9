package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearlane/htsnav/internal/domain"
	"github.com/clearlane/htsnav/internal/metrics"
)

// Upserter is the vector index contract for idempotent writes.
type Upserter interface {
	UpsertIfNew(ctx context.Context, chunks []domain.Chunk, dense [][]float32, sparse []domain.SparseVector) (int, error)
}

// Config holds the ingestion tuning knobs.
type Config struct {
	ChunkSentences int // sentences per chunk for non-table passages
	BatchSize      int // max chunks per upsert call
	Workers        int // concurrent embedding workers
}

// Result summarizes one ingestion run.
type Result struct {
	Chunks   int `json:"chunks"`
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
}

// Service is the ingestion pipeline: chunk, embed, upsert-if-new.
type Service struct {
	index    Upserter
	embedder domain.Embedder
	sparse   domain.SparseEmbedder
	cfg      Config
	logger   *zap.Logger
}

// New creates an ingestion service.
func New(
	index Upserter,
	embedder domain.Embedder,
	sparse domain.SparseEmbedder,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Service{index: index, embedder: embedder, sparse: sparse, cfg: cfg, logger: logger}
}

// Ingest chunks the passages, embeds every chunk, and upserts the vectors
// keyed by content checksum. Empty input is a no-op. A chunk whose embedding
// fails is skipped and logged; the rest of the batch proceeds.
func (s *Service) Ingest(ctx context.Context, passages []domain.Passage) (Result, error) {
	var chunks []domain.Chunk
	for _, p := range passages {
		chunks = append(chunks, Chunk(p, s.cfg.ChunkSentences)...)
	}
	if len(chunks) == 0 {
		return Result{}, nil
	}

	embedded, failed := s.embedAll(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	inserted := 0
	for start := 0; start < len(embedded.chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(embedded.chunks) {
			end = len(embedded.chunks)
		}

		n, err := s.index.UpsertIfNew(ctx,
			embedded.chunks[start:end],
			embedded.dense[start:end],
			embedded.sparse[start:end],
		)
		if err != nil {
			return Result{}, fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		inserted += n

		metrics.IngestChunksTotal.WithLabelValues("inserted").Add(float64(n))
		metrics.IngestChunksTotal.WithLabelValues("duplicate").Add(float64(end - start - n))
	}

	s.logger.Info("Ingestion completed",
		zap.Int("passages", len(passages)),
		zap.Int("chunks", len(chunks)),
		zap.Int("inserted", inserted),
		zap.Int("failed", failed),
	)

	return Result{Chunks: len(chunks), Inserted: inserted, Failed: failed}, nil
}

type embeddedChunks struct {
	chunks []domain.Chunk
	dense  [][]float32
	sparse []domain.SparseVector
}

// embedAll embeds chunks concurrently with a bounded worker pool. Failed
// chunks are dropped from the output; order of surviving chunks is preserved.
func (s *Service) embedAll(ctx context.Context, chunks []domain.Chunk) (embeddedChunks, int) {
	dense := make([][]float32, len(chunks))
	sparse := make([]domain.SparseVector, len(chunks))
	ok := make([]bool, len(chunks))

	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := range chunks {
		g.Go(func() error {
			res, err := s.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				s.logger.Warn("Chunk embedding failed, skipping",
					zap.String("checksum", chunks[i].Checksum),
					zap.Error(err))
				metrics.IngestChunksTotal.WithLabelValues("failed").Inc()
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			sv, err := s.sparse.EmbedSparse(gctx, chunks[i].Text)
			if err != nil {
				// dense alone still makes the chunk retrievable
				s.logger.Warn("Sparse embedding failed, storing dense only",
					zap.String("checksum", chunks[i].Checksum),
					zap.Error(err))
				sv = domain.SparseVector{}
			}

			dense[i] = res.Embedding
			sparse[i] = sv
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := embeddedChunks{}
	for i, keep := range ok {
		if !keep {
			continue
		}
		out.chunks = append(out.chunks, chunks[i])
		out.dense = append(out.dense, dense[i])
		out.sparse = append(out.sparse, sparse[i])
	}
	return out, failed
}
