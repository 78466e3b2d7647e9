package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearlane/htsnav/internal/domain"
	"github.com/clearlane/htsnav/internal/metrics"
)

// Config holds the retrieval tuning knobs.
type Config struct {
	TopK       int     // results fetched per arm and returned after fusion
	RRFK       int     // rank fusion constant, 0 = default
	RerankTopK int     // fused results sent to the cross-encoder
	BlendRatio float64 // rerank weight in the final score
}

// Service runs a hybrid query: embed, search both arms concurrently, fuse,
// optionally rerank, and clean the results into evidence records.
type Service struct {
	index    Index
	embedder domain.Embedder
	sparse   domain.SparseEmbedder
	reranker domain.Reranker // nil disables reranking
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval service. reranker may be nil.
func New(
	index Index,
	embedder domain.Embedder,
	sparse domain.SparseEmbedder,
	reranker domain.Reranker,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		index:    index,
		embedder: embedder,
		sparse:   sparse,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search returns evidence for a free-text query, best first.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.Evidence, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if limit <= 0 || limit > s.cfg.TopK {
		limit = s.cfg.TopK
	}

	dense, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sparseVec, err := s.sparse.EmbedSparse(ctx, query)
	if err != nil {
		// the dense arm can still answer alone
		s.logger.Warn("Sparse embedding failed, dense arm only", zap.Error(err))
		metrics.SearchArmFailuresTotal.WithLabelValues("sparse").Inc()
		sparseVec = domain.SparseVector{}
	}

	denseHits, sparseHits, err := s.searchArms(ctx, dense.Embedding, sparseVec)
	if err != nil {
		return nil, err
	}

	fused := fuse(denseHits, sparseHits, limit, s.cfg.RRFK)
	fused = s.rerank(ctx, query, fused)

	return toEvidence(fused), nil
}

// searchArms runs both index queries concurrently. A failed arm degrades to
// empty rather than failing the query; only when every arm that ran has
// failed does the query surface an upstream error.
func (s *Service) searchArms(ctx context.Context, vector []float32, sv domain.SparseVector) (dense, sparse []domain.SearchHit, err error) {
	var denseErr, sparseErr error
	sparseRan := !sv.IsZero()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, qerr := s.index.QueryDense(gctx, vector, s.cfg.TopK)
		if qerr != nil {
			s.logger.Warn("Dense arm failed", zap.Error(qerr))
			metrics.SearchArmFailuresTotal.WithLabelValues("dense").Inc()
			denseErr = qerr
			return nil
		}
		dense = hits
		return nil
	})

	g.Go(func() error {
		if !sparseRan {
			return nil
		}
		hits, qerr := s.index.QuerySparse(gctx, sv, s.cfg.TopK)
		if qerr != nil {
			s.logger.Warn("Sparse arm failed", zap.Error(qerr))
			metrics.SearchArmFailuresTotal.WithLabelValues("sparse").Inc()
			sparseErr = qerr
			return nil
		}
		sparse = hits
		return nil
	})

	_ = g.Wait() // goroutines never return errors; Wait just joins them

	if denseErr != nil && (!sparseRan || sparseErr != nil) {
		return nil, nil, fmt.Errorf("all search arms failed: %w", domain.ErrUpstreamUnavailable)
	}
	return dense, sparse, nil
}

// rerank blends cross-encoder scores into the top fused hits. Best-effort:
// any failure keeps the fused order.
func (s *Service) rerank(ctx context.Context, query string, fused []domain.SearchHit) []domain.SearchHit {
	if s.reranker == nil || len(fused) == 0 {
		return fused
	}

	top := len(fused)
	if s.cfg.RerankTopK > 0 && top > s.cfg.RerankTopK {
		top = s.cfg.RerankTopK
	}

	passages := make([]string, top)
	for i := 0; i < top; i++ {
		passages[i] = fused[i].Payload.Content
	}

	scores, err := s.reranker.Score(ctx, query, passages)
	if err != nil || len(scores) != top {
		s.logger.Warn("Rerank failed, keeping fused order",
			zap.Int("passages", top), zap.Error(err))
		metrics.RerankTotal.WithLabelValues("degraded").Inc()
		return fused
	}
	metrics.RerankTotal.WithLabelValues("success").Inc()

	blend := s.cfg.BlendRatio
	for i := 0; i < top; i++ {
		fused[i].Score = (1-blend)*fused[i].Score + blend*scores[i]
	}

	// Blending can push a reranked hit below the un-reranked tail, so the
	// whole slice is re-sorted to keep the returned scores ordered.
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}

// toEvidence strips everything non-textual from the payloads. Vector bytes
// never leave the repository layer; this drops whatever binary-ish metadata
// may still be attached.
func toEvidence(hits []domain.SearchHit) []domain.Evidence {
	out := make([]domain.Evidence, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Evidence{
			ID:       h.ID,
			Score:    h.Score,
			Content:  h.Payload.Content,
			Meta:     cleanMeta(h.Payload),
			Page:     h.Payload.Page,
			Checksum: h.Payload.Checksum,
			IsTable:  h.Payload.IsTable,
		})
	}
	return out
}

// droppedMetaKeys are extraction artifacts that are not textual evidence.
var droppedMetaKeys = map[string]bool{
	"image_url": true,
	"file_id":   true,
	"file_path": true,
}

func cleanMeta(p domain.PassagePayload) map[string]string {
	meta := make(map[string]string, len(p.Meta)+2)
	for k, v := range p.Meta {
		if droppedMetaKeys[k] || v == "" {
			continue
		}
		meta[k] = v
	}
	if p.SectionTitle != "" {
		meta["section_title"] = p.SectionTitle
	}
	if p.DocSource != "" {
		meta["doc_source"] = p.DocSource
	}
	if p.Category != "" {
		meta["category"] = p.Category
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
