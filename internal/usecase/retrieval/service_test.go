package retrieval

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
	"github.com/clearlane/htsnav/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterRetrievalMetrics()
	os.Exit(m.Run())
}

type mockIndex struct {
	denseHits  []domain.SearchHit
	denseErr   error
	sparseHits []domain.SearchHit
	sparseErr  error

	sparseCalls int
}

func (m *mockIndex) QueryDense(_ context.Context, _ []float32, _ int) ([]domain.SearchHit, error) {
	return m.denseHits, m.denseErr
}

func (m *mockIndex) QuerySparse(_ context.Context, _ domain.SparseVector, _ int) ([]domain.SearchHit, error) {
	m.sparseCalls++
	return m.sparseHits, m.sparseErr
}

type mockDense struct {
	vec []float32
	err error
}

func (m *mockDense) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: m.vec}, m.err
}

type mockSparse struct {
	vec domain.SparseVector
	err error
}

func (m *mockSparse) EmbedSparse(_ context.Context, _ string) (domain.SparseVector, error) {
	return m.vec, m.err
}

type mockReranker struct {
	scores []float64
	err    error
	calls  int
}

func (m *mockReranker) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.scores != nil {
		return m.scores, nil
	}
	return make([]float64, len(passages)), nil
}

func testService(index *mockIndex, reranker domain.Reranker) *Service {
	return New(
		index,
		&mockDense{vec: []float32{0.1, 0.2}},
		&mockSparse{vec: domain.SparseVector{Indices: []uint32{1}, Values: []float32{1}}},
		reranker,
		Config{TopK: 30, RerankTopK: 10, BlendRatio: 0.3},
		zap.NewNop(),
	)
}

func payloadHit(id string, score float64, content string) domain.SearchHit {
	return domain.SearchHit{ID: id, Score: score, Payload: domain.PassagePayload{
		Content:  content,
		Checksum: "sum-" + id,
		Page:     2,
	}}
}

func TestSearchHybridMergesArms(t *testing.T) {
	index := &mockIndex{
		denseHits:  []domain.SearchHit{payloadHit("a", 0.9, "dense passage"), payloadHit("b", 0.5, "shared")},
		sparseHits: []domain.SearchHit{payloadHit("b", 4.0, "shared"), payloadHit("c", 1.0, "sparse passage")},
	}
	svc := testService(index, nil)

	evidence, err := svc.Search(context.Background(), "steel duty", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) != 3 {
		t.Fatalf("expected 3 evidence records, got %d", len(evidence))
	}
	if evidence[0].ID != "b" {
		t.Errorf("expected cross-arm hit first, got %s", evidence[0].ID)
	}
	if evidence[0].Checksum != "sum-b" || evidence[0].Page != 2 {
		t.Errorf("payload fields not carried: %+v", evidence[0])
	}
}

func TestSearchDenseArmFailureDegrades(t *testing.T) {
	index := &mockIndex{
		denseErr:   errors.New("redis down"),
		sparseHits: []domain.SearchHit{payloadHit("s", 2.0, "sparse only")},
	}
	svc := testService(index, nil)

	evidence, err := svc.Search(context.Background(), "steel duty", 10)
	if err != nil {
		t.Fatalf("one failed arm must not fail the query: %v", err)
	}
	if len(evidence) != 1 || evidence[0].ID != "s" {
		t.Errorf("expected sparse-only result, got %+v", evidence)
	}
}

func TestSearchBothArmsFailIsUpstreamError(t *testing.T) {
	index := &mockIndex{
		denseErr:  errors.New("down"),
		sparseErr: errors.New("down"),
	}
	svc := testService(index, nil)

	_, err := svc.Search(context.Background(), "anything", 10)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSearchEmbedFailureIsFatal(t *testing.T) {
	svc := New(
		&mockIndex{},
		&mockDense{err: domain.ErrEmbeddingProviderError},
		&mockSparse{},
		nil,
		Config{TopK: 30},
		zap.NewNop(),
	)

	_, err := svc.Search(context.Background(), "query", 10)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected embedding error to propagate, got %v", err)
	}
}

func TestSearchSparseEmbedFailureFallsBackToDense(t *testing.T) {
	index := &mockIndex{
		denseHits: []domain.SearchHit{payloadHit("d", 0.8, "dense")},
	}
	svc := New(
		index,
		&mockDense{vec: []float32{0.1}},
		&mockSparse{err: errors.New("tokenizer broke")},
		nil,
		Config{TopK: 30},
		zap.NewNop(),
	)

	evidence, err := svc.Search(context.Background(), "query", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) != 1 || evidence[0].ID != "d" {
		t.Errorf("expected dense-only result, got %+v", evidence)
	}
	if index.sparseCalls != 0 {
		t.Error("sparse arm must be skipped when the sparse embedding fails")
	}
}

func TestSearchRerankReorders(t *testing.T) {
	index := &mockIndex{
		denseHits: []domain.SearchHit{
			payloadHit("a", 0.9, "weakly relevant"),
			payloadHit("b", 0.8, "highly relevant"),
		},
	}
	// cross-encoder strongly prefers b
	reranker := &mockReranker{scores: []float64{0.0, 1.0}}
	svc := testService(index, reranker)

	evidence, err := svc.Search(context.Background(), "steel duty", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected 1 rerank call, got %d", reranker.calls)
	}
	if evidence[0].ID != "b" {
		t.Errorf("expected rerank to promote b, got %s", evidence[0].ID)
	}
}

func TestSearchRerankedScoresStayGloballyOrdered(t *testing.T) {
	index := &mockIndex{
		denseHits: []domain.SearchHit{
			payloadHit("a", 0.9, "on point"),
			payloadHit("b", 0.8, "off topic"),
			payloadHit("c", 0.7, "tail item"),
		},
	}
	// only the top 2 are reranked; a heavy blend pushes b below the
	// un-reranked tail item c
	reranker := &mockReranker{scores: []float64{1.0, 0.0}}
	svc := New(
		index,
		&mockDense{vec: []float32{0.1, 0.2}},
		&mockSparse{vec: domain.SparseVector{Indices: []uint32{1}, Values: []float32{1}}},
		reranker,
		Config{TopK: 30, RerankTopK: 2, BlendRatio: 0.9},
		zap.NewNop(),
	)

	evidence, err := svc.Search(context.Background(), "steel duty", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) != 3 {
		t.Fatalf("expected 3 results, got %d", len(evidence))
	}
	for i := 1; i < len(evidence); i++ {
		if evidence[i].Score > evidence[i-1].Score {
			t.Fatalf("scores not descending at %d: %+v", i, evidence)
		}
	}
	if evidence[0].ID != "a" || evidence[1].ID != "c" || evidence[2].ID != "b" {
		t.Errorf("expected order a,c,b, got %s,%s,%s",
			evidence[0].ID, evidence[1].ID, evidence[2].ID)
	}
}

func TestSearchRerankFailureKeepsFusedOrder(t *testing.T) {
	index := &mockIndex{
		denseHits: []domain.SearchHit{
			payloadHit("a", 0.9, "first"),
			payloadHit("b", 0.8, "second"),
		},
	}
	reranker := &mockReranker{err: domain.ErrUpstreamUnavailable}
	svc := testService(index, reranker)

	evidence, err := svc.Search(context.Background(), "steel duty", 10)
	if err != nil {
		t.Fatalf("rerank failure must not fail the query: %v", err)
	}
	if evidence[0].ID != "a" || evidence[1].ID != "b" {
		t.Errorf("expected fused order preserved, got %+v", evidence)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := testService(&mockIndex{}, nil)

	_, err := svc.Search(context.Background(), "", 10)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCleanMetaDropsBinaryFields(t *testing.T) {
	p := domain.PassagePayload{
		Category:     "Table",
		SectionTitle: "Chapter 72",
		DocSource:    "hts.pdf",
		Meta: map[string]string{
			"HTS_Number": "7208.10.15",
			"image_url":  "https://example.com/x.png",
			"file_id":    "f123",
			"empty":      "",
		},
	}

	meta := cleanMeta(p)
	if _, ok := meta["image_url"]; ok {
		t.Error("image_url must be stripped")
	}
	if _, ok := meta["file_id"]; ok {
		t.Error("file_id must be stripped")
	}
	if _, ok := meta["empty"]; ok {
		t.Error("empty values must be stripped")
	}
	if meta["HTS_Number"] != "7208.10.15" {
		t.Errorf("textual metadata must survive: %v", meta)
	}
	if meta["section_title"] != "Chapter 72" || meta["doc_source"] != "hts.pdf" || meta["category"] != "Table" {
		t.Errorf("payload fields must be folded into meta: %v", meta)
	}
}
