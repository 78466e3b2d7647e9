// Package index is the vector index adapter. It maintains the dense FT index
// and the sparse postings sorted sets, and serves both search arms.
package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/backoff"
	"github.com/clearlane/htsnav/internal/db"
	"github.com/clearlane/htsnav/internal/domain"
)

// store is the consumer interface for index operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	ZAddMulti(ctx context.Context, entries map[string][]db.ZSetMember) error
	ZRangeWithScoresMulti(ctx context.Context, keys []string) ([][]db.ZSetMember, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config holds the index layout settings.
type Config struct {
	KeyPrefix       string // key namespace, e.g. "htsnav:"
	Collection      string // logical collection name, e.g. "tariff_docs"
	Dimensions      int    // dense vector dimensionality
	SparseQueryDims int    // max sparse dims consulted per query
}

// Repo implements the vector index over a Redis-backed store.
type Repo struct {
	store  store
	cfg    Config
	retry  backoff.Policy
	logger *zap.Logger
}

// New creates the index adapter with the default transport retry policy.
func New(s store, cfg Config, logger *zap.Logger) *Repo {
	return &Repo{store: s, cfg: cfg, retry: backoff.Default(), logger: logger}
}

func (r *Repo) indexName() string {
	return r.cfg.KeyPrefix + r.cfg.Collection + ":idx"
}

func (r *Repo) docKey(id string) string {
	return r.cfg.KeyPrefix + r.cfg.Collection + ":doc:" + id
}

func (r *Repo) postingsKey(dim uint32) string {
	return r.cfg.KeyPrefix + r.cfg.Collection + ":sp:" + strconv.FormatUint(uint64(dim), 10)
}

// PointID derives the stable point identifier from a chunk checksum. The same
// text always maps to the same id, which is what makes upserts idempotent.
func PointID(checksum string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(checksum)).String()
}

// EnsureCollection creates the FT index if it does not exist. Safe to call on
// every boot.
func (r *Repo) EnsureCollection(ctx context.Context) error {
	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.cfg.KeyPrefix + r.cfg.Collection + ":doc:"},
		Fields: []db.IndexField{
			{Name: "content", Type: db.IndexFieldText},
			{Name: "category", Type: db.IndexFieldTag},
			{Name: "checksum", Type: db.IndexFieldTag},
			{Name: "doc_source", Type: db.IndexFieldTag},
			{Name: "page", Type: db.IndexFieldNumeric},
			{
				Name:           "vector",
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorFlat,
				VectorDim:      r.cfg.Dimensions,
				VectorDistance: db.DistanceCosine,
			},
		},
	}

	err := r.retry.Retry(ctx, func(ctx context.Context) error {
		err := r.store.CreateIndex(ctx, def)
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure index %s: %w: %w", r.indexName(), err, domain.ErrUpstreamUnavailable)
	}
	return nil
}

// UpsertIfNew writes the chunks that are not already present, keyed by
// checksum-derived point id. dense[i] and sparse[i] belong to chunks[i].
// Returns the number of points actually inserted; a re-run over the same
// chunks inserts none.
func (r *Repo) UpsertIfNew(ctx context.Context, chunks []domain.Chunk, dense [][]float32, sparse []domain.SparseVector) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if len(dense) != len(chunks) || len(sparse) != len(chunks) {
		return 0, fmt.Errorf("vector count mismatch: %d chunks, %d dense, %d sparse: %w",
			len(chunks), len(dense), len(sparse), domain.ErrValidation)
	}

	ids := make([]string, len(chunks))
	keys := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = PointID(c.Checksum)
		keys[i] = r.docKey(ids[i])
	}

	var exists []bool
	err := r.retry.Retry(ctx, func(ctx context.Context) error {
		var err error
		exists, err = r.store.ExistsMulti(ctx, keys)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("check existing points: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	var items []db.HashSetItem
	postings := make(map[string][]db.ZSetMember)
	seen := make(map[string]bool, len(chunks))

	for i, c := range chunks {
		// a batch can carry the same text twice; first occurrence wins
		if exists[i] || seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true

		items = append(items, db.HashSetItem{
			Key:    keys[i],
			Fields: chunkFields(c, dense[i]),
		})
		for j, dim := range sparse[i].Indices {
			key := r.postingsKey(dim)
			postings[key] = append(postings[key], db.ZSetMember{
				Member: ids[i],
				Score:  float64(sparse[i].Values[j]),
			})
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	err = r.retry.Retry(ctx, func(ctx context.Context) error {
		return r.store.HSetMulti(ctx, items)
	})
	if err != nil {
		return 0, fmt.Errorf("write points: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	if len(postings) > 0 {
		err = r.retry.Retry(ctx, func(ctx context.Context) error {
			return r.store.ZAddMulti(ctx, postings)
		})
		if err != nil {
			return 0, fmt.Errorf("write sparse postings: %w: %w", err, domain.ErrUpstreamUnavailable)
		}
	}

	return len(items), nil
}

var payloadReturnFields = []string{
	"content", "page", "category", "is_table", "section_title",
	"doc_source", "checksum", "meta", "__vector_score",
}

// QueryDense runs the dense KNN arm. Hits come back similarity-descending.
func (r *Repo) QueryDense(ctx context.Context, vector []float32, limit int) ([]domain.SearchHit, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            limit,
		ReturnFields: payloadReturnFields,
	}

	var res *db.SearchResult
	err := r.retry.Retry(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.store.SearchKNN(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dense search: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	hits := make([]domain.SearchHit, 0, len(res.Entries))
	for _, e := range res.Entries {
		hits = append(hits, domain.SearchHit{
			ID:      trimDocKey(e.Key, r.cfg.KeyPrefix+r.cfg.Collection+":doc:"),
			Score:   e.Score,
			Payload: parsePayload(e.Fields),
		})
	}
	return hits, nil
}

// QuerySparse runs the sparse arm: fetch postings for the query's heaviest
// dims, accumulate dot products client-side, rank, then load payloads for the
// winners. A zero query vector short-circuits to no hits.
func (r *Repo) QuerySparse(ctx context.Context, sv domain.SparseVector, limit int) ([]domain.SearchHit, error) {
	if sv.IsZero() || limit <= 0 {
		return nil, nil
	}

	dims, weights := topDims(sv, r.cfg.SparseQueryDims)
	keys := make([]string, len(dims))
	for i, d := range dims {
		keys[i] = r.postingsKey(d)
	}

	var postings [][]db.ZSetMember
	err := r.retry.Retry(ctx, func(ctx context.Context) error {
		var err error
		postings, err = r.store.ZRangeWithScoresMulti(ctx, keys)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sparse postings: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	scores := make(map[string]float64)
	for i, members := range postings {
		for _, m := range members {
			scores[m.Member] += float64(weights[i]) * m.Score
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, scored{id: id, score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	docKeys := make([]string, len(ranked))
	for i, s := range ranked {
		docKeys[i] = r.docKey(s.id)
	}

	var fieldMaps []map[string]string
	err = r.retry.Retry(ctx, func(ctx context.Context) error {
		var err error
		fieldMaps, err = r.store.HGetAllMulti(ctx, docKeys)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sparse payloads: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	hits := make([]domain.SearchHit, 0, len(ranked))
	for i, s := range ranked {
		if len(fieldMaps[i]) == 0 {
			// postings can briefly outlive a deleted point
			r.logger.Debug("sparse hit without payload", zap.String("id", s.id))
			continue
		}
		hits = append(hits, domain.SearchHit{
			ID:      s.id,
			Score:   s.score,
			Payload: parsePayload(fieldMaps[i]),
		})
	}
	return hits, nil
}

// topDims returns up to max dims of sv ordered by descending weight, with the
// matching weights. Ties break on the lower dim for determinism.
func topDims(sv domain.SparseVector, max int) ([]uint32, []float32) {
	type term struct {
		dim    uint32
		weight float32
	}
	terms := make([]term, len(sv.Indices))
	for i, d := range sv.Indices {
		terms[i] = term{dim: d, weight: sv.Values[i]}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].weight != terms[j].weight {
			return terms[i].weight > terms[j].weight
		}
		return terms[i].dim < terms[j].dim
	})
	if max > 0 && len(terms) > max {
		terms = terms[:max]
	}

	dims := make([]uint32, len(terms))
	weights := make([]float32, len(terms))
	for i, t := range terms {
		dims[i] = t.dim
		weights[i] = t.weight
	}
	return dims, weights
}

func chunkFields(c domain.Chunk, vector []float32) map[string]string {
	fields := map[string]string{
		"content":    c.Text,
		"page":       strconv.Itoa(c.Page),
		"category":   c.Category,
		"is_table":   strconv.FormatBool(c.IsTable),
		"checksum":   c.Checksum,
		"doc_source": c.DocSource,
		"vector":     string(vectorToBytes(vector)),
	}
	if c.SectionTitle != "" {
		fields["section_title"] = c.SectionTitle
	}
	if len(c.Metadata) > 0 {
		if raw, err := json.Marshal(c.Metadata); err == nil {
			fields["meta"] = string(raw)
		}
	}
	return fields
}

func parsePayload(fields map[string]string) domain.PassagePayload {
	p := domain.PassagePayload{
		Content:      fields["content"],
		Category:     fields["category"],
		SectionTitle: fields["section_title"],
		DocSource:    fields["doc_source"],
		Checksum:     fields["checksum"],
	}
	if v, err := strconv.Atoi(fields["page"]); err == nil {
		p.Page = v
	}
	p.IsTable = fields["is_table"] == "true"
	if raw, ok := fields["meta"]; ok && raw != "" {
		var meta map[string]string
		if json.Unmarshal([]byte(raw), &meta) == nil {
			p.Meta = meta
		}
	}
	return p
}

func trimDocKey(key, prefix string) string {
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}

func vectorToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
