// Package rerank is an HTTP client for a cross-encoder scoring service
// speaking the text-embeddings-inference /rerank protocol.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client scores (query, passage) pairs against a remote cross-encoder.
// The circuit breaker keeps a flapping rerank service from stalling every
// search request; callers treat an open breaker like any other upstream
// failure and fall back to fused scores.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]float64]
	logger  *zap.Logger
}

// Config holds the rerank client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a rerank client with a circuit breaker tripping after
// 5 consecutive failures and probing again after 30 seconds.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:    "rerank",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("rerank breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]float64](settings),
		logger:  log,
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score implements domain.Reranker. Returns one relevance score per passage,
// in passage order. All failures wrap domain.ErrUpstreamUnavailable.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	scores, err := c.breaker.Execute(func() ([]float64, error) {
		return c.score(ctx, query, passages)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("rerank circuit open: %w", domain.ErrUpstreamUnavailable)
		}
		return nil, err
	}
	return scores, nil
}

func (c *Client) score(ctx context.Context, query string, passages []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: passages})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w: %w", err, domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service returned %d: %s: %w",
			resp.StatusCode, string(msg), domain.ErrUpstreamUnavailable)
	}

	var entries []rerankEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	scores := make([]float64, len(passages))
	seen := 0
	for _, e := range entries {
		if e.Index < 0 || e.Index >= len(scores) {
			return nil, fmt.Errorf("rerank index %d out of range for %d passages: %w",
				e.Index, len(passages), domain.ErrUpstreamUnavailable)
		}
		scores[e.Index] = e.Score
		seen++
	}
	if seen != len(passages) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages: %w",
			seen, len(passages), domain.ErrUpstreamUnavailable)
	}
	return scores, nil
}

// HealthCheck probes the service health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rerank health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rerank health returned %d", resp.StatusCode)
	}
	return nil
}
