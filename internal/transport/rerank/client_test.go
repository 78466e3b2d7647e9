package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

func TestClient_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "import duty on steel" {
			t.Errorf("unexpected query: %q", req.Query)
		}
		if len(req.Texts) != 3 {
			t.Fatalf("expected 3 texts, got %d", len(req.Texts))
		}

		// out of order to exercise reassembly by index
		entries := []rerankEntry{
			{Index: 2, Score: 0.9},
			{Index: 0, Score: 0.1},
			{Index: 1, Score: 0.5},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})

	scores, err := c.Score(context.Background(), "import duty on steel", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	want := []float64{0.1, 0.5, 0.9}
	for i, s := range scores {
		if s != want[i] {
			t.Errorf("scores[%d] = %f, expected %f", i, s, want[i])
		}
	}
}

func TestClient_Score_EmptyPassages(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://unused", Logger: zap.NewNop()})

	scores, err := c.Score(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores != nil {
		t.Errorf("expected nil scores for empty input, got %v", scores)
	}
}

func TestClient_Score_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})

	_, err := c.Score(context.Background(), "q", []string{"a"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestClient_Score_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankEntry{{Index: 0, Score: 0.4}})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})

	_, err := c.Score(context.Background(), "q", []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for missing scores")
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})

	for i := 0; i < 5; i++ {
		if _, err := c.Score(context.Background(), "q", []string{"a"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	// breaker is open now; this call must not reach the server
	_, err := c.Score(context.Background(), "q", []string{"a"})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable from open breaker, got %v", err)
	}
	if calls != 5 {
		t.Errorf("expected 5 server calls, got %d", calls)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}
