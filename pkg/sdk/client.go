// Package sdk provides a Go client for the htsnav HTTP API.
//
//	client := sdk.New("http://localhost:8080", sdk.WithAPIKey("secret"))
//	hits, _ := client.Search(ctx, "flat-rolled steel", 10)
//	cost, _ := client.TariffCost(ctx, sdk.CostRequest{
//	    CodeOrQuery:    "7208.10.15",
//	    Country:        "Germany",
//	    BaseCost:       25000,
//	    TransportModes: []string{"ocean"},
//	})
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clearlane/htsnav/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation             = domain.ErrValidation
	ErrNotFound               = domain.ErrNotFound
	ErrMissingRate            = domain.ErrMissingRate
	ErrRateLimited            = domain.ErrRateLimited
	ErrUpstreamUnavailable    = domain.ErrUpstreamUnavailable
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client is the htsnav API client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Evidence is one retrieval result.
type Evidence struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Content  string            `json:"content"`
	Meta     map[string]string `json:"meta"`
	Page     int               `json:"page"`
	Checksum string            `json:"checksum"`
	IsTable  bool              `json:"is_table"`
}

// Classification is one HTS schedule candidate.
type Classification struct {
	HTSCode      string   `json:"hts_code"`
	Description  string   `json:"description"`
	SpecLevels   []string `json:"spec_levels"`
	GeneralRate  string   `json:"general_rate_of_duty"`
	SpecificRate string   `json:"specific_rate_of_duty"`
	Column2Rate  string   `json:"column2_rate_of_duty"`
	Text         string   `json:"text,omitempty"`
}

// ResolvedDuty is the outcome of tariff resolution.
type ResolvedDuty struct {
	HTSCode     string `json:"hts_code"`
	ProgramCode string `json:"program_code,omitempty"`
	Rate        string `json:"rate"`
}

// CostRequest is the input to TariffCost.
type CostRequest struct {
	CodeOrQuery    string   `json:"code_or_query"`
	Country        string   `json:"country"`
	BaseCost       float64  `json:"base_cost"`
	TransportModes []string `json:"transport_modes,omitempty"`
	EntryDate      string   `json:"entry_date,omitempty"` // YYYY-MM-DD, empty = today
}

// CostBreakdown is the landed-cost computation result.
type CostBreakdown struct {
	HTSCode     string   `json:"hts_code"`
	Country     string   `json:"country"`
	BaseCost    float64  `json:"base_cost"`
	TariffRate  string   `json:"tariff_rate"`
	RatePercent float64  `json:"tariff_rate_percent"`
	DutyAmount  float64  `json:"duty_amount"`
	AppliedFees []string `json:"applied_fees"`
	TotalCost   float64  `json:"total_cost"`
}

// Passage is one ingestion input block.
type Passage struct {
	Text         string            `json:"text"`
	Page         int               `json:"page,omitempty"`
	Category     string            `json:"category,omitempty"`
	IsTable      bool              `json:"is_table,omitempty"`
	SectionTitle string            `json:"section_title,omitempty"`
	DocSource    string            `json:"doc_source,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Chunks   int `json:"chunks"`
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Search runs a hybrid retrieval query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Evidence, error) {
	body := map[string]any{"query": query, "limit": limit}
	var resp struct {
		Items []Evidence `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/search", body, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Classifications returns schedule candidates for a code prefix or free-text query.
func (c *Client) Classifications(ctx context.Context, query string, limit int) ([]Classification, error) {
	v := url.Values{"q": {query}}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []Classification `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/classifications?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ResolveTariff determines the applicable duty for a classification and country.
func (c *Client) ResolveTariff(ctx context.Context, codeOrQuery, country, entryDate string) (ResolvedDuty, error) {
	body := map[string]any{
		"code_or_query": codeOrQuery,
		"country":       country,
		"entry_date":    entryDate,
	}
	var resp ResolvedDuty
	if err := c.do(ctx, http.MethodPost, "/v1/tariff/resolve", body, &resp); err != nil {
		return ResolvedDuty{}, err
	}
	return resp, nil
}

// TariffCost computes the landed cost for an import.
func (c *Client) TariffCost(ctx context.Context, req CostRequest) (CostBreakdown, error) {
	var resp CostBreakdown
	if err := c.do(ctx, http.MethodPost, "/v1/tariff/cost", req, &resp); err != nil {
		return CostBreakdown{}, err
	}
	return resp, nil
}

// Ingest submits passages for chunking, embedding, and indexing.
func (c *Client) Ingest(ctx context.Context, passages []Passage) (IngestResult, error) {
	body := map[string]any{"passages": passages}
	var resp IngestResult
	if err := c.do(ctx, http.MethodPost, "/v1/ingest", body, &resp); err != nil {
		return IngestResult{}, err
	}
	return resp, nil
}

// Health checks the health of all system components. An unhealthy service
// responds 503 but still carries a report, which is returned without error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("htsnav: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("htsnav: GET /healthz: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("htsnav: decode response: %w", err)
	}
	return status, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("htsnav: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
}

// Unwrap maps well-known response codes back to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "validation_failed", "bad_request":
		return ErrValidation
	case "not_found":
		return ErrNotFound
	case "missing_rate":
		return ErrMissingRate
	case "rate_limited":
		return ErrRateLimited
	case "upstream_unavailable":
		return ErrUpstreamUnavailable
	case "embedding_provider_error":
		return ErrEmbeddingProviderError
	default:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("htsnav: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("htsnav: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("htsnav: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("htsnav: decode response: %w", err)
		}
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var errBody struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
		apiErr.Code = errBody.Code
		apiErr.Message = errBody.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
