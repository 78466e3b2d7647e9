// Package chi is the HTTP transport: JSON handlers over the use case services.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
	logpkg "github.com/clearlane/htsnav/internal/logger"
	healthuc "github.com/clearlane/htsnav/internal/usecase/health"
	ingestuc "github.com/clearlane/htsnav/internal/usecase/ingest"
)

// Consumer interfaces over the use case services (ISP).
type (
	searcher interface {
		Search(ctx context.Context, query string, limit int) ([]domain.Evidence, error)
	}
	classifier interface {
		Candidates(ctx context.Context, query string, limit int) ([]domain.ClassificationRecord, error)
		BestMatch(ctx context.Context, query string) (domain.ClassificationRecord, error)
	}
	dutyResolver interface {
		Resolve(ctx context.Context, c domain.ClassificationRecord, country string) (domain.ResolvedDuty, error)
	}
	costCalculator interface {
		TotalCost(ctx context.Context, tc domain.TariffContext) (domain.CostBreakdown, error)
	}
	ingester interface {
		Ingest(ctx context.Context, passages []domain.Passage) (ingestuc.Result, error)
	}
	healthChecker interface {
		Check(ctx context.Context) healthuc.Report
	}
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error response codes.
const (
	codeBadRequest          = "bad_request"
	codeValidationFailed    = "validation_failed"
	codeNotFound            = "not_found"
	codeMissingRate         = "missing_rate"
	codeRateLimited         = "rate_limited"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeEmbeddingProvider   = "embedding_provider_error"
	codeInternalError       = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	search        searcher
	classify      classifier
	resolver      dutyResolver
	calculator    costCalculator
	ingest        ingester
	health        healthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search searcher,
	classify classifier,
	resolver dutyResolver,
	calculator costCalculator,
	ingest ingester,
	health healthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:     search,
		classify:   classify,
		resolver:   resolver,
		calculator: calculator,
		ingest:     ingest,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrMissingRate, http.StatusUnprocessableEntity, codeMissingRate),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.Health)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/ingest", s.Ingest)
		r.Get("/classifications", s.Classifications)
		r.Post("/tariff/resolve", s.ResolveTariff)
		r.Post("/tariff/cost", s.TariffCost)
	})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Items []domain.Evidence `json:"items"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	items, err := s.search.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Evidence{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Items: items})
}

type classificationItem struct {
	HTSCode      string   `json:"hts_code"`
	Description  string   `json:"description"`
	SpecLevels   []string `json:"spec_levels"`
	GeneralRate  string   `json:"general_rate_of_duty"`
	SpecificRate string   `json:"specific_rate_of_duty"`
	Column2Rate  string   `json:"column2_rate_of_duty"`
	Text         string   `json:"text,omitempty"`
}

type classificationListResponse struct {
	Items []classificationItem `json:"items"`
}

// Classifications handles GET /v1/classifications?q=&limit=.
func (s *Server) Classifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query parameter q is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.classify.Candidates(r.Context(), q, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]classificationItem, len(records))
	for i, rec := range records {
		items[i] = classificationToItem(rec)
	}

	writeJSON(w, http.StatusOK, classificationListResponse{Items: items})
}

type tariffResolveRequest struct {
	CodeOrQuery string `json:"code_or_query"`
	Country     string `json:"country"`
	EntryDate   string `json:"entry_date"`
}

type tariffResolveResponse struct {
	HTSCode     string `json:"hts_code"`
	ProgramCode string `json:"program_code,omitempty"`
	Rate        string `json:"rate"`
}

// ResolveTariff handles POST /v1/tariff/resolve.
func (s *Server) ResolveTariff(w http.ResponseWriter, r *http.Request) {
	var req tariffResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if _, err := parseEntryDate(req.EntryDate); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	record, err := s.classify.BestMatch(r.Context(), req.CodeOrQuery)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	duty, err := s.resolver.Resolve(r.Context(), record, req.Country)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tariffResolveResponse{
		HTSCode:     record.Code,
		ProgramCode: duty.ProgramCode,
		Rate:        duty.Rate,
	})
}

type tariffCostRequest struct {
	CodeOrQuery    string   `json:"code_or_query"`
	Country        string   `json:"country"`
	BaseCost       float64  `json:"base_cost"`
	TransportModes []string `json:"transport_modes"`
	EntryDate      string   `json:"entry_date"`
}

type tariffCostResponse struct {
	HTSCode string `json:"hts_code"`
	domain.CostBreakdown
}

// TariffCost handles POST /v1/tariff/cost.
func (s *Server) TariffCost(w http.ResponseWriter, r *http.Request) {
	var req tariffCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	entryDate, err := parseEntryDate(req.EntryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	record, err := s.classify.BestMatch(r.Context(), req.CodeOrQuery)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	breakdown, err := s.calculator.TotalCost(r.Context(), domain.TariffContext{
		Classification: record,
		Country:        req.Country,
		BaseCost:       req.BaseCost,
		TransportModes: req.TransportModes,
		EntryDate:      entryDate,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tariffCostResponse{HTSCode: record.Code, CostBreakdown: breakdown})
}

type ingestRequest struct {
	Passages []domain.Passage `json:"passages"`
}

// Ingest handles POST /v1/ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.ingest.Ingest(r.Context(), req.Passages)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func classificationToItem(rec domain.ClassificationRecord) classificationItem {
	levels := rec.SpecLevels
	if levels == nil {
		levels = []string{}
	}
	return classificationItem{
		HTSCode:      rec.Code,
		Description:  rec.Description,
		SpecLevels:   levels,
		GeneralRate:  rec.GeneralRate,
		SpecificRate: rec.SpecificRate,
		Column2Rate:  rec.Column2Rate,
		Text:         rec.FreeText,
	}
}

// parseEntryDate accepts an empty date (defaults to today) or YYYY-MM-DD.
func parseEntryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("entry_date must be formatted as YYYY-MM-DD")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrMissingRate,
		domain.ErrRateLimited,
		domain.ErrUpstreamUnavailable,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
