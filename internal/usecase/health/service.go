package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional dependency is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks. The vector store is the one dependency
// every request path needs, so its failure makes the whole service unhealthy;
// the rest only degrade it.
type Service struct {
	vectorStore Pinger
	relational  Pinger
	embedding   UpstreamChecker
	reranker    UpstreamChecker
}

// New creates a Service. relational, embedding, and reranker can be nil.
func New(vectorStore, relational Pinger, embedding, reranker UpstreamChecker) *Service {
	return &Service{
		vectorStore: vectorStore,
		relational:  relational,
		embedding:   embedding,
		reranker:    reranker,
	}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["vector_store"] = pingResult(ctx, s.vectorStore)
	if s.relational != nil {
		checks["database"] = pingResult(ctx, s.relational)
	}
	if s.embedding != nil {
		checks["embedding"] = upstreamResult(ctx, s.embedding)
	}
	if s.reranker != nil {
		checks["reranker"] = upstreamResult(ctx, s.reranker)
	}

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == "vector_store" {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func pingResult(ctx context.Context, p Pinger) CheckResult {
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}

func upstreamResult(ctx context.Context, c UpstreamChecker) CheckResult {
	if err := c.HealthCheck(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
