package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an auxiliary component is failing; search still works.
	Degraded Status = "degraded"
	// Unhealthy indicates search cannot be served.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckPending indicates a component still starting up.
	CheckPending CheckResult = "pending"
)

// DefaultCheckTimeout bounds each external probe.
const DefaultCheckTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	Documents int
}

// Service coordinates health checks.
type Service struct {
	index     Index
	store     StorePinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. store and embedding can be nil.
func New(index Index, store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{index: index, store: store, embedding: embedding, timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Ready reports whether the index has been built.
func (s *Service) Ready() bool { return s.index.Ready() }

// Check runs health checks against all components.
// An unbuilt index makes the report unhealthy; failing store or provider only degrade it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if s.index.Ready() {
		checks["index"] = CheckOK
	} else {
		checks["index"] = CheckPending
		status = Unhealthy
	}

	if s.store != nil {
		checks["budget_store"] = s.probe(ctx, s.store.Ping)
	}
	if s.embedding != nil {
		checks["embedding"] = s.probe(ctx, s.embedding.HealthCheck)
	}

	if status == Healthy {
		for _, v := range checks {
			if v == CheckError {
				status = Degraded
				break
			}
		}
	}

	return Report{Status: status, Checks: checks, Documents: s.index.Len()}
}

func (s *Service) probe(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
