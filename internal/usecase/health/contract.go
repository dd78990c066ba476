package health

import "context"

// Index reports search index readiness.
type Index interface {
	Ready() bool
	Len() int
}

// StorePinger checks budget store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
