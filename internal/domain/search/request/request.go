package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/prodsearch/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length in bytes.
	MaxQueryLength = 4096
	DefaultTopK    = 3
)

// Request is a validated search query.
type Request struct {
	query       string
	topK        int
	deduplicate bool
}

// New validates search parameters. topK must be at least 1.
func New(query string, topK int, deduplicate bool) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQueryParameters)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d bytes)", domain.ErrInvalidQueryParameters, MaxQueryLength)
	}
	if topK < 1 {
		return Request{}, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidQueryParameters, topK)
	}
	return Request{query: query, topK: topK, deduplicate: deduplicate}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// TopK returns the maximum number of hits.
func (r *Request) TopK() int { return r.topK }

// Deduplicate reports whether only the best variant per product is kept.
func (r *Request) Deduplicate() bool { return r.deduplicate }
