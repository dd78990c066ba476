package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogNotFound signals a missing catalog file.
	ErrCatalogNotFound = errors.New("catalog not found")
	// ErrMalformedRecord signals a catalog line that is not a JSON object.
	ErrMalformedRecord = errors.New("malformed catalog record")
	// ErrProviderUnavailable signals a provider that cannot be constructed (missing credential or model).
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrEmbeddingFailed signals a failed or malformed embedding call.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrIndexNotReady signals a search issued before the index was built.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrInvalidQueryParameters signals an invalid search request.
	ErrInvalidQueryParameters = errors.New("invalid query parameters")
	// ErrVectorDimMismatch signals vectors of different lengths in one index.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingQuotaExceeded signals an exhausted token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRecommendationFailed signals a failed chat completion call.
	ErrRecommendationFailed = errors.New("recommendation failed")
	// ErrRecommendationsDisabled signals that no chat model is configured.
	ErrRecommendationsDisabled = errors.New("recommendations disabled")
)

// MalformedRecordError wraps ErrMalformedRecord with the offending line.
type MalformedRecordError struct {
	Line int // 1-based
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s at line %d: %v", ErrMalformedRecord.Error(), e.Line, e.Err)
}

// Unwrap lets errors.Is match both the sentinel and the decode error.
func (e *MalformedRecordError) Unwrap() []error { return []error{ErrMalformedRecord, e.Err} }

// NewMalformedRecord creates a malformed record error for the given line.
func NewMalformedRecord(line int, err error) error {
	return &MalformedRecordError{Line: line, Err: err}
}
