package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/logger"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// errorHandlers map domain sentinels to HTTP responses, first match wins.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrIndexNotReady, http.StatusServiceUnavailable, CodeIndexNotReady),
	sentinelHandler(domain.ErrInvalidQueryParameters, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded),
	sentinelHandler(domain.ErrRecommendationsDisabled, http.StatusNotImplemented, CodeRecommendationsDisabled),
	sentinelHandler(domain.ErrRecommendationFailed, http.StatusBadGateway, CodeRecommendationFailed),
	sentinelHandler(domain.ErrEmbeddingFailed, http.StatusBadGateway, CodeEmbeddingProviderError),
	sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, CodeEmbeddingProviderError),
}

// sentinelMessages are the client-facing messages; wrapped details stay in the logs.
var sentinelMessages = map[error]string{
	domain.ErrIndexNotReady:           "search index is still being built",
	domain.ErrEmbeddingQuotaExceeded:  "embedding token budget exhausted",
	domain.ErrRecommendationsDisabled: "recommendations are not configured",
	domain.ErrRecommendationFailed:    "recommendation model request failed",
	domain.ErrEmbeddingFailed:         "embedding provider request failed",
	domain.ErrProviderUnavailable:     "embedding provider unavailable",
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg, ok := sentinelMessages[sentinel]
		if !ok {
			// Validation errors carry user-facing detail only.
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
