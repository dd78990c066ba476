package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/logger"
)

// apiKeyHeader is accepted as an alternative to Authorization: Bearer.
const apiKeyHeader = "X-API-Key"

// publicPaths never require a key: probes, metrics and the service banner.
var publicPaths = map[string]struct{}{
	"/":        {},
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// BearerAuthMiddleware checks the caller's API key against apiKeys.
// Blank keys are ignored; with none left the middleware is a pass-through.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, reason := extractToken(r)
			if reason == "" && !matchKey(keys, token) {
				reason = "invalid api key"
			}
			if reason != "" {
				logger.FromContext(r.Context(), nil).Debug("auth rejected",
					zap.String("reason", reason), zap.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", `Bearer realm="prodsearch"`)
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken returns the presented key or a non-empty rejection reason.
func extractToken(r *http.Request) ([]byte, string) {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return []byte(key), ""
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, "missing authorization header"
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, "authorization header must use Bearer scheme"
	}
	return []byte(strings.TrimSpace(token)), ""
}

// matchKey compares against every key so timing does not reveal which one matched.
func matchKey(keys [][]byte, token []byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, token)
	}
	return found == 1
}
