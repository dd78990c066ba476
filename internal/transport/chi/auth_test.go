package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveAuth(keys []string, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	handler := BearerAuthMiddleware(keys)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, path, http.NoBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestBearerAuthMiddleware(t *testing.T) {
	keys := []string{"key1", " key2 "}

	tests := []struct {
		name    string
		keys    []string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"no keys configured", nil, "POST", "/search", nil, http.StatusOK},
		{"only blank keys", []string{"", "  "}, "POST", "/search", nil, http.StatusOK},
		{"missing header", keys, "POST", "/search", nil, http.StatusUnauthorized},
		{"basic scheme", keys, "POST", "/product-ids", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, http.StatusUnauthorized},
		{"scheme without token", keys, "POST", "/product-ids", map[string]string{"Authorization": "Bearer"}, http.StatusUnauthorized},
		{"wrong key", keys, "POST", "/variant-ids", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"first key", keys, "POST", "/variant-ids", map[string]string{"Authorization": "Bearer key1"}, http.StatusOK},
		{"trimmed second key", keys, "POST", "/ask", map[string]string{"Authorization": "Bearer key2"}, http.StatusOK},
		{"lowercase scheme", keys, "POST", "/ask", map[string]string{"Authorization": "bearer key1"}, http.StatusOK},
		{"api key header", keys, "GET", "/usage", map[string]string{apiKeyHeader: "key2"}, http.StatusOK},
		{"wrong api key header", keys, "GET", "/usage", map[string]string{apiKeyHeader: "key3"}, http.StatusUnauthorized},
		{"health is public", keys, "GET", "/health", nil, http.StatusOK},
		{"ready is public", keys, "GET", "/ready", nil, http.StatusOK},
		{"metrics is public", keys, "GET", "/metrics", nil, http.StatusOK},
		{"banner is public", keys, "GET", "/", nil, http.StatusOK},
		{"preflight", keys, "OPTIONS", "/search", nil, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuth(tc.keys, tc.method, tc.path, tc.headers)
			if rr.Code != tc.want {
				t.Errorf("got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestBearerAuthMiddleware_RejectionBody(t *testing.T) {
	rr := serveAuth([]string{"secret"}, "POST", "/search", nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge")
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != CodeUnauthorized {
		t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
	}
}

func TestMatchKey(t *testing.T) {
	keys := [][]byte{[]byte("alpha"), []byte("beta")}
	if !matchKey(keys, []byte("beta")) {
		t.Error("expected beta to match")
	}
	if matchKey(keys, []byte("gamma")) || matchKey(keys, nil) {
		t.Error("unexpected match")
	}
}
