package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/domain/catalog"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/request"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/prodsearch/internal/usecase/health"
	recommenduc "github.com/kailas-cloud/prodsearch/internal/usecase/recommend"
	usageuc "github.com/kailas-cloud/prodsearch/internal/usecase/usage"
)

// --- Fakes ---

type fakeEngine struct {
	ready   bool
	hits    []result.Hit
	err     error
	gotReq  request.Request
	gotQ    string
	gotTopK int
}

func (f *fakeEngine) Search(ctx context.Context, req request.Request) ([]result.Hit, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(7)
	n := min(req.TopK(), len(f.hits))
	return f.hits[:n], nil
}

func (f *fakeEngine) ProductIDs(ctx context.Context, req request.Request) ([]int64, error) {
	hits, err := f.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i := range hits {
		ids[i] = hits[i].ProductID()
	}
	return ids, nil
}

func (f *fakeEngine) VariantIDs(ctx context.Context, query string, topK int) ([]int64, error) {
	f.gotQ, f.gotTopK = query, topK
	req, err := request.New(query, topK, false)
	if err != nil {
		return nil, err
	}
	hits, err := f.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i := range hits {
		ids[i] = hits[i].VariantID()
	}
	return ids, nil
}

func (f *fakeEngine) Ready() bool     { return f.ready }
func (f *fakeEngine) Len() int        { return len(f.hits) }
func (f *fakeEngine) ModelID() string { return "test-model" }

// slowEngine blocks each search until the request context ends.
type slowEngine struct {
	*fakeEngine
	hadDeadline bool
}

func (s *slowEngine) Search(ctx context.Context, _ request.Request) ([]result.Hit, error) {
	_, s.hadDeadline = ctx.Deadline()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Second):
		return sampleHits(), nil
	}
}

type fakeChat struct {
	err error
}

func (f *fakeChat) Complete(_ context.Context, _, _ string) (domain.Completion, error) {
	if f.err != nil {
		return domain.Completion{}, f.err
	}
	return domain.Completion{Text: "Take the wool coat.", PromptTokens: 10, CompletionTokens: 5}, nil
}

type fakeBudget struct{}

func (fakeBudget) DailyLimit() int64       { return 1000 }
func (fakeBudget) MonthlyLimit() int64     { return 10000 }
func (fakeBudget) DailyUsed() int64        { return 250 }
func (fakeBudget) MonthlyUsed() int64      { return 900 }
func (fakeBudget) RemainingDaily() int64   { return 750 }
func (fakeBudget) RemainingMonthly() int64 { return 9100 }

func price(v float64) *float64 { return &v }

func sampleHits() []result.Hit {
	return []result.Hit{
		result.New(catalog.Variant{
			ProductID: 1, VariantID: 11, Title: "Wool Coat — Black / M", Vendor: "Acme",
			ProductType: "Coat", Price: price(120), Colors: []string{"Black"}, Sizes: []string{"M"},
		}, 0.91),
		result.New(catalog.Variant{ProductID: 2, VariantID: 21, Title: "Rain Jacket"}, 0.8),
		result.New(catalog.Variant{ProductID: 3, VariantID: 31, Title: "Scarf"}, 0.5),
		result.New(catalog.Variant{ProductID: 4, VariantID: 41, Title: "Hat"}, 0.4),
	}
}

type testEnv struct {
	engine  *fakeEngine
	handler http.Handler
}

func newTestEnv(t *testing.T, chat recommenduc.Completer, keys ...string) *testEnv {
	t.Helper()
	eng := &fakeEngine{ready: true, hits: sampleHits()}
	rec := recommenduc.New(eng, chat, recommenduc.Options{}, nil)
	srv := NewServer(
		eng, rec, usageuc.New(fakeBudget{}), healthuc.New(eng, nil, nil),
		Options{Provider: "openai", DefaultTopK: 3, MaxTopK: 50}, nil,
	)
	return &testEnv{engine: eng, handler: NewRouter(srv, RouterConfig{APIKeys: keys, CORSOrigins: []string{"*"}})}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code ErrorCode) ErrorResponse {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status: got %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Code != code {
		t.Errorf("code: got %q, want %q", resp.Code, code)
	}
	return resp
}

// --- Tests ---

func TestInfo(t *testing.T) {
	env := newTestEnv(t, &fakeChat{})
	rr := env.do(t, "GET", "/", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	info := decode[InfoResponse](t, rr)
	if info.Service != "prodsearch" || info.Provider != "openai" || info.Model != "test-model" {
		t.Errorf("unexpected info: %+v", info)
	}
	if !info.Ready || info.Documents != 4 || !info.Ask {
		t.Errorf("unexpected state: %+v", info)
	}
	if info.Endpoints["search"] != "POST /search" {
		t.Errorf("missing endpoints: %v", info.Endpoints)
	}
}

func TestSearch_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, "POST", "/search", `{"query":"warm coat"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Embedding-Tokens") != "7" {
		t.Errorf("expected X-Embedding-Tokens 7, got %q", rr.Header().Get("X-Embedding-Tokens"))
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	resp := decode[SearchResponse](t, rr)
	if resp.Query != "warm coat" || resp.Count != 3 || len(resp.Results) != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	first := resp.Results[0]
	if first.ProductID != 1 || first.VariantID != 11 || first.Similarity != 0.91 {
		t.Errorf("unexpected first result: %+v", first)
	}
	if first.Price == nil || *first.Price != 120 || first.Colors[0] != "Black" || first.Sizes[0] != "M" {
		t.Errorf("unexpected first result attributes: %+v", first)
	}
	if resp.Results[1].Colors == nil || resp.Results[1].Price != nil {
		t.Errorf("expected empty colors list and null price: %+v", resp.Results[1])
	}
	if !env.engine.gotReq.Deduplicate() || env.engine.gotReq.TopK() != 3 {
		t.Errorf("expected default dedup=true top_k=3, got dedup=%v top_k=%d",
			env.engine.gotReq.Deduplicate(), env.engine.gotReq.TopK())
	}
}

func TestSearch_ExplicitParams(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, "POST", "/search", `{"query":"coat","top_k":2,"deduplicate":false}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if env.engine.gotReq.Deduplicate() || env.engine.gotReq.TopK() != 2 {
		t.Errorf("params not forwarded: dedup=%v top_k=%d", env.engine.gotReq.Deduplicate(), env.engine.gotReq.TopK())
	}
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"malformed json", `{"query":`, CodeBadRequest},
		{"top_k above max", `{"query":"coat","top_k":51}`, CodeValidationFailed},
		{"top_k zero", `{"query":"coat","top_k":0}`, CodeValidationFailed},
		{"blank query", `{"query":"   "}`, CodeValidationFailed},
		{"missing query", `{}`, CodeValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			expectError(t, env.do(t, "POST", "/search", tc.body), http.StatusBadRequest, tc.code)
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"not ready", domain.ErrIndexNotReady, http.StatusServiceUnavailable, CodeIndexNotReady},
		{
			"embedding failed",
			fmt.Errorf("embed query: %w: upstream said sk-secret", domain.ErrEmbeddingFailed),
			http.StatusBadGateway, CodeEmbeddingProviderError,
		},
		{"quota", fmt.Errorf("budget: %w", domain.ErrEmbeddingQuotaExceeded), http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.engine.err = tc.err
			resp := expectError(t, env.do(t, "POST", "/search", `{"query":"coat"}`), tc.status, tc.code)
			if strings.Contains(resp.Message, "sk-secret") || strings.Contains(resp.Message, "boom") {
				t.Errorf("message leaks internals: %q", resp.Message)
			}
		})
	}
}

func TestAsk_Success(t *testing.T) {
	env := newTestEnv(t, &fakeChat{})
	rr := env.do(t, "POST", "/ask", `{"query":"warm coat","top_k":2}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[AskResponse](t, rr)
	if resp.Response != "Take the wool coat." || resp.ProductsConsidered != 2 || resp.Query != "warm coat" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !env.engine.gotReq.Deduplicate() {
		t.Error("ask must search with deduplication")
	}
}

func TestAsk_Disabled(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, "POST", "/ask", `{"query":"coat"}`), http.StatusNotImplemented, CodeRecommendationsDisabled)
}

func TestAsk_ChatFailure(t *testing.T) {
	env := newTestEnv(t, &fakeChat{err: fmt.Errorf("chat: %w", domain.ErrRecommendationFailed)})
	expectError(t, env.do(t, "POST", "/ask", `{"query":"coat"}`), http.StatusBadGateway, CodeRecommendationFailed)
}

func TestAsk_NotReady(t *testing.T) {
	env := newTestEnv(t, &fakeChat{})
	env.engine.err = domain.ErrIndexNotReady
	expectError(t, env.do(t, "POST", "/ask", `{"query":"coat"}`), http.StatusServiceUnavailable, CodeIndexNotReady)
}

func TestQueryTimeout_AppliesToSearchAndAsk(t *testing.T) {
	for _, path := range []string{"/search", "/ask"} {
		t.Run(path, func(t *testing.T) {
			eng := &slowEngine{fakeEngine: &fakeEngine{ready: true}}
			rec := recommenduc.New(eng, &fakeChat{}, recommenduc.Options{}, nil)
			srv := NewServer(eng, rec, usageuc.New(nil), healthuc.New(eng, nil, nil),
				Options{DefaultTopK: 3, MaxTopK: 50, QueryTimeout: 50 * time.Millisecond}, nil)
			h := NewRouter(srv, RouterConfig{})

			start := time.Now()
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest("POST", path, strings.NewReader(`{"query":"coat"}`)))
			elapsed := time.Since(start)

			if !eng.hadDeadline {
				t.Error("expected the search context to carry the query timeout")
			}
			if rr.Code == http.StatusOK {
				t.Errorf("expected a failure after the timeout, got 200")
			}
			if elapsed > time.Second {
				t.Errorf("request took %v, timeout not applied", elapsed)
			}
		})
	}
}

func TestProductIDs_Post(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, "POST", "/product-ids", `{"query":"coat","top_k":2}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	resp := decode[ProductIDsResponse](t, rr)
	if resp.Count != 2 || resp.ProductIDs[0] != 1 || resp.ProductIDs[1] != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestProductIDs_Get(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, "GET", "/product-ids?q=coat&top_k=4&deduplicate=false", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[ProductIDsResponse](t, rr)
	if resp.Query != "coat" || resp.Count != 4 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if env.engine.gotReq.Deduplicate() {
		t.Error("deduplicate=false not forwarded")
	}
}

func TestProductIDs_GetValidation(t *testing.T) {
	for _, path := range []string{
		"/product-ids",
		"/product-ids?q=coat&top_k=abc",
		"/product-ids?q=coat&deduplicate=maybe",
		"/product-ids?q=coat&top_k=100",
	} {
		env := newTestEnv(t, nil)
		expectError(t, env.do(t, "GET", path, ""), http.StatusBadRequest, CodeValidationFailed)
	}
}

func TestVariantIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, "GET", "/variant-ids?q=coat&top_k=2", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	resp := decode[VariantIDsResponse](t, rr)
	if resp.Count != 2 || resp.VariantIDs[0] != 11 || resp.VariantIDs[1] != 21 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if env.engine.gotQ != "coat" || env.engine.gotTopK != 2 {
		t.Errorf("params not forwarded: q=%q top_k=%d", env.engine.gotQ, env.engine.gotTopK)
	}
	if rr.Header().Get("X-Embedding-Tokens") != "7" {
		t.Errorf("expected X-Embedding-Tokens header")
	}
}

func TestVariantIDs_DefaultTopK(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do(t, "GET", "/variant-ids?q=coat", ""); rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if env.engine.gotTopK != 3 {
		t.Errorf("expected default top_k 3, got %d", env.engine.gotTopK)
	}
}

func TestReadyAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.ready = false

	if rr := env.do(t, "GET", "/ready", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before build: got %d", rr.Code)
	}
	rr := env.do(t, "GET", "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("health before build: got %d", rr.Code)
	}
	if h := decode[HealthResponse](t, rr); h.Checks["index"] != "pending" {
		t.Errorf("unexpected checks: %v", h.Checks)
	}

	env.engine.ready = true
	if rr := env.do(t, "GET", "/ready", ""); rr.Code != http.StatusOK {
		t.Errorf("ready after build: got %d", rr.Code)
	}
	rr = env.do(t, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("health after build: got %d", rr.Code)
	}
	if h := decode[HealthResponse](t, rr); h.Status != "ok" || h.Documents != 4 {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestUsage(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, "GET", "/usage?period=month", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	resp := decode[UsageResponse](t, rr)
	if resp.Period != "month" || resp.Limit != 10000 || resp.Used != 900 || resp.Remaining != 9100 {
		t.Errorf("unexpected usage: %+v", resp)
	}

	expectError(t, env.do(t, "GET", "/usage?period=year", ""), http.StatusBadRequest, CodeValidationFailed)
}

func TestRouter_AuthAndExemptions(t *testing.T) {
	env := newTestEnv(t, nil, "secret")

	expectError(t, env.do(t, "POST", "/search", `{"query":"coat"}`), http.StatusUnauthorized, CodeUnauthorized)
	if rr := env.do(t, "GET", "/ready", ""); rr.Code != http.StatusOK {
		t.Errorf("/ready must be exempt, got %d", rr.Code)
	}

	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":"coat"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authorized search: got %d", rr.Code)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, "GET", "/nope", ""), http.StatusNotFound, CodeNotFound)
	expectError(t, env.do(t, "GET", "/search", ""), http.StatusMethodNotAllowed, CodeMethodNotAllowed)
}

func TestRouter_CORS(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":"coat"}`))
	req.Header.Set("Origin", "https://shop.example.com")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected CORS header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRecoverer_ReturnsJSON(t *testing.T) {
	h := jsonRecoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))

	expectError(t, rr, http.StatusInternalServerError, CodeInternalError)
}
