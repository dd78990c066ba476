package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/request"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
	"github.com/kailas-cloud/prodsearch/internal/logger"
	healthuc "github.com/kailas-cloud/prodsearch/internal/usecase/health"
	recommenduc "github.com/kailas-cloud/prodsearch/internal/usecase/recommend"
	usageuc "github.com/kailas-cloud/prodsearch/internal/usecase/usage"
	"github.com/kailas-cloud/prodsearch/internal/version"
)

const maxBodyBytes = 1 << 20

// Engine is the search surface the handlers need.
type Engine interface {
	Search(ctx context.Context, req request.Request) ([]result.Hit, error)
	ProductIDs(ctx context.Context, req request.Request) ([]int64, error)
	VariantIDs(ctx context.Context, query string, topK int) ([]int64, error)
	Ready() bool
	Len() int
	ModelID() string
}

// Options holds request limits and service info.
type Options struct {
	Provider     string
	DefaultTopK  int
	MaxTopK      int
	QueryTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	engine    Engine
	recommend *recommenduc.Service
	usage     *usageuc.Service
	health    *healthuc.Service
	opts      Options
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	engine Engine,
	recommend *recommenduc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	opts Options,
	log *zap.Logger,
) *Server {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = request.DefaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		engine:    engine,
		recommend: recommend,
		usage:     usage,
		health:    health,
		opts:      opts,
		logger:    log,
	}
}

// Info handles GET /.
func (s *Server) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Service:   "prodsearch",
		Status:    "ok",
		Version:   version.Get().Version,
		Provider:  s.opts.Provider,
		Model:     s.engine.ModelID(),
		Ready:     s.engine.Ready(),
		Documents: s.engine.Len(),
		Ask:       s.recommend != nil && s.recommend.Enabled(),
		Endpoints: map[string]string{
			"search":      "POST /search",
			"ask":         "POST /ask",
			"product_ids": "POST|GET /product-ids",
			"variant_ids": "GET /variant-ids",
			"usage":       "GET /usage",
			"health":      "GET /health",
			"ready":       "GET /ready",
			"metrics":     "GET /metrics",
		},
	})
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, ok := s.searchRequest(w, body.Query, body.TopK, body.Deduplicate)
	if !ok {
		return
	}

	ctx, cancel, usage := s.queryContext(r, req.Query(), req.TopK())
	defer cancel()

	hits, err := s.engine.Search(ctx, req)
	if err != nil {
		s.handleDomainError(w, r.WithContext(ctx), err)
		return
	}

	results := make([]ProductResult, len(hits))
	for i := range hits {
		results[i] = productResult(&hits[i])
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query(), Results: results, Count: len(results)})
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	if s.recommend == nil || !s.recommend.Enabled() {
		s.handleDomainError(w, r, domain.ErrRecommendationsDisabled)
		return
	}
	var body AskRequest
	if !s.decode(w, r, &body) {
		return
	}
	topK, ok := s.topK(w, body.TopK)
	if !ok {
		return
	}

	ctx, cancel, usage := s.queryContext(r, body.Query, topK)
	defer cancel()

	ans, err := s.recommend.Ask(ctx, body.Query, topK)
	if err != nil {
		s.handleDomainError(w, r.WithContext(ctx), err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, AskResponse{
		Query:              ans.Query,
		Response:           ans.Response,
		ProductsConsidered: ans.ProductsConsidered(),
	})
}

// ProductIDs handles POST /product-ids.
func (s *Server) ProductIDs(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.productIDs(w, r, body.Query, body.TopK, body.Deduplicate)
}

// ProductIDsQuery handles GET /product-ids?q=&top_k=&deduplicate=.
func (s *Server) ProductIDsQuery(w http.ResponseWriter, r *http.Request) {
	var (
		q           string
		topK        *int
		deduplicate *bool
	)
	params := r.URL.Query()
	if !bindQuery(w, params, "q", true, &q) ||
		!bindQuery(w, params, "top_k", false, &topK) ||
		!bindQuery(w, params, "deduplicate", false, &deduplicate) {
		return
	}
	s.productIDs(w, r, q, topK, deduplicate)
}

func (s *Server) productIDs(w http.ResponseWriter, r *http.Request, query string, topK *int, dedup *bool) {
	req, ok := s.searchRequest(w, query, topK, dedup)
	if !ok {
		return
	}

	ctx, cancel, usage := s.queryContext(r, req.Query(), req.TopK())
	defer cancel()

	ids, err := s.engine.ProductIDs(ctx, req)
	if err != nil {
		s.handleDomainError(w, r.WithContext(ctx), err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, ProductIDsResponse{Query: req.Query(), ProductIDs: nonNil(ids), Count: len(ids)})
}

// VariantIDs handles GET /variant-ids?q=&top_k=.
func (s *Server) VariantIDs(w http.ResponseWriter, r *http.Request) {
	var (
		q    string
		topK *int
	)
	params := r.URL.Query()
	if !bindQuery(w, params, "q", true, &q) || !bindQuery(w, params, "top_k", false, &topK) {
		return
	}
	k, ok := s.topK(w, topK)
	if !ok {
		return
	}

	ctx, cancel, usage := s.queryContext(r, q, k)
	defer cancel()

	ids, err := s.engine.VariantIDs(ctx, q, k)
	if err != nil {
		s.handleDomainError(w, r.WithContext(ctx), err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, VariantIDsResponse{Query: q, VariantIDs: nonNil(ids), Count: len(ids)})
}

// Usage handles GET /usage?period=day|month.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	var period string
	if !bindQuery(w, r.URL.Query(), "period", false, &period) {
		return
	}
	p, err := usageuc.ParsePeriod(period)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	rep := s.usage.GetReport(r.Context(), p)
	writeJSON(w, http.StatusOK, UsageResponse{
		Period:      string(rep.Period),
		PeriodStart: rep.Start.UnixMilli(),
		PeriodEnd:   rep.End.UnixMilli(),
		Limit:       rep.Limit,
		Used:        rep.Used,
		Remaining:   rep.Remaining,
		Exhausted:   rep.Exhausted,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{
		Status:    string(report.Status),
		Checks:    checks,
		Documents: report.Documents,
	})
}

// Ready handles GET /ready.
func (s *Server) Ready(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if !s.engine.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ReadyResponse{Ready: s.engine.Ready(), Documents: s.engine.Len()})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

// topK resolves the default and enforces the configured ceiling.
// Values below 1 are left to request validation.
func (s *Server) topK(w http.ResponseWriter, v *int) (int, bool) {
	if v == nil {
		return s.opts.DefaultTopK, true
	}
	if *v > s.opts.MaxTopK {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("top_k must be at most %d", s.opts.MaxTopK))
		return 0, false
	}
	return *v, true
}

func (s *Server) searchRequest(w http.ResponseWriter, query string, topK *int, dedup *bool) (request.Request, bool) {
	k, ok := s.topK(w, topK)
	if !ok {
		return request.Request{}, false
	}
	deduplicate := true
	if dedup != nil {
		deduplicate = *dedup
	}
	req, err := request.New(query, k, deduplicate)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return request.Request{}, false
	}
	return req, true
}

func (s *Server) queryContext(
	r *http.Request, query string, topK int,
) (context.Context, context.CancelFunc, *domain.Usage) {
	ctx := logger.With(r.Context(), s.logger, zap.String("query", query), zap.Int("top_k", topK))
	ctx, usage := domain.NewContextWithUsage(ctx)
	var cancel context.CancelFunc
	if s.opts.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return ctx, cancel, usage
}

// bindQuery binds one form-style query parameter, writing 400 on failure.
func bindQuery(w http.ResponseWriter, params map[string][]string, name string, required bool, dst any) bool {
	if err := runtime.BindQueryParameter("form", true, required, name, params, dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("invalid or missing query parameter %s", name))
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage != nil && usage.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	}
}

func productResult(h *result.Hit) ProductResult {
	v := h.Variant()
	return ProductResult{
		ProductID:   v.ProductID,
		VariantID:   v.VariantID,
		Title:       v.Title,
		Vendor:      v.Vendor,
		ProductType: v.ProductType,
		Price:       v.Price,
		Colors:      nonNil(v.Colors),
		Sizes:       nonNil(v.Sizes),
		Similarity:  h.Score(),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
