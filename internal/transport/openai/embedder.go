package openai

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

// Embedder defaults.
const (
	DefaultModel       = "text-embedding-3-large"
	DefaultDimension   = 1536
	DefaultBatchSize   = 100
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 1
	defaultProvider    = "openai"
)

// knownDimensions lists output sizes of common embedding models.
var knownDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	dimensions  int // sent to the API when > 0
	dimension   int // reported by Dimension
	user        string
	provider    string
	batchSize   int
	concurrency int
	backoff     Backoff
	logger      *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dimensions  int
	User        string
	Provider    string // metrics label
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
	Backoff     Backoff
	Logger      *zap.Logger
}

var (
	_ domain.Provider      = (*Embedder)(nil)
	_ domain.HealthChecker = (*Embedder)(nil)
)

// NewEmbedder creates an OpenAI-compatible embedding provider.
// A missing API key yields domain.ErrProviderUnavailable.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key is required for the remote provider", domain.ErrProviderUnavailable)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	provider := cfg.Provider
	if provider == "" {
		provider = defaultProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:      openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL, timeout)),
		model:       openai.EmbeddingModel(model),
		dimensions:  cfg.Dimensions,
		dimension:   resolveDimension(model, cfg.Dimensions),
		user:        cfg.User,
		provider:    provider,
		batchSize:   batchSize,
		concurrency: concurrency,
		backoff:     cfg.Backoff.withDefaults(),
		logger:      logger,
	}, nil
}

func resolveDimension(model string, configured int) int {
	if configured > 0 {
		return configured
	}
	if d, ok := knownDimensions[model]; ok {
		return d
	}
	return DefaultDimension
}

// EmbedMany embeds texts in batches, running up to the configured number of batches in parallel.
// Vectors come back in input order. Any failed batch fails the whole call.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string, batchSize int) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: []domain.Vector{}}, nil
	}
	if batchSize <= 0 {
		batchSize = e.batchSize
	}

	out := make([]domain.Vector, len(texts))
	var prompt, total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, b := range domain.SplitBatches(len(texts), batchSize) {
		g.Go(func() error {
			res, err := e.embedBatch(gctx, texts[b.Start:b.End])
			if err != nil {
				return fmt.Errorf("batch [%d:%d]: %w", b.Start, b.End, err)
			}
			copy(out[b.Start:b.End], res.Embeddings)
			prompt.Add(int64(res.PromptTokens))
			total.Add(int64(res.TotalTokens))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed many: %w", err)
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: int(prompt.Load()),
		TotalTokens:  int(total.Load()),
	}, nil
}

// EmbedOne embeds a single query text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed one: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// embedBatch sends one request with retries and returns exactly len(texts) vectors.
func (e *Embedder) embedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	var result domain.BatchEmbeddingResult
	err := withRetry(ctx, e.backoff, func() error {
		res, err := e.call(ctx, req, len(texts))
		if err != nil {
			return err
		}
		result = res
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		metrics.EmbeddingRetriesTotal.WithLabelValues(e.provider, string(e.model)).Inc()
		e.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("texts", len(texts)),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingFailed)
	}
	return result, nil
}

// call performs a single API request with transport-level metrics.
func (e *Embedder) call(ctx context.Context, req openai.EmbeddingRequest, n int) (domain.BatchEmbeddingResult, error) {
	model := string(e.model)
	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(duration.Seconds())

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, err //nolint:wrapcheck // classified by withRetry
	}

	vecs, err := orderByIndex(resp.Data, n)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   vecs,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// orderByIndex places each returned vector at its declared input position.
func orderByIndex(data []openai.Embedding, n int) ([]domain.Vector, error) {
	if len(data) != n {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", errCountMismatch, len(data), n)
	}
	out := make([]domain.Vector, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n || out[d.Index] != nil {
			return nil, fmt.Errorf("%w: invalid or duplicate index %d", errCountMismatch, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", errCountMismatch, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Dimension returns the configured or known vector size of the model.
func (e *Embedder) Dimension() int { return e.dimension }

// ModelID returns the embedding model name.
func (e *Embedder) ModelID() string { return string(e.model) }

// DefaultBatchSize returns the number of texts sent per request.
func (e *Embedder) DefaultBatchSize() int { return e.batchSize }

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
