package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedProvider wraps a Provider with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded by the providers themselves.
type InstrumentedProvider struct {
	inner    domain.Provider
	provider string
	budget   BudgetChecker
	logger   *zap.Logger
}

var (
	_ domain.Provider      = (*InstrumentedProvider)(nil)
	_ domain.HealthChecker = (*InstrumentedProvider)(nil)
)

// NewInstrumentedProvider wraps a provider. budget may be nil.
func NewInstrumentedProvider(
	inner domain.Provider, provider string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedProvider{
		inner:    inner,
		provider: provider,
		budget:   budget,
		logger:   logger,
	}
}

// EmbedOne checks the budget, delegates, and records usage.
func (p *InstrumentedProvider) EmbedOne(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.EmbedOne(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("query embedding failed",
			zap.String("provider", p.provider),
			zap.String("model", p.inner.ModelID()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.record(result.TotalTokens)
	p.logger.Debug("query embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.inner.ModelID()),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// EmbedMany checks the budget, delegates the whole batch, and records usage.
func (p *InstrumentedProvider) EmbedMany(
	ctx context.Context, texts []string, batchSize int,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: []domain.Vector{}}, nil
	}
	if err := p.checkBudget(ctx, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.EmbedMany(ctx, texts, batchSize)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("batch embedding failed",
			zap.String("provider", p.provider),
			zap.String("model", p.inner.ModelID()),
			zap.Int("texts", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}

	p.record(result.TotalTokens)
	p.logger.Info("batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.inner.ModelID()),
		zap.Int("texts", len(texts)),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

func (p *InstrumentedProvider) checkBudget(ctx context.Context, texts int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("budget exceeded",
			zap.String("provider", p.provider),
			zap.String("model", p.inner.ModelID()),
			zap.Int("texts", texts),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (p *InstrumentedProvider) record(totalTokens int) {
	if p.budget == nil || totalTokens <= 0 {
		return
	}
	p.budget.Record(int64(totalTokens))
	remaining := metrics.EmbeddingBudgetTokensRemaining
	remaining.WithLabelValues(p.provider, "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
}

// Dimension delegates to the inner provider.
func (p *InstrumentedProvider) Dimension() int { return p.inner.Dimension() }

// ModelID delegates to the inner provider.
func (p *InstrumentedProvider) ModelID() string { return p.inner.ModelID() }

// DefaultBatchSize delegates to the inner provider.
func (p *InstrumentedProvider) DefaultBatchSize() int { return p.inner.DefaultBatchSize() }

// Name returns the provider label used in logs and metrics.
func (p *InstrumentedProvider) Name() string { return p.provider }

// HealthCheck delegates when the inner provider supports it.
func (p *InstrumentedProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

// Close releases the inner provider's resources when it holds any.
func (p *InstrumentedProvider) Close() error {
	if c, ok := p.inner.(interface{ Close() error }); ok {
		return c.Close() //nolint:wrapcheck // transparent decorator
	}
	return nil
}
