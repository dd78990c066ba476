package embedding

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type mockProvider struct {
	result     domain.EmbeddingResult
	err        error
	manyCalls  int
	gotBatch   int
	healthErr  error
	closeCalls int
}

func (m *mockProvider) EmbedOne(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockProvider) EmbedMany(_ context.Context, texts []string, batchSize int) (domain.BatchEmbeddingResult, error) {
	m.manyCalls++
	m.gotBatch = batchSize
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	embeddings := make([]domain.Vector, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

func (m *mockProvider) Dimension() int        { return len(m.result.Embedding) }
func (m *mockProvider) ModelID() string       { return "mock-model" }
func (m *mockProvider) DefaultBatchSize() int { return 16 }

func (m *mockProvider) HealthCheck(context.Context) error { return m.healthErr }

func (m *mockProvider) Close() error {
	m.closeCalls++
	return nil
}

func TestInstrumentedProvider_EmbedOne(t *testing.T) {
	inner := &mockProvider{result: domain.EmbeddingResult{
		Embedding:    domain.Vector{0.1, 0.2, 0.3},
		PromptTokens: 100,
		TotalTokens:  100,
	}}
	p := NewInstrumentedProvider(inner, "test", nil, zap.NewNop())

	result, err := p.EmbedOne(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
	if result.TotalTokens != 100 {
		t.Fatalf("expected 100 total tokens, got %d", result.TotalTokens)
	}
}

func TestInstrumentedProvider_EmbedOneError(t *testing.T) {
	inner := &mockProvider{err: domain.ErrEmbeddingFailed}
	p := NewInstrumentedProvider(inner, "test-err", nil, zap.NewNop())

	if _, err := p.EmbedOne(context.Background(), "hello"); !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestInstrumentedProvider_BudgetRejection(t *testing.T) {
	budget := NewBudgetTracker("test-budget", 100, 0, BudgetActionReject, zap.NewNop())
	budget.Record(100)

	inner := &mockProvider{result: domain.EmbeddingResult{Embedding: domain.Vector{0.1}}}
	p := NewInstrumentedProvider(inner, "test-budget", budget, zap.NewNop())

	if _, err := p.EmbedOne(context.Background(), "hello"); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if _, err := p.EmbedMany(context.Background(), []string{"a"}, 0); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded for batch, got %v", err)
	}
	if inner.manyCalls != 0 {
		t.Errorf("inner provider must not be called over budget")
	}
}

func TestInstrumentedProvider_RecordsBudgetAndMetrics(t *testing.T) {
	budget := NewBudgetTracker("test-record", 1000000, 10000000, BudgetActionReject, zap.NewNop())

	inner := &mockProvider{result: domain.EmbeddingResult{
		Embedding:    domain.Vector{0.1, 0.2, 0.3},
		PromptTokens: 500,
		TotalTokens:  500,
	}}
	p := NewInstrumentedProvider(inner, "test-record", budget, zap.NewNop())

	if _, err := p.EmbedOne(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := budget.RemainingDaily(); got != 1000000-500 {
		t.Errorf("expected daily remaining %d, got %d", 1000000-500, got)
	}

	gauge := testutil.ToFloat64(metrics.EmbeddingBudgetTokensRemaining.WithLabelValues("test-record", "monthly"))
	if gauge != float64(10000000-500) {
		t.Errorf("expected monthly gauge %d, got %f", 10000000-500, gauge)
	}
}

func TestInstrumentedProvider_EmbedMany(t *testing.T) {
	budget := NewBudgetTracker("test-batch", 0, 0, BudgetActionWarn, zap.NewNop())
	inner := &mockProvider{result: domain.EmbeddingResult{
		Embedding:   domain.Vector{0.5, 0.5},
		TotalTokens: 10,
	}}
	p := NewInstrumentedProvider(inner, "test-batch", budget, zap.NewNop())

	res, err := p.EmbedMany(context.Background(), []string{"a", "b", "c"}, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(res.Embeddings))
	}
	if inner.gotBatch != 7 {
		t.Errorf("expected batch size to pass through, got %d", inner.gotBatch)
	}
	if budget.DailyUsed() != 30 {
		t.Errorf("expected 30 tokens recorded, got %d", budget.DailyUsed())
	}
}

func TestInstrumentedProvider_EmbedManyEmpty(t *testing.T) {
	inner := &mockProvider{}
	p := NewInstrumentedProvider(inner, "test", nil, zap.NewNop())

	res, err := p.EmbedMany(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 || inner.manyCalls != 0 {
		t.Errorf("expected no inner call for empty input")
	}
}

func TestInstrumentedProvider_EmbedManyError(t *testing.T) {
	inner := &mockProvider{err: domain.ErrEmbeddingFailed}
	p := NewInstrumentedProvider(inner, "test", nil, zap.NewNop())

	if _, err := p.EmbedMany(context.Background(), []string{"a"}, 0); !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestInstrumentedProvider_Delegates(t *testing.T) {
	inner := &mockProvider{result: domain.EmbeddingResult{Embedding: domain.Vector{1, 2}}, healthErr: errors.New("down")}
	p := NewInstrumentedProvider(inner, "openai", nil, nil)

	if p.Dimension() != 2 || p.ModelID() != "mock-model" || p.DefaultBatchSize() != 16 || p.Name() != "openai" {
		t.Errorf("unexpected delegation")
	}
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check error to pass through")
	}
	if err := p.Close(); err != nil || inner.closeCalls != 1 {
		t.Errorf("expected Close to reach inner provider")
	}
}
