package domain

import (
	"context"
	"fmt"
)

// Vector is a dense embedding.
type Vector []float32

// Provider is the text vectorization contract shared by the remote and local back-ends.
// EmbedOne must return vectors in the same space and normalization as EmbedMany.
type Provider interface {
	// EmbedMany returns one vector per text in input order. batchSize <= 0 selects DefaultBatchSize.
	// Either every text is embedded or an error is returned.
	EmbedMany(ctx context.Context, texts []string, batchSize int) (BatchEmbeddingResult, error)
	EmbedOne(ctx context.Context, text string) (EmbeddingResult, error)
	Dimension() int
	ModelID() string
	DefaultBatchSize() int
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    Vector
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   []Vector
	PromptTokens int
	TotalTokens  int
}

// Batch is a half-open [Start, End) range of input positions.
type Batch struct {
	Start int
	End   int
}

// SplitBatches cuts n inputs into consecutive ranges of at most size elements.
func SplitBatches(n, size int) []Batch {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	batches := make([]Batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		batches = append(batches, Batch{Start: start, End: end})
	}
	return batches
}

// InstructionProvider is a domain decorator that prepends a document instruction to EmbedMany
// inputs and a query instruction to EmbedOne inputs.
type InstructionProvider struct {
	inner    Provider
	document string
	query    string
}

// NewInstructionProvider creates a decorator that prepends instruction text.
func NewInstructionProvider(inner Provider, documentInstruction, queryInstruction string) *InstructionProvider {
	return &InstructionProvider{inner: inner, document: documentInstruction, query: queryInstruction}
}

// EmbedMany prepends the document instruction to each text and delegates.
func (p *InstructionProvider) EmbedMany(
	ctx context.Context, texts []string, batchSize int,
) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = p.document + t
	}
	res, err := p.inner.EmbedMany(ctx, prefixed, batchSize)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction embed many: %w", err)
	}
	return res, nil
}

// EmbedOne prepends the query instruction and delegates.
func (p *InstructionProvider) EmbedOne(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := p.inner.EmbedOne(ctx, p.query+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed one: %w", err)
	}
	return res, nil
}

// Dimension delegates to the inner provider.
func (p *InstructionProvider) Dimension() int { return p.inner.Dimension() }

// ModelID delegates to the inner provider.
func (p *InstructionProvider) ModelID() string { return p.inner.ModelID() }

// DefaultBatchSize delegates to the inner provider.
func (p *InstructionProvider) DefaultBatchSize() int { return p.inner.DefaultBatchSize() }

// HealthCheck delegates when the inner provider supports it.
func (p *InstructionProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

// Close releases the inner provider's resources when it holds any.
func (p *InstructionProvider) Close() error {
	if c, ok := p.inner.(interface{ Close() error }); ok {
		return c.Close() //nolint:wrapcheck // transparent decorator
	}
	return nil
}
