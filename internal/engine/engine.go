// Package engine ranks catalog variants against a free-text query by cosine similarity
// of their embeddings. The whole index lives in memory and is rebuilt from scratch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/domain/catalog"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/request"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
	"github.com/kailas-cloud/prodsearch/internal/vector"
)

// ProgressFunc is called after each embedded chunk with the number of embedded and total variants.
type ProgressFunc func(done, total int)

// Option configures an Engine.
type Option func(*Engine)

// WithProgress reports build progress chunk by chunk.
// Without it the whole catalog goes to the provider in one EmbedMany call.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// entry pairs a variant with its vector so the two can never drift apart.
type entry struct {
	variant catalog.Variant
	vec     domain.Vector
}

// snapshot is an immutable published index.
type snapshot struct {
	entries []entry
	dim     int
	builtAt time.Time
}

// Engine is safe for concurrent searches. Searches read the current snapshot without locking;
// BuildIndex publishes a replacement atomically.
type Engine struct {
	variants []catalog.Variant
	provider domain.Provider
	logger   *zap.Logger
	progress ProgressFunc

	buildMu sync.Mutex
	snap    atomic.Pointer[snapshot]
}

// New creates an engine over an immutable variant list. No embedding happens until BuildIndex.
func New(variants []catalog.Variant, provider domain.Provider, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		variants: variants,
		provider: provider,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildIndex embeds every variant text and publishes a new snapshot.
// On failure the previously published snapshot (if any) stays in place.
func (e *Engine) BuildIndex(ctx context.Context, batchSize int) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if batchSize <= 0 {
		batchSize = e.provider.DefaultBatchSize()
	}

	start := time.Now()
	texts := make([]string, len(e.variants))
	for i := range e.variants {
		texts[i] = e.variants[i].Text
	}

	vecs, err := e.embedAll(ctx, texts, batchSize)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	dim, err := checkDimensions(vecs)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	entries := make([]entry, len(e.variants))
	zeroNorm := 0
	for i := range e.variants {
		entries[i] = entry{variant: e.variants[i], vec: vecs[i]}
		if vector.Norm(vecs[i]) == 0 {
			zeroNorm++
		}
	}

	e.snap.Store(&snapshot{entries: entries, dim: dim, builtAt: time.Now()})

	elapsed := time.Since(start)
	metrics.IndexBuildDuration.Observe(elapsed.Seconds())
	metrics.IndexDocuments.Set(float64(len(entries)))

	if zeroNorm > 0 {
		e.logger.Warn("index contains zero-norm vectors, they will never match",
			zap.Int("count", zeroNorm))
	}
	if pd := e.provider.Dimension(); pd > 0 && dim > 0 && pd != dim {
		e.logger.Warn("provider reported a different dimension than it returned",
			zap.Int("reported", pd), zap.Int("actual", dim))
	}
	e.logger.Info("index built",
		zap.Int("variants", len(entries)),
		zap.Int("dimension", dim),
		zap.Int("batch_size", batchSize),
		zap.String("model", e.provider.ModelID()),
		zap.Duration("duration", elapsed),
	)
	return nil
}

func (e *Engine) embedAll(ctx context.Context, texts []string, batchSize int) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if e.progress == nil {
		res, err := e.provider.EmbedMany(ctx, texts, batchSize)
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by BuildIndex
		}
		if len(res.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts",
				domain.ErrEmbeddingFailed, len(res.Embeddings), len(texts))
		}
		return res.Embeddings, nil
	}

	vecs := make([]domain.Vector, 0, len(texts))
	e.progress(0, len(texts))
	for _, b := range domain.SplitBatches(len(texts), batchSize) {
		res, err := e.provider.EmbedMany(ctx, texts[b.Start:b.End], batchSize)
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by BuildIndex
		}
		if len(res.Embeddings) != b.End-b.Start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts",
				domain.ErrEmbeddingFailed, len(res.Embeddings), b.End-b.Start)
		}
		vecs = append(vecs, res.Embeddings...)
		e.progress(b.End, len(texts))
	}
	return vecs, nil
}

func checkDimensions(vecs []domain.Vector) (int, error) {
	if len(vecs) == 0 {
		return 0, nil
	}
	dim := len(vecs[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector at position 0", domain.ErrEmbeddingFailed)
	}
	for i, v := range vecs {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: %w: vector %d has %d dimensions, expected %d",
				domain.ErrEmbeddingFailed, domain.ErrVectorDimMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

// Search returns the best matching variants for the request, highest similarity first.
func (e *Engine) Search(ctx context.Context, req request.Request) ([]result.Hit, error) {
	start := time.Now()
	hits, err := e.search(ctx, req)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.SearchTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrIndexNotReady):
		metrics.SearchTotal.WithLabelValues("not_ready").Inc()
	default:
		metrics.SearchTotal.WithLabelValues("error").Inc()
	}
	return hits, err
}

func (e *Engine) search(ctx context.Context, req request.Request) ([]result.Hit, error) {
	snap := e.snap.Load()
	if snap == nil || len(snap.entries) == 0 {
		return nil, domain.ErrIndexNotReady
	}

	q, err := e.provider.EmbedOne(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(q.TotalTokens)

	if len(q.Embedding) != snap.dim {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, index has %d",
			domain.ErrEmbeddingFailed, domain.ErrVectorDimMismatch, len(q.Embedding), snap.dim)
	}

	ranked := rank(snap.entries, q.Embedding)
	return selectTop(ranked, req.TopK(), req.Deduplicate()), nil
}

type scored struct {
	e     *entry
	score float64
}

// rank scores every entry and sorts by descending similarity. Ties keep catalog order.
func rank(entries []entry, q domain.Vector) []scored {
	out := make([]scored, len(entries))
	for i := range entries {
		out[i] = scored{e: &entries[i], score: vector.Cosine(q, entries[i].vec)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// selectTop takes the first topK hits, or with dedup the best hit of each of the first topK products.
func selectTop(ranked []scored, topK int, dedup bool) []result.Hit {
	hits := make([]result.Hit, 0, min(topK, len(ranked)))
	if !dedup {
		for _, s := range ranked[:min(topK, len(ranked))] {
			hits = append(hits, result.New(s.e.variant, s.score))
		}
		return hits
	}

	seen := make(map[int64]struct{}, topK)
	for _, s := range ranked {
		if _, ok := seen[s.e.variant.ProductID]; ok {
			continue
		}
		seen[s.e.variant.ProductID] = struct{}{}
		hits = append(hits, result.New(s.e.variant, s.score))
		if len(hits) == topK {
			break
		}
	}
	return hits
}

// ProductIDs returns the product_id of each search hit, in rank order.
func (e *Engine) ProductIDs(ctx context.Context, req request.Request) ([]int64, error) {
	hits, err := e.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ProductID()
	}
	return ids, nil
}

// VariantIDs returns the variant_id of the topK best variants. Variants of the same product are not collapsed.
func (e *Engine) VariantIDs(ctx context.Context, query string, topK int) ([]int64, error) {
	req, err := request.New(query, topK, false)
	if err != nil {
		return nil, fmt.Errorf("variant ids: %w", err)
	}
	hits, err := e.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.VariantID()
	}
	return ids, nil
}

// Ready reports whether a non-empty index snapshot has been published.
func (e *Engine) Ready() bool {
	s := e.snap.Load()
	return s != nil && len(s.entries) > 0
}

// Len returns the number of indexed variants, or 0 before the first build.
func (e *Engine) Len() int {
	if s := e.snap.Load(); s != nil {
		return len(s.entries)
	}
	return 0
}

// Catalog returns the number of variants the engine was created with.
func (e *Engine) Catalog() int { return len(e.variants) }

// ModelID returns the embedding model the index is built with.
func (e *Engine) ModelID() string { return e.provider.ModelID() }

// BuiltAt returns when the current snapshot was published.
func (e *Engine) BuiltAt() (time.Time, bool) {
	if s := e.snap.Load(); s != nil {
		return s.builtAt, true
	}
	return time.Time{}, false
}
