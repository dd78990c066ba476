// Package hugot runs a sentence-embedding ONNX model in-process with the pure-Go hugot backend.
package hugot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	hg "github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

// Embedder defaults.
const (
	DefaultModel     = "intfloat/multilingual-e5-large"
	DefaultBatchSize = 32

	providerLabel = "local"
	probeText     = "dimension probe"
	tokenizerFile = "tokenizer.json"
)

// pipeline is the subset of a hugot feature-extraction pipeline the embedder needs.
type pipeline interface {
	Embed(texts []string) ([][]float32, error)
	Close() error
}

// sessionPipeline owns a hugot session and its feature-extraction pipeline.
type sessionPipeline struct {
	session  *hg.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

func (s *sessionPipeline) Embed(texts []string) ([][]float32, error) {
	out, err := s.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by the embedder
	}
	return out.Embeddings, nil
}

func (s *sessionPipeline) Close() error {
	return s.session.Destroy() //nolint:wrapcheck // wrapped by the embedder
}

// openPipeline loads a normalized feature-extraction pipeline from modelPath.
func openPipeline(modelPath, name string) (pipeline, error) {
	session, err := hg.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}
	config := hg.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      name,
		Options: []hg.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	p, err := hg.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("create feature extraction pipeline: %w", err)
	}
	return &sessionPipeline{session: session, pipeline: p}, nil
}

// Config holds the local provider settings.
type Config struct {
	ModelDir  string
	Model     string
	BatchSize int
	Logger    *zap.Logger
}

// Embedder embeds texts with a local model. Inference is serialized.
type Embedder struct {
	mu        sync.Mutex
	pipeline  pipeline
	model     string
	modelPath string
	dimension int
	batchSize int
	logger    *zap.Logger
}

var _ domain.Provider = (*Embedder)(nil)

// NewEmbedder loads the model and measures its output dimension.
// Missing model assets yield domain.ErrProviderUnavailable.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	modelPath, err := ResolveModelPath(cfg.ModelDir, model)
	if err != nil {
		return nil, err
	}
	p, err := openPipeline(modelPath, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	return newWithPipeline(cfg, model, modelPath, p)
}

func newWithPipeline(cfg *Config, model, modelPath string, p pipeline) (*Embedder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	probe, err := p.Embed([]string{probeText})
	if err != nil || len(probe) != 1 || len(probe[0]) == 0 {
		_ = p.Close()
		if err == nil {
			err = errors.New("empty probe embedding")
		}
		return nil, fmt.Errorf("%w: probe model %s: %w", domain.ErrProviderUnavailable, model, err)
	}

	logger.Info("local embedding model loaded",
		zap.String("model", model),
		zap.String("path", modelPath),
		zap.Int("dimension", len(probe[0])),
	)

	return &Embedder{
		pipeline:  p,
		model:     model,
		modelPath: modelPath,
		dimension: len(probe[0]),
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// ResolveModelPath finds the directory holding tokenizer.json: modelDir itself, a subdirectory
// named after the model, or any single-level subdirectory.
func ResolveModelPath(modelDir, model string) (string, error) {
	if modelDir == "" {
		return "", fmt.Errorf("%w: model directory is not configured", domain.ErrProviderUnavailable)
	}
	if hasTokenizer(modelDir) {
		return modelDir, nil
	}

	for _, name := range []string{strings.ReplaceAll(model, "/", "_"), filepath.Base(model)} {
		candidate := filepath.Join(modelDir, name)
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}

	entries, err := os.ReadDir(modelDir)
	if err != nil {
		return "", fmt.Errorf("%w: read model directory %s: %w", domain.ErrProviderUnavailable, modelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(modelDir, entry.Name())
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no %s found in %s", domain.ErrProviderUnavailable, tokenizerFile, modelDir)
}

func hasTokenizer(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, tokenizerFile))
	return err == nil && !st.IsDir()
}

// EmbedMany embeds texts in batches of batchSize. Any failed batch fails the whole call.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string, batchSize int) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: []domain.Vector{}}, nil
	}
	if batchSize <= 0 {
		batchSize = e.batchSize
	}

	out := make([]domain.Vector, 0, len(texts))
	for _, b := range domain.SplitBatches(len(texts), batchSize) {
		vecs, err := e.run(ctx, texts[b.Start:b.End])
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embed many: batch [%d:%d]: %w", b.Start, b.End, err)
		}
		out = append(out, vecs...)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// EmbedOne embeds a single query text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vecs, err := e.run(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed one: %w", err)
	}
	return domain.EmbeddingResult{Embedding: vecs[0]}, nil
}

func (e *Embedder) run(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	raw, err := e.pipeline.Embed(texts)
	metrics.EmbeddingRequestDuration.WithLabelValues(providerLabel, e.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerLabel, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerLabel, e.model, "inference").Inc()
		return nil, fmt.Errorf("%w: run pipeline: %w", domain.ErrEmbeddingFailed, err)
	}
	if len(raw) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerLabel, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerLabel, e.model, "count_mismatch").Inc()
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingFailed, len(raw), len(texts))
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(providerLabel, e.model, "success").Inc()

	out := make([]domain.Vector, len(raw))
	for i, v := range raw {
		out[i] = v
	}
	return out, nil
}

// Dimension returns the vector size measured at load time.
func (e *Embedder) Dimension() int { return e.dimension }

// ModelID returns the model name.
func (e *Embedder) ModelID() string { return e.model }

// DefaultBatchSize returns the number of texts run through the model at once.
func (e *Embedder) DefaultBatchSize() int { return e.batchSize }

// Close releases the hugot session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pipeline.Close(); err != nil {
		return fmt.Errorf("close local model: %w", err)
	}
	return nil
}
