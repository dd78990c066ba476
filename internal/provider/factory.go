// Package provider builds the embedding provider chain from configuration.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/config"
	"github.com/kailas-cloud/prodsearch/internal/domain"
	hugotEmb "github.com/kailas-cloud/prodsearch/internal/transport/hugot"
	openaiEmb "github.com/kailas-cloud/prodsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/prodsearch/internal/usecase/embedding"
)

// Canonical provider names, used as metric and budget labels.
const (
	Remote = "openai"
	Local  = "local"
)

// E5 instruction prefixes.
const (
	e5Document = "passage: "
	e5Query    = "query: "
)

// Normalize maps a configured provider name to its canonical form.
// Unknown names yield domain.ErrProviderUnavailable.
func Normalize(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "remote":
		return Remote, nil
	case "local", "hugot":
		return Local, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", domain.ErrProviderUnavailable, name)
	}
}

// Instructions returns the document and query prefixes for a model.
// Configured instructions win; E5-family models otherwise get passage/query prefixes.
func Instructions(model string, cfg config.EmbeddingConfig) (document, query string) {
	if cfg.DocumentInstruction != "" || cfg.QueryInstruction != "" {
		return cfg.DocumentInstruction, cfg.QueryInstruction
	}
	if strings.Contains(strings.ToLower(model), "e5") {
		return e5Document, e5Query
	}
	return "", ""
}

// New assembles the chain base -> Instrumented -> Instruction. budget may be nil.
// The returned provider implements Close when the base holds resources.
func New(
	_ context.Context, cfg config.EmbeddingConfig,
	budget embeddinguc.BudgetChecker, logger *zap.Logger,
) (domain.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name, err := Normalize(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var base domain.Provider
	switch name {
	case Remote:
		base, err = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Dimensions:  cfg.Dimensions,
			Provider:    name,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.Concurrency,
			Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
			Backoff:     openaiEmb.Backoff{MaxRetries: cfg.MaxRetries},
			Logger:      logger,
		})
	case Local:
		base, err = hugotEmb.NewEmbedder(&hugotEmb.Config{
			ModelDir:  cfg.ModelDir,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
			Logger:    logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", name, err)
	}

	return wrap(base, name, cfg, budget, logger), nil
}

func wrap(
	base domain.Provider, name string, cfg config.EmbeddingConfig,
	budget embeddinguc.BudgetChecker, logger *zap.Logger,
) domain.Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	var p domain.Provider = embeddinguc.NewInstrumentedProvider(base, name, budget, logger)

	document, query := Instructions(base.ModelID(), cfg)
	if document == "" && query == "" {
		return p
	}
	logger.Info("embedding instructions enabled",
		zap.String("model", base.ModelID()),
		zap.String("document", document),
		zap.String("query", query),
	)
	return domain.NewInstructionProvider(p, document, query)
}
