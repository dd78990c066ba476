package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/request"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

// Answer is a recommendation reply and the hits it was grounded on.
type Answer struct {
	Query    string
	Response string
	Hits     []result.Hit
}

// ProductsConsidered is the number of hits passed to the chat model.
func (a Answer) ProductsConsidered() int { return len(a.Hits) }

// Options tunes the prompts.
type Options struct {
	SystemPrompt string
	Currency     string
}

// Service answers shopping questions with products retrieved by the search engine.
type Service struct {
	search    Searcher
	chat      Completer
	system    string
	formatter Formatter
	logger    *zap.Logger
}

// New creates a recommendation service. A nil chat disables Ask.
func New(search Searcher, chat Completer, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	system := opts.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &Service{
		search:    search,
		chat:      chat,
		system:    system,
		formatter: Formatter{Currency: opts.Currency},
		logger:    logger,
	}
}

// Enabled reports whether a chat model is configured.
func (s *Service) Enabled() bool { return s.chat != nil }

// Ask retrieves the top products for the query (deduplicated by product) and asks the
// chat model to recommend among them.
func (s *Service) Ask(ctx context.Context, query string, topK int) (Answer, error) {
	if s.chat == nil {
		metrics.RecommendationsTotal.WithLabelValues("disabled").Inc()
		return Answer{}, domain.ErrRecommendationsDisabled
	}

	req, err := request.New(query, topK, true)
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("invalid").Inc()
		return Answer{}, err //nolint:wrapcheck // domain error
	}

	hits, err := s.search.Search(ctx, req)
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues(statusFor(err)).Inc()
		return Answer{}, fmt.Errorf("search products: %w", err)
	}

	start := time.Now()
	reply, err := s.chat.Complete(ctx, s.system, s.formatter.UserMessage(req.Query(), hits))
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		s.logger.Error("recommendation failed",
			zap.Int("products", len(hits)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return Answer{}, fmt.Errorf("complete: %w", err)
	}

	domain.UsageFromContext(ctx).AddCompletionTokens(reply.PromptTokens + reply.CompletionTokens)
	metrics.RecommendationsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("recommendation generated",
		zap.Int("products", len(hits)),
		zap.Int("prompt_tokens", reply.PromptTokens),
		zap.Int("completion_tokens", reply.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return Answer{Query: req.Query(), Response: reply.Text, Hits: hits}, nil
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrIndexNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrEmbeddingQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}
