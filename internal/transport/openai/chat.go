package openai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

// Chat defaults.
const (
	DefaultChatModel   = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// ChatConfig holds the chat completion settings.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32 // nil selects DefaultTemperature
	MaxTokens   int
	Timeout     time.Duration
	Backoff     Backoff
	Logger      *zap.Logger
}

// ChatClient generates text replies through the OpenAI-compatible chat completions API.
type ChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	backoff     Backoff
	logger      *zap.Logger
}

// NewChatClient creates a chat client. A missing API key yields domain.ErrRecommendationsDisabled.
func NewChatClient(cfg *ChatConfig) (*ChatClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key is required for chat completions", domain.ErrRecommendationsDisabled)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	temperature := float32(DefaultTemperature)
	if cfg.Temperature != nil {
		if *cfg.Temperature < 0 {
			return nil, fmt.Errorf("chat temperature must not be negative, got %g", *cfg.Temperature)
		}
		temperature = *cfg.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatClient{
		client:      openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL, timeout)),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		backoff:     cfg.Backoff.withDefaults(),
		logger:      logger,
	}, nil
}

// Model returns the chat model name.
func (c *ChatClient) Model() string { return c.model }

// Complete sends a system and a user message and returns the first choice.
// Failures wrap domain.ErrRecommendationFailed.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (domain.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	// go-openai omits a zero temperature, which the API reads as its own default.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, c.backoff, func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err //nolint:wrapcheck // classified by withRetry
	}, func(attempt int, wait time.Duration, err error) {
		c.logger.Warn("chat completion failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return domain.Completion{}, parseAPIError("chat", err, domain.ErrRecommendationFailed)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("chat: no choices in response: %w", domain.ErrRecommendationFailed)
	}

	metrics.CompletionTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.CompletionTokensTotal.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	return domain.Completion{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
