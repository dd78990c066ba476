package domain

import "context"

type usageKey struct{}

// Usage collects token spend for a single HTTP request.
// The handler puts a pointer into the context, the engine and the recommender add to it,
// and the handler reports it in response headers.
type Usage struct {
	EmbeddingTokens  int
	CompletionTokens int
	Embedded         bool
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the collector or nil. All methods are nil-safe.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records tokens spent on query embedding.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u == nil {
		return
	}
	u.EmbeddingTokens += n
	u.Embedded = true
}

// AddCompletionTokens records tokens spent on chat completion.
func (u *Usage) AddCompletionTokens(n int) {
	if u != nil {
		u.CompletionTokens += n
	}
}

// Completion is a chat model reply with its token usage.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
