package recommend

import (
	"context"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/request"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
)

// Searcher retrieves ranked variants for a query.
type Searcher interface {
	Search(ctx context.Context, req request.Request) ([]result.Hit, error)
}

// Completer sends a system and a user message to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (domain.Completion, error)
}
