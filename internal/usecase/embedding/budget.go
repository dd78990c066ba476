package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/domain"
)

// KeyPrefix namespaces budget keys in the shared store.
const KeyPrefix = "prodsearch:"

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// ParseBudgetAction maps a config value to an action. Empty means warn.
func ParseBudgetAction(s string) (BudgetAction, error) {
	switch BudgetAction(strings.ToLower(strings.TrimSpace(s))) {
	case "", BudgetActionWarn:
		return BudgetActionWarn, nil
	case BudgetActionReject:
		return BudgetActionReject, nil
	default:
		return "", fmt.Errorf("unknown budget action %q (want warn or reject)", s)
	}
}

// BudgetStore is the persistence interface for budget counters.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// period is one rolling budget window.
type period struct {
	name  string // "daily" or "monthly"
	limit int64  // 0 = unlimited
	used  int64
	start time.Time
	trunc func(time.Time) time.Time
	label func(time.Time) string
}

func (p *period) roll(now time.Time) {
	if s := p.trunc(now); s.After(p.start) {
		p.used = 0
		p.start = s
	}
}

func (p *period) exceeded() bool { return p.limit > 0 && p.used >= p.limit }

func (p *period) remaining() int64 {
	if p.limit == 0 {
		return -1
	}
	return max(p.limit-p.used, 0)
}

// BudgetTracker keeps daily and monthly token counters in memory.
// Check never leaves the process; Record writes behind to an optional store.
type BudgetTracker struct {
	mu       sync.Mutex
	daily    period
	monthly  period
	action   BudgetAction
	provider string
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a budget tracker with the given limits (0 = unlimited).
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BudgetTracker{
		daily: period{
			name: "daily", limit: dailyLimit, trunc: truncateToDay,
			label: func(t time.Time) string { return t.Format("2006-01-02") },
		},
		monthly: period{
			name: "monthly", limit: monthlyLimit, trunc: truncateToMonth,
			label: func(t time.Time) string { return t.Format("2006-01") },
		},
		action:   action,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	now := b.now()
	b.daily.start = truncateToDay(now)
	b.monthly.start = truncateToMonth(now)
	return b
}

// WithStore attaches a persistence store and loads the current counters from it.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := b.now()
	for _, p := range []*period{&b.daily, &b.monthly} {
		val, err := store.Get(ctx, b.key(p, now))
		if err != nil {
			b.logger.Warn("failed to load budget from store", zap.String("period", p.name), zap.Error(err))
			continue
		}
		p.used = val
	}

	b.logger.Info("budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("monthly_used", b.monthly.used),
	)
	return b
}

func (b *BudgetTracker) key(p *period, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", KeyPrefix, b.provider, p.name, p.label(t))
}

// Check verifies the budget allows a new request.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	if !b.daily.exceeded() && !b.monthly.exceeded() {
		return nil
	}
	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("daily_limit", b.daily.limit),
		zap.Int64("monthly_used", b.monthly.used),
		zap.Int64("monthly_limit", b.monthly.limit),
	)
	return nil
}

// Record registers consumed tokens after a request.
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	b.rollLocked()
	b.daily.used += tokens
	b.monthly.used += tokens
	store := b.store
	now := b.now()
	keys := []string{b.key(&b.daily, now), b.key(&b.monthly, now)}
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("failed to persist budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.daily.remaining()
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.monthly.remaining()
}

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.daily.used
}

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.monthly.used
}

// DailyLimit returns the configured daily limit (0 = unlimited).
func (b *BudgetTracker) DailyLimit() int64 { return b.daily.limit }

// MonthlyLimit returns the configured monthly limit (0 = unlimited).
func (b *BudgetTracker) MonthlyLimit() int64 { return b.monthly.limit }

func (b *BudgetTracker) rollLocked() {
	now := b.now()
	b.daily.roll(now)
	b.monthly.roll(now)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
