// Package budget persists embedding token counters so limits survive restarts.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/prodsearch/internal/db"
)

// Default key lifetimes: a day key outlives its day, a month key its month.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// Store implements embedding.BudgetStore on expiring counters, one key per provider and period.
type Store struct {
	counters db.Counters
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store. Zero TTLs select the defaults.
func New(c db.Counters, dailyTTL, monthTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthTTL <= 0 {
		monthTTL = DefaultMonthlyTTL
	}
	return &Store{counters: c, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy adds spent tokens to the period counter.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if _, err := s.counters.Add(ctx, key, val, s.ttlFor(key)); err != nil {
		return fmt.Errorf("budget add: %w", err)
	}
	return nil
}

// Get returns the counter value, or 0 if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.counters.Counter(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget get: %w", err)
	}
	return val, nil
}

// ttlFor picks the lifetime from the period segment of the key (…:daily:… or …:monthly:…).
func (s *Store) ttlFor(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}
