package usage

import (
	"context"
	"fmt"
	"time"
)

// Period is a usage reporting window.
type Period string

const (
	// PeriodDay covers the current UTC day.
	PeriodDay Period = "day"
	// PeriodMonth covers the current UTC month.
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. Empty selects PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown usage period %q", s)
	}
}

// Report is the embedding token budget state for one period.
// Limit 0 means unlimited; Remaining is -1 in that case.
type Report struct {
	Period    Period
	Start     time.Time
	End       time.Time
	Limit     int64
	Used      int64
	Remaining int64
	Exhausted bool
}

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: func() time.Time { return time.Now().UTC() }}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now()
	if period != PeriodMonth {
		period = PeriodDay
	}
	r := Report{Period: period}

	if period == PeriodMonth {
		r.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 1, 0)
	} else {
		r.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.End = r.Start.Add(24 * time.Hour)
	}

	rd := readPeriod(s.br, period)
	r.Limit, r.Used, r.Remaining = rd.limit, rd.used, rd.remaining
	r.Exhausted = r.Limit > 0 && r.Remaining <= 0
	return r
}
