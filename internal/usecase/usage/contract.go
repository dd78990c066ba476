package usage

// BudgetReader exposes the embedding token budget kept by the embedding use case.
// Limits of 0 mean unlimited and the matching Remaining* value is -1.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}

// reading is one period's slice of a BudgetReader.
type reading struct {
	limit     int64
	used      int64
	remaining int64
}

// readPeriod picks the counters for p. A nil reader reports unlimited.
func readPeriod(br BudgetReader, p Period) reading {
	if br == nil {
		return reading{remaining: -1}
	}
	if p == PeriodMonth {
		return reading{limit: br.MonthlyLimit(), used: br.MonthlyUsed(), remaining: br.RemainingMonthly()}
	}
	return reading{limit: br.DailyLimit(), used: br.DailyUsed(), remaining: br.RemainingDaily()}
}
