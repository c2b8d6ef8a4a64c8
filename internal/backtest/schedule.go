package backtest

import (
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
)

// Rebalance frequencies
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyEveryN  = "every_n"
)

// Schedule decides rebalance days on the trading calendar
// 첫 시뮬레이션 일은 항상 리밸런싱
type Schedule struct {
	frequency string
	interval  int
}

// NewSchedule creates a rebalance schedule
func NewSchedule(cfg strategyconfig.Rebalance) (*Schedule, error) {
	switch cfg.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	case FrequencyEveryN:
		if cfg.Interval < 1 {
			return nil, &contracts.ConfigurationError{Field: "rebalance.interval", Message: "must be at least 1 for every_n"}
		}
	default:
		return nil, &contracts.ConfigurationError{Field: "rebalance.frequency", Message: "must be daily, weekly, monthly or every_n"}
	}
	return &Schedule{frequency: cfg.Frequency, interval: cfg.Interval}, nil
}

// IsRebalanceDay reports whether calendar index day rebalances
// first is the calendar index of the first simulated day
func (s *Schedule) IsRebalanceDay(calendar []time.Time, first, day int) bool {
	if day <= first {
		return true
	}
	prev, cur := calendar[day-1], calendar[day]
	switch s.frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		// 주의 첫 거래일
		py, pw := prev.ISOWeek()
		cy, cw := cur.ISOWeek()
		return py != cy || pw != cw
	case FrequencyMonthly:
		// 월의 첫 거래일
		return prev.Year() != cur.Year() || prev.Month() != cur.Month()
	case FrequencyEveryN:
		return (day-first)%s.interval == 0
	}
	return false
}
