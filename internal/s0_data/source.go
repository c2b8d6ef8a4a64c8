package s0_data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// Source provides raw market data feeds
// ⭐ SSOT: S0 원천 데이터 인터페이스 (CSV, PostgreSQL, 메모리)
// 모든 구간은 [from, to] 양끝 포함
type Source interface {
	// Calendar returns trading days; an empty result means "derive from bars"
	Calendar(ctx context.Context, from, to time.Time) ([]time.Time, error)
	Instruments(ctx context.Context) ([]contracts.Instrument, error)
	Bars(ctx context.Context, from, to time.Time) ([]contracts.DailyBar, error)
	TradeStatus(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error)
	RiskFlags(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error)
	Limits(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error)
	// EarliestDate / LatestDate span every record of the whole universe
	EarliestDate(ctx context.Context) (time.Time, error)
	LatestDate(ctx context.Context) (time.Time, error)
}

// dateLayouts 허용 날짜 형식
var dateLayouts = []string{"2006-01-02", "20060102", "2006/01/02"}

// ParseDate parses a trading date in any supported layout (UTC midnight)
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// truncateDay drops the clock part so feeds with timestamps align on days
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseTradeStatus maps a trade status value to flags
func ParseTradeStatus(s string) (contracts.StatusFlags, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "trading", "正常":
		return contracts.FlagNormal, nil
	case "suspended", "halt", "停牌":
		return contracts.FlagSuspended, nil
	case "delisted", "退市":
		return contracts.FlagDelisted, nil
	}
	return 0, fmt.Errorf("unknown trade status %q", s)
}

// ParseRiskFlag maps a risk warning value (ST, *ST) to flags
func ParseRiskFlag(s string) (contracts.StatusFlags, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE", "NORMAL", "0":
		return contracts.FlagNormal, nil
	case "ST", "*ST", "1":
		return contracts.FlagRiskWarning, nil
	}
	return 0, fmt.Errorf("unknown risk warning flag %q", s)
}

// ParseLimit maps a limit state to flags
func ParseLimit(s string) (contracts.StatusFlags, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "normal", "0":
		return contracts.FlagNormal, nil
	case "up", "limit_up", "涨停", "1":
		return contracts.FlagLimitUp, nil
	case "down", "limit_down", "跌停", "-1":
		return contracts.FlagLimitDown, nil
	}
	return 0, fmt.Errorf("unknown limit state %q", s)
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}
