package s0_data

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// MemorySource keeps feeds in memory (tests, embedding, CSV cache)
type MemorySource struct {
	Days       []time.Time
	Master     []contracts.Instrument
	BarRows    []contracts.DailyBar
	StatusRows []contracts.FlagRecord
	RiskRows   []contracts.FlagRecord
	LimitRows  []contracts.FlagRecord
}

// Calendar returns the configured days within range
func (m *MemorySource) Calendar(_ context.Context, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range m.Days {
		if inRange(d, from, to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Instruments returns the instrument master
func (m *MemorySource) Instruments(_ context.Context) ([]contracts.Instrument, error) {
	return append([]contracts.Instrument(nil), m.Master...), nil
}

// Bars returns bars within range
func (m *MemorySource) Bars(_ context.Context, from, to time.Time) ([]contracts.DailyBar, error) {
	var out []contracts.DailyBar
	for _, b := range m.BarRows {
		if inRange(b.Date, from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// TradeStatus returns trade status records within range
func (m *MemorySource) TradeStatus(_ context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	return filterFlags(m.StatusRows, from, to), nil
}

// RiskFlags returns risk warning records within range
func (m *MemorySource) RiskFlags(_ context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	return filterFlags(m.RiskRows, from, to), nil
}

// Limits returns limit up/down records within range
func (m *MemorySource) Limits(_ context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	return filterFlags(m.LimitRows, from, to), nil
}

// EarliestDate returns the first date of any record
func (m *MemorySource) EarliestDate(_ context.Context) (time.Time, error) {
	first, _ := m.span()
	return first, nil
}

// LatestDate returns the last date of any record
func (m *MemorySource) LatestDate(_ context.Context) (time.Time, error) {
	_, last := m.span()
	return last, nil
}

func (m *MemorySource) span() (first, last time.Time) {
	visit := func(d time.Time) {
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	for _, b := range m.BarRows {
		visit(b.Date)
	}
	for _, rows := range [][]contracts.FlagRecord{m.StatusRows, m.RiskRows, m.LimitRows} {
		for _, r := range rows {
			visit(r.Date)
		}
	}
	return first, last
}

func filterFlags(rows []contracts.FlagRecord, from, to time.Time) []contracts.FlagRecord {
	var out []contracts.FlagRecord
	for _, r := range rows {
		if inRange(r.Date, from, to) {
			out = append(out, r)
		}
	}
	return out
}
