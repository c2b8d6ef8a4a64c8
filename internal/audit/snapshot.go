package audit

import (
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// DailySnapshot represents one point of the wealth curve
type DailySnapshot struct {
	Date        time.Time `json:"date"`
	DailyReturn float64   `json:"daily_return"`
	CumReturn   float64   `json:"cum_return"`
	Drawdown    float64   `json:"drawdown"` // 직전 고점 대비 하락 (양수)
	Cash        float64   `json:"cash"`
	Positions   int       `json:"positions"`
	Rebalanced  bool      `json:"rebalanced"`
}

// CumulativeSeries returns the compounded cumulative return after each day
func CumulativeSeries(dailyReturns []float64) []float64 {
	out := make([]float64, len(dailyReturns))
	wealth := 1.0
	for i, r := range dailyReturns {
		wealth *= 1 + r
		out[i] = wealth - 1
	}
	return out
}

// DrawdownSeries returns the drop from the running peak after each day
func DrawdownSeries(dailyReturns []float64) []float64 {
	out := make([]float64, len(dailyReturns))
	wealth, peak := 1.0, 1.0
	for i, r := range dailyReturns {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		out[i] = (peak - wealth) / peak
	}
	return out
}

// Snapshots builds the wealth curve of a result
func Snapshots(result *contracts.BacktestResult) []DailySnapshot {
	returns := result.DailyReturns()
	cum := CumulativeSeries(returns)
	dd := DrawdownSeries(returns)

	out := make([]DailySnapshot, len(result.Days))
	for i, day := range result.Days {
		out[i] = DailySnapshot{
			Date:        day.Date,
			DailyReturn: day.DailyReturn,
			CumReturn:   cum[i],
			Drawdown:    dd[i],
			Cash:        day.Cash,
			Positions:   len(day.Holdings),
			Rebalanced:  day.Rebalanced,
		}
	}
	return out
}
