package audit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/risk"
	"github.com/wonny/stockbt/pkg/logger"
)

// TradingDaysPerYear 연환산 기준 거래일 수
const TradingDaysPerYear = 252

// Analyzer implements S5: performance metrics
// ⭐ SSOT: S5 성과 지표 계산은 여기서만 (순수 함수, 입력 불변)
type Analyzer struct {
	logger *logger.Logger
}

// NewAnalyzer creates a new performance analyzer
func NewAnalyzer(log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{logger: log.WithStage(contracts.StageAudit.ShortName())}
}

// Compute implements contracts.MetricsCalculator
func (a *Analyzer) Compute(dailyReturns []float64) (*contracts.Metrics, error) {
	m, err := Compute(dailyReturns)
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(map[string]interface{}{
		"days":              m.TradingDays,
		"cumulative_return": m.CumulativeReturn,
		"annualized_return": m.AnnualizedReturn,
		"volatility":        m.Volatility,
		"max_drawdown":      m.MaxDrawdown,
		"sharpe":            m.Sharpe,
		"var_95":            m.VaR95,
	}).Info("Performance metrics computed")
	return m, nil
}

// Compute derives metrics from a daily return series
// NaN/Inf 입력 또는 2일 미만은 InsufficientDataError (0 으로 대체하지 않음)
func Compute(dailyReturns []float64) (*contracts.Metrics, error) {
	n := len(dailyReturns)
	if n < 2 {
		return nil, &contracts.InsufficientDataError{
			Stage:  contracts.StageAudit,
			Need:   2,
			Have:   n,
			Reason: "metrics need at least two daily returns",
		}
	}
	for i, r := range dailyReturns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, &contracts.InsufficientDataError{
				Stage:  contracts.StageAudit,
				Need:   n,
				Have:   i,
				Reason: fmt.Sprintf("non-finite daily return at index %d", i),
			}
		}
	}

	m := &contracts.Metrics{TradingDays: n}
	m.CumulativeReturn = calculateTotalReturn(dailyReturns)
	m.AnnualizedReturn = annualize(m.CumulativeReturn, n)
	m.Volatility = calculateVolatility(dailyReturns)
	m.MaxDrawdown = calculateMaxDrawdown(dailyReturns)
	m.Sharpe = calculateSharpe(m.AnnualizedReturn, m.Volatility)
	m.Sortino = calculateSortino(dailyReturns, m.AnnualizedReturn)
	m.WinRate = calculateWinRate(dailyReturns)

	tail := risk.Historical(dailyReturns, risk.DefaultConfidence)
	m.VaR95, m.CVaR95 = tail.VaR, tail.CVaR
	return m, nil
}

// calculateTotalReturn calculates compounded cumulative return
func calculateTotalReturn(dailyReturns []float64) float64 {
	cumReturn := 1.0
	for _, r := range dailyReturns {
		cumReturn *= (1.0 + r)
	}
	return cumReturn - 1.0
}

// annualize converts return to annualized return
func annualize(totalReturn float64, days int) float64 {
	if days == 0 {
		return 0
	}
	if totalReturn <= -1 {
		return -1
	}
	return math.Pow(1.0+totalReturn, TradingDaysPerYear/float64(days)) - 1.0
}

// calculateVolatility calculates annualized volatility (sample std)
func calculateVolatility(dailyReturns []float64) float64 {
	return stat.StdDev(dailyReturns, nil) * math.Sqrt(TradingDaysPerYear)
}

// calculateSharpe calculates Sharpe ratio (무위험 수익률 0)
func calculateSharpe(annualReturn, volatility float64) float64 {
	if volatility == 0 {
		return 0
	}
	return annualReturn / volatility
}

// calculateSortino calculates Sortino ratio
func calculateSortino(dailyReturns []float64, annualReturn float64) float64 {
	// Downside deviation (only negative returns)
	var sumSquaredNegative float64
	var countNegative int
	for _, r := range dailyReturns {
		if r < 0 {
			sumSquaredNegative += r * r
			countNegative++
		}
	}

	if countNegative == 0 {
		return 0
	}

	downsideVol := math.Sqrt(sumSquaredNegative/float64(countNegative)) * math.Sqrt(TradingDaysPerYear)
	if downsideVol == 0 {
		return 0
	}
	return annualReturn / downsideVol
}

// calculateMaxDrawdown returns the largest peak-to-trough drop as a positive fraction
// 초기 자산 1.0 도 고점으로 취급
func calculateMaxDrawdown(dailyReturns []float64) float64 {
	cumValue := 1.0
	peak := 1.0
	maxDD := 0.0

	for _, r := range dailyReturns {
		cumValue *= (1.0 + r)
		if cumValue > peak {
			peak = cumValue
		}
		dd := (peak - cumValue) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}

	return maxDD
}

// calculateWinRate returns the share of positive days among days with a non-zero return
func calculateWinRate(dailyReturns []float64) float64 {
	wins, active := 0, 0
	for _, r := range dailyReturns {
		if r == 0 {
			continue
		}
		active++
		if r > 0 {
			wins++
		}
	}
	if active == 0 {
		return 0
	}
	return float64(wins) / float64(active)
}
