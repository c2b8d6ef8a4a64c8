package s2_signals

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/stockbt/internal/contracts"
)

// VolatilityCalculator sample std of daily returns over a window
// 낮을수록 좋은 팩터이므로 부호를 뒤집어 반환 (순위가 높을수록 저변동)
type VolatilityCalculator struct {
	Window int
}

// Name returns the feature name
func (c *VolatilityCalculator) Name() string { return "volatility" }

// Calculate returns -std(returns) over the last Window+1 calendar days
func (c *VolatilityCalculator) Calculate(ds *contracts.Dataset, day, inst int) (float64, bool) {
	px := closes(ds, inst, day-c.Window, day)
	if len(px) < 3 {
		return 0, false
	}
	rets := make([]float64, 0, len(px)-1)
	for i := 1; i < len(px); i++ {
		rets = append(rets, px[i]/px[i-1]-1)
	}
	sd := stat.StdDev(rets, nil)
	if math.IsNaN(sd) {
		return 0, false
	}
	return -sd, true
}
