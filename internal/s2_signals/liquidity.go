package s2_signals

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/stockbt/internal/contracts"
)

// LiquidityCalculator mean traded volume over a window
type LiquidityCalculator struct {
	Window int
}

// Name returns the feature name
func (c *LiquidityCalculator) Name() string { return "liquidity" }

// Calculate returns the mean volume of valid bars in the window
func (c *LiquidityCalculator) Calculate(ds *contracts.Dataset, day, inst int) (float64, bool) {
	from := day - c.Window + 1
	if from < 0 {
		from = 0
	}
	vols := make([]float64, 0, c.Window)
	for d := from; d <= day; d++ {
		b := ds.Bars[d][inst]
		if b.HasData() && !math.IsNaN(b.Volume) {
			vols = append(vols, b.Volume)
		}
	}
	if len(vols) == 0 {
		return 0, false
	}
	return stat.Mean(vols, nil), true
}
