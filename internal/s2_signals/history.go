package s2_signals

import (
	"math"

	"github.com/wonny/stockbt/internal/contracts"
)

// closes returns valid closes of one instrument in calendar window [from, to]
func closes(ds *contracts.Dataset, inst, from, to int) []float64 {
	if from < 0 {
		from = 0
	}
	out := make([]float64, 0, to-from+1)
	for d := from; d <= to; d++ {
		if ds.Bars[d][inst].HasData() {
			out = append(out, ds.Bars[d][inst].Close)
		}
	}
	return out
}

// historyCounts returns prefix counts of valid closes per instrument
// counts[d][i] = 0..d 일까지 유효 종가 수
func historyCounts(ds *contracts.Dataset) [][]int {
	counts := make([][]int, len(ds.Calendar))
	for d := range ds.Calendar {
		counts[d] = make([]int, len(ds.Instruments))
		for i := range ds.Instruments {
			if d > 0 {
				counts[d][i] = counts[d-1][i]
			}
			if ds.Bars[d][i].HasData() {
				counts[d][i]++
			}
		}
	}
	return counts
}

// lastCloseAtOrBefore finds the most recent valid close at or before day
func lastCloseAtOrBefore(ds *contracts.Dataset, inst, day int) (float64, bool) {
	for d := day; d >= 0; d-- {
		if ds.Bars[d][inst].HasData() {
			return ds.Bars[d][inst].Close, true
		}
	}
	return math.NaN(), false
}
