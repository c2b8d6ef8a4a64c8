package portfolio

import (
	"math"

	"github.com/wonny/stockbt/internal/contracts"
)

// TrailingReturns returns daily close-to-close returns of the lookback days
// ending at calendar index day (inclusive); missing prices give NaN
func TrailingReturns(ds *contracts.Dataset, day int, ids []string, lookback int) map[string][]float64 {
	out := make(map[string][]float64, len(ids))
	if lookback <= 0 {
		return out
	}
	from := day - lookback + 1
	if from < 1 {
		from = 1
	}
	for _, id := range ids {
		i, ok := ds.InstrumentIndex(id)
		series := make([]float64, 0, day-from+1)
		for d := from; d <= day; d++ {
			if !ok {
				series = append(series, math.NaN())
				continue
			}
			prev, cur := ds.Bars[d-1][i], ds.Bars[d][i]
			if !prev.HasData() || !cur.HasData() {
				series = append(series, math.NaN())
				continue
			}
			series = append(series, cur.Close/prev.Close-1)
		}
		out[id] = series
	}
	return out
}
