package s2_signals

import "sort"

// PercentileRank maps valid values to [0,1] by cross-sectional rank.
// Ties share the average rank; a single valid value maps to 0.5.
// Invalid entries come back as (0, false).
func PercentileRank(values []float64, valid []bool) []float64 {
	idx := make([]int, 0, len(values))
	for i, ok := range valid {
		if ok {
			idx = append(idx, i)
		}
	}
	out := make([]float64, len(values))
	n := len(idx)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[idx[0]] = 0.5
		return out
	}

	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	for start := 0; start < n; {
		end := start
		for end+1 < n && values[idx[end+1]] == values[idx[start]] {
			end++
		}
		// 0-based 평균 순위
		avg := float64(start+end) / 2
		for k := start; k <= end; k++ {
			out[idx[k]] = avg / float64(n-1)
		}
		start = end + 1
	}
	return out
}
