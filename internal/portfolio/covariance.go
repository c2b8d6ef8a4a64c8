package portfolio

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// estimate holds trailing return moments of the selected instruments
type estimate struct {
	mean []float64
	cov  *mat.SymDense
	rows int
}

// estimateMoments computes mean and sample covariance from complete rows only
// 하나라도 결측(NaN)인 날은 제외
func estimateMoments(ids []string, trailing map[string][]float64) estimate {
	n := len(ids)
	length := 0
	for _, id := range ids {
		if l := len(trailing[id]); l > length {
			length = l
		}
	}

	data := make([]float64, 0, length*n)
	rows := 0
	for t := 0; t < length; t++ {
		complete := true
		for _, id := range ids {
			series := trailing[id]
			if t >= len(series) || math.IsNaN(series[t]) || math.IsInf(series[t], 0) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		for _, id := range ids {
			data = append(data, trailing[id][t])
		}
		rows++
	}

	est := estimate{mean: make([]float64, n), rows: rows}
	if rows < 2 {
		return est
	}
	x := mat.NewDense(rows, n, data)
	for j := 0; j < n; j++ {
		est.mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	est.cov = mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(est.cov, x, nil)
	return est
}

// volatilities returns sqrt of the covariance diagonal, floored
func volatilities(cov *mat.SymDense, floor float64) []float64 {
	n := cov.SymmetricDim()
	vol := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		vol[i] = math.Max(math.Sqrt(v), floor)
	}
	return vol
}
