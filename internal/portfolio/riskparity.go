package portfolio

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	volFloor        = 1e-8
	riskParityTol   = 1e-10
	riskParityIters = 1000
)

// RiskParityWeights solves equal risk contribution weights
// 역변동성으로 시작하는 순환 좌표 하강, 스윕마다 ctx 확인
//
//	min ½·wᵀΣw − b·Σ ln wᵢ  →  wᵢ = (−cᵢ + sqrt(cᵢ² + 4·Σᵢᵢ·b)) / (2·Σᵢᵢ),  cᵢ = Σ_{j≠i} Σᵢⱼ wⱼ
func RiskParityWeights(ctx context.Context, cov *mat.SymDense) ([]float64, error) {
	n := cov.SymmetricDim()
	vol := volatilities(cov, volFloor)

	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / vol[i]
	}
	if n > 1 {
		b := 1.0 / float64(n)
		for sweep := 0; sweep < riskParityIters; sweep++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			maxChange := 0.0
			for i := 0; i < n; i++ {
				c := 0.0
				for j := 0; j < n; j++ {
					if j != i {
						c += cov.At(i, j) * w[j]
					}
				}
				sii := vol[i] * vol[i]
				next := (-c + math.Sqrt(c*c+4*sii*b)) / (2 * sii)
				maxChange = math.Max(maxChange, math.Abs(next-w[i])/math.Max(next, volFloor))
				w[i] = next
			}
			if maxChange < riskParityTol {
				break
			}
		}
	}

	total := 0.0
	for _, v := range w {
		total += v
	}
	for i := range w {
		w[i] /= total
	}
	return w, nil
}

// RiskContributions returns each weight's share of portfolio variance
func RiskContributions(w []float64, cov *mat.SymDense) []float64 {
	n := len(w)
	wv := mat.NewVecDense(n, append([]float64(nil), w...))
	var sw mat.VecDense
	sw.MulVec(cov, wv)
	variance := mat.Dot(wv, &sw)
	rc := make([]float64, n)
	if variance <= 0 {
		return rc
	}
	for i := range rc {
		rc[i] = w[i] * sw.AtVec(i) / variance
	}
	return rc
}
