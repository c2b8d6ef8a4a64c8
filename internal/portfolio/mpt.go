package portfolio

import (
	"gonum.org/v1/gonum/mat"
)

// TangencyWeights returns long-only mean-variance weights w ∝ (Σ + λI)⁻¹ μ
// 음수 비중은 0 처리, 모두 0 이하이면 역분산 비중으로 대체
func TangencyWeights(mean []float64, cov *mat.SymDense, ridge float64) []float64 {
	n := len(mean)
	reg := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if i == j {
				v += ridge
			}
			reg.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(reg) {
		return inverseVariance(cov)
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(n, append([]float64(nil), mean...))); err != nil {
		return inverseVariance(cov)
	}

	w := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		if v := x.AtVec(i); v > 0 {
			w[i] = v
			total += v
		}
	}
	if total <= 0 {
		return inverseVariance(cov)
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

// inverseVariance weights each instrument by 1/σ²
func inverseVariance(cov *mat.SymDense) []float64 {
	vol := volatilities(cov, volFloor)
	w := make([]float64, len(vol))
	total := 0.0
	for i, s := range vol {
		w[i] = 1 / (s * s)
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return w
}
