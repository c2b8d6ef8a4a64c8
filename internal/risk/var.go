package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence 성과 지표에 쓰는 신뢰수준
const DefaultConfidence = 0.95

// TailRisk VaR 계산 결과
// ⭐ SSOT: VaR/CVaR는 손실을 양수로 표현
// - VaR=0.05 → 95% 신뢰수준에서 하루 최대 5% 손실
// - CVaR=0.07 → 하위 5% 구간의 평균 손실 7%
type TailRisk struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// Historical 과거 수익률 기반 VaR/CVaR (Historical Simulation)
// 입력 슬라이스는 변경하지 않음
func Historical(returns []float64, confidence float64) TailRisk {
	out := TailRisk{Confidence: confidence}
	if len(returns) == 0 {
		return out
	}

	// 오름차순: 손실이 앞에
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// 95% VaR = 하위 5% 백분위수
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	out.VaR = loss(sorted[idx])

	// CVaR: VaR 인덱스까지의 tail 평균
	out.CVaR = loss(stat.Mean(sorted[:idx+1], nil))
	return out
}

// Parametric 정규분포 가정 VaR/CVaR
func Parametric(returns []float64, confidence float64) TailRisk {
	out := TailRisk{Confidence: confidence}
	if len(returns) < 2 {
		return out
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		out.VaR = loss(mean)
		out.CVaR = out.VaR
		return out
	}

	unit := distuv.UnitNormal
	z := unit.Quantile(confidence)
	out.VaR = math.Max(z*std-mean, 0)
	// Expected shortfall: σ·φ(z)/(1-c) - μ
	out.CVaR = math.Max(std*unit.Prob(z)/(1-confidence)-mean, 0)
	return out
}

func loss(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
