package s2_signals

import (
	"github.com/wonny/stockbt/internal/contracts"
)

// MomentumCalculator close-to-close return over a window
// ⭐ SSOT: 모멘텀 팩터 계산은 여기서만
type MomentumCalculator struct {
	Window int
}

// Name returns the feature name
func (c *MomentumCalculator) Name() string { return "momentum" }

// Calculate returns close[day] / close[day-Window] - 1
// 기준일 종가가 없으면 직전 유효 종가 사용
func (c *MomentumCalculator) Calculate(ds *contracts.Dataset, day, inst int) (float64, bool) {
	if day-c.Window < 0 {
		return 0, false
	}
	base, ok := lastCloseAtOrBefore(ds, inst, day-c.Window)
	if !ok || base <= 0 {
		return 0, false
	}
	return ds.Close(day, inst)/base - 1, true
}
