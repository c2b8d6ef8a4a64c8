package portfolio

import (
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
)

// 비중 판정 허용 오차
const weightEps = 1e-12

// Infeasible policies
const (
	OnInfeasibleCash = "cash" // 현금 보유 (이벤트 기록)
	OnInfeasibleFail = "fail" // 실행 실패
)

// Constraints defines post-processing constraints
// ⭐ SSOT: 포트폴리오 제약조건은 여기서만
type Constraints struct {
	MaxWeightChange float64 // 리밸런싱당 종목별 비중 변화 한도 (0.0 ~ 1.0]
	CashReserve     float64 // 현금 보유 비중 (0.0 ~ 1.0)
	MinWeight       float64 // 이 값 미만 비중은 0 처리
	MinEligible     int     // 최소 편입 종목 수
	OnInfeasible    string  // cash | fail
}

// ConstraintsFrom maps the run allocation section
func ConstraintsFrom(a strategyconfig.Allocation) Constraints {
	return Constraints{
		MaxWeightChange: a.MaxWeightChange,
		CashReserve:     a.CashReserve,
		MinWeight:       a.MinWeight,
		MinEligible:     a.MinEligible,
		OnInfeasible:    a.OnInfeasible,
	}
}

// DefaultConstraints returns default constraint configuration
func DefaultConstraints() Constraints {
	return ConstraintsFrom(strategyconfig.Default().Allocation)
}

// Validate checks constraint ranges
func (c Constraints) Validate() error {
	switch {
	case c.MaxWeightChange <= 0 || c.MaxWeightChange > 1:
		return &contracts.ConfigurationError{Field: "allocation.max_weight_change", Message: "must be in (0, 1]"}
	case c.CashReserve < 0 || c.CashReserve >= 1:
		return &contracts.ConfigurationError{Field: "allocation.cash_reserve", Message: "must be in [0, 1)"}
	case c.MinWeight < 0 || c.MinWeight >= 1:
		return &contracts.ConfigurationError{Field: "allocation.min_weight", Message: "must be in [0, 1)"}
	case c.MinEligible < 0:
		return &contracts.ConfigurationError{Field: "allocation.min_eligible", Message: "must not be negative"}
	case c.OnInfeasible != OnInfeasibleCash && c.OnInfeasible != OnInfeasibleFail:
		return &contracts.ConfigurationError{Field: "allocation.on_infeasible", Message: "must be cash or fail"}
	}
	return nil
}

// Invested returns the target invested fraction
func (c Constraints) Invested() float64 {
	return 1.0 - c.CashReserve
}
