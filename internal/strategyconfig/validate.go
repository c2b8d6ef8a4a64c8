package strategyconfig

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

func invalid(field, message string) error {
	return &contracts.ConfigurationError{Field: field, Message: message}
}

// Validate checks all required constraints
// 실패 시 *contracts.ConfigurationError 반환 (실행 중단)
func Validate(cfg *Config) error {
	// === Run ===
	start, err := time.Parse(DateLayout, cfg.Run.Start)
	if err != nil {
		return invalid("run.start", "must be YYYY-MM-DD")
	}
	end, err := time.Parse(DateLayout, cfg.Run.End)
	if err != nil {
		return invalid("run.end", "must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return invalid("run", "end must not be before start")
	}
	if cfg.Run.WarmupDays < 0 {
		return invalid("run.warmup_days", "must be >= 0")
	}

	// === Strategy ===
	switch cfg.Strategy.Kind {
	case contracts.KindFixed:
		if cfg.Strategy.Fixed.TopK < 1 {
			return invalid("strategy.fixed.top_k", "must be >= 1")
		}
		if cfg.Strategy.Fixed.Weighting != "equal" && cfg.Strategy.Fixed.Weighting != "score" {
			return invalid("strategy.fixed.weighting", "must be equal or score")
		}
	case contracts.KindDynamic:
		d := cfg.Strategy.Dynamic
		if err := validatePctRange(d.Threshold, "strategy.dynamic.threshold"); err != nil {
			return err
		}
		if d.MaxHoldings < 1 {
			return invalid("strategy.dynamic.max_holdings", "must be >= 1")
		}
		if err := validatePctRange(d.Blend, "strategy.dynamic.blend"); err != nil {
			return err
		}
		if d.Lookback < 2 {
			return invalid("strategy.dynamic.lookback", "must be >= 2")
		}
		if d.Ridge < 0 {
			return invalid("strategy.dynamic.ridge", "must be >= 0")
		}
	default:
		return invalid("strategy.kind", "must be fixed or dynamic")
	}

	// === Allocation ===
	a := cfg.Allocation
	if a.MaxWeightChange <= 0 || a.MaxWeightChange > 1 {
		return invalid("allocation.max_weight_change", "must be in (0, 1]")
	}
	if a.CashReserve < 0 || a.CashReserve >= 1 {
		return invalid("allocation.cash_reserve", "must be in [0, 1)")
	}
	if err := validatePctRange(a.MinWeight, "allocation.min_weight"); err != nil {
		return err
	}
	if a.MinEligible < 0 {
		return invalid("allocation.min_eligible", "must be >= 0")
	}
	if a.OnInfeasible != "cash" && a.OnInfeasible != "fail" {
		return invalid("allocation.on_infeasible", "must be cash or fail")
	}

	// === Costs ===
	if cfg.Costs.Slippage < 0 {
		return invalid("costs.slippage", "must be >= 0")
	}
	if cfg.Costs.Fee < 0 {
		return invalid("costs.fee", "must be >= 0")
	}

	// === Risk ===
	if cfg.Risk.StopLoss < 0 || cfg.Risk.StopLoss >= 1 {
		return invalid("risk.stop_loss", "must be in [0, 1)")
	}
	if cfg.Risk.TakeProfit < 0 {
		return invalid("risk.take_profit", "must be >= 0")
	}
	if cfg.Risk.MaxMissingDays < 1 {
		return invalid("risk.max_missing_days", "must be >= 1")
	}

	// === Rebalance ===
	switch cfg.Rebalance.Frequency {
	case "daily", "weekly", "monthly":
	case "every_n":
		if cfg.Rebalance.Interval < 1 {
			return invalid("rebalance.interval", "must be >= 1 for every_n")
		}
	default:
		return invalid("rebalance.frequency", "must be daily, weekly, monthly or every_n")
	}

	// === Scoring ===
	s := cfg.Scoring
	switch s.Source {
	case "computed":
		if s.MomentumWindow < 1 || s.VolatilityWindow < 2 || s.VolumeWindow < 1 {
			return invalid("scoring", "windows must be positive (volatility_window >= 2)")
		}
		if s.MinHistory < 1 {
			return invalid("scoring.min_history", "must be >= 1")
		}
		if s.Weights.Momentum < 0 || s.Weights.Volatility < 0 || s.Weights.Liquidity < 0 {
			return invalid("scoring.weights", "must be >= 0")
		}
		if err := validateWeightsSum([]float64{s.Weights.Momentum, s.Weights.Volatility, s.Weights.Liquidity}, 1.0, 1e-6); err != nil {
			return invalid("scoring.weights", err.Error())
		}
	case "file":
		if s.File == "" {
			return invalid("scoring.file", "required when source=file")
		}
	default:
		return invalid("scoring.source", "must be computed or file")
	}

	// === Timeouts ===
	for field, v := range map[string]string{"timeouts.fetch": cfg.Timeouts.Fetch, "timeouts.solve": cfg.Timeouts.Solve} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return invalid(field, "must be a positive duration")
		}
	}

	// === Output ===
	if p := cfg.Output.Precision; p != nil && (*p < -1 || *p > 17) {
		return invalid("output.precision", "must be -1 or in [0, 17]")
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 비중 변화 한도가 작으면 목표 비중 도달까지 여러 번의 리밸런싱이 필요
	if cfg.Allocation.MaxWeightChange < 0.02 {
		warnings = append(warnings, Warning{
			Code:    "SLOW_CONVERGENCE",
			Message: "max_weight_change < 2%: 목표 비중 도달에 여러 리밸런싱 필요",
		})
	}

	// 비용 0 가정 경고
	if cfg.Costs.PerUnit() == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_COST",
			Message: "slippage + fee = 0: 거래비용 미반영",
		})
	}

	// 일별 리밸런싱은 회전율 증가
	if cfg.Rebalance.Frequency == "daily" {
		warnings = append(warnings, Warning{
			Code:    "HIGH_TURNOVER",
			Message: "일별 리밸런싱: 거래비용 증가 우려",
		})
	}

	if cfg.Strategy.Kind == contracts.KindDynamic && cfg.Strategy.Dynamic.Lookback < 20 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_LOOKBACK",
			Message: "lookback < 20: 공분산 추정 불안정",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validatePctRange는 비율 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 || math.IsNaN(pct) {
		return invalid(field, "must be in range [0, 1]")
	}
	return nil
}
