package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/logger"
)

// Strategy produces base weights summing to 1 over the selected instruments
// 후처리 (변화 한도, 재정규화, 소액 제거) 는 Allocator 담당
type Strategy interface {
	Name() string
	Kind() contracts.StrategyKind
	Lookback() int
	TargetWeights(ctx context.Context, in contracts.AllocationInput) (map[string]float64, error)
}

// NewStrategy creates the strategy configured for the run
func NewStrategy(cfg strategyconfig.Strategy, solveTimeout time.Duration, log *logger.Logger) (Strategy, error) {
	switch cfg.Kind {
	case contracts.KindFixed:
		return NewFixedHolding(cfg.Fixed.TopK, cfg.Fixed.Weighting)
	case contracts.KindDynamic:
		return NewDynamicHolding(DynamicConfig{
			Threshold:    cfg.Dynamic.Threshold,
			MaxHoldings:  cfg.Dynamic.MaxHoldings,
			Blend:        cfg.Dynamic.Blend,
			Lookback:     cfg.Dynamic.Lookback,
			Ridge:        cfg.Dynamic.Ridge,
			SolveTimeout: solveTimeout,
		}, log)
	default:
		return nil, &contracts.ConfigurationError{Field: "strategy.kind", Message: fmt.Sprintf("unknown strategy %q", cfg.Kind)}
	}
}

// equalWeight assigns 1/n to each id
func equalWeight(ids []string) map[string]float64 {
	weights := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return weights
	}
	w := 1.0 / float64(len(ids))
	for _, id := range ids {
		weights[id] = w
	}
	return weights
}

// normalize scales values to sum 1; returns false when the sum is not positive
func normalize(weights map[string]float64) bool {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return false
	}
	for id := range weights {
		weights[id] /= total
	}
	return true
}
