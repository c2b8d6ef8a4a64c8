package portfolio

import (
	"context"

	"github.com/wonny/stockbt/internal/contracts"
)

// Weighting modes
const (
	WeightingEqual = "equal"
	WeightingScore = "score"
)

// FixedHolding holds the top-K instruments by score
type FixedHolding struct {
	topK      int
	weighting string
}

// NewFixedHolding creates a fixed top-K strategy
func NewFixedHolding(topK int, weighting string) (*FixedHolding, error) {
	if topK < 1 {
		return nil, &contracts.ConfigurationError{Field: "strategy.fixed.top_k", Message: "must be at least 1"}
	}
	if weighting == "" {
		weighting = WeightingEqual
	}
	if weighting != WeightingEqual && weighting != WeightingScore {
		return nil, &contracts.ConfigurationError{Field: "strategy.fixed.weighting", Message: "must be equal or score"}
	}
	return &FixedHolding{topK: topK, weighting: weighting}, nil
}

// Name returns the strategy name
func (f *FixedHolding) Name() string { return "fixed_top_k" }

// Kind returns the strategy kind
func (f *FixedHolding) Kind() contracts.StrategyKind { return contracts.KindFixed }

// Lookback is zero: no return history needed
func (f *FixedHolding) Lookback() int { return 0 }

// TargetWeights selects the first K of the ranked eligible list
func (f *FixedHolding) TargetWeights(_ context.Context, in contracts.AllocationInput) (map[string]float64, error) {
	n := f.topK
	if len(in.Eligible) < n {
		n = len(in.Eligible)
	}
	top := in.Eligible[:n]

	ids := make([]string, len(top))
	for i, r := range top {
		ids[i] = r.InstrumentID
	}
	if f.weighting == WeightingEqual {
		return equalWeight(ids), nil
	}

	// 점수 비례, 점수 합 0 이면 동일 비중
	weights := make(map[string]float64, len(top))
	for _, r := range top {
		weights[r.InstrumentID] = r.Score
	}
	if !normalize(weights) {
		return equalWeight(ids), nil
	}
	return weights, nil
}
