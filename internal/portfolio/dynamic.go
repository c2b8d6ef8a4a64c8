package portfolio

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/logger"
)

// DefaultSolveTimeout 최적화 제한 시간
const DefaultSolveTimeout = 5 * time.Second

// DynamicConfig 동적 보유 설정
type DynamicConfig struct {
	Threshold    float64       // 편입 최소 점수
	MaxHoldings  int           // 최대 종목 수 (점수 순)
	Blend        float64       // MPT 비율 (1.0 = MPT only, 0.0 = risk parity only)
	Lookback     int           // 공분산 추정 거래일 수
	Ridge        float64       // 공분산 대각 보정
	SolveTimeout time.Duration // 최적화 제한 시간
}

// DynamicHolding blends mean-variance and risk parity weights
// over instruments scoring at or above a threshold
type DynamicHolding struct {
	config DynamicConfig
	solver func(ctx context.Context, ids []string, trailing map[string][]float64) ([]float64, error)
	logger *logger.Logger
}

// NewDynamicHolding creates a dynamic strategy
func NewDynamicHolding(config DynamicConfig, log *logger.Logger) (*DynamicHolding, error) {
	switch {
	case config.Threshold < 0 || config.Threshold > 1:
		return nil, &contracts.ConfigurationError{Field: "strategy.dynamic.threshold", Message: "must be in [0, 1]"}
	case config.MaxHoldings < 1:
		return nil, &contracts.ConfigurationError{Field: "strategy.dynamic.max_holdings", Message: "must be at least 1"}
	case config.Blend < 0 || config.Blend > 1:
		return nil, &contracts.ConfigurationError{Field: "strategy.dynamic.blend", Message: "must be in [0, 1]"}
	case config.Lookback < 2:
		return nil, &contracts.ConfigurationError{Field: "strategy.dynamic.lookback", Message: "must be at least 2"}
	case config.Ridge < 0:
		return nil, &contracts.ConfigurationError{Field: "strategy.dynamic.ridge", Message: "must not be negative"}
	}
	if config.SolveTimeout <= 0 {
		config.SolveTimeout = DefaultSolveTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	d := &DynamicHolding{config: config, logger: log.WithStage(contracts.StagePortfolio.ShortName())}
	d.solver = d.solve
	return d, nil
}

// Name returns the strategy name
func (d *DynamicHolding) Name() string { return "dynamic_mpt_rp" }

// Kind returns the strategy kind
func (d *DynamicHolding) Kind() contracts.StrategyKind { return contracts.KindDynamic }

// Lookback returns the trailing window needed
func (d *DynamicHolding) Lookback() int { return d.config.Lookback }

// Select returns instruments scoring above threshold, best first, up to MaxHoldings
func (d *DynamicHolding) Select(eligible []contracts.RankedScore) []string {
	ids := make([]string, 0, d.config.MaxHoldings)
	for _, r := range eligible {
		if r.Score <= d.config.Threshold {
			continue
		}
		ids = append(ids, r.InstrumentID)
		if len(ids) == d.config.MaxHoldings {
			break
		}
	}
	return ids
}

// TargetWeights computes Blend·MPT + (1−Blend)·RiskParity within SolveTimeout
func (d *DynamicHolding) TargetWeights(ctx context.Context, in contracts.AllocationInput) (map[string]float64, error) {
	ids := d.Select(in.Eligible)
	if len(ids) <= 1 {
		return equalWeight(ids), nil
	}

	solveCtx, cancel := context.WithTimeout(ctx, d.config.SolveTimeout)
	defer cancel()

	type result struct {
		w   []float64
		err error
	}
	done := make(chan result, 1)
	go func() {
		w, err := d.solver(solveCtx, ids, in.Trailing)
		done <- result{w, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-solveCtx.Done():
		res.err = solveCtx.Err()
	}
	if res.err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, &contracts.TimeoutError{
				Stage:     contracts.StagePortfolio,
				Operation: "dynamic weight solve",
				Date:      in.Date,
				Limit:     d.config.SolveTimeout,
				Cause:     res.err,
			}
		}
		return nil, res.err
	}

	weights := make(map[string]float64, len(ids))
	for i, id := range ids {
		if res.w[i] > 0 {
			weights[id] = res.w[i]
		}
	}
	if !normalize(weights) {
		return equalWeight(ids), nil
	}
	return weights, nil
}

func (d *DynamicHolding) solve(ctx context.Context, ids []string, trailing map[string][]float64) ([]float64, error) {
	est := estimateMoments(ids, trailing)
	if est.cov == nil {
		// 이력 부족: 동일 비중
		d.logger.WithFields(map[string]interface{}{
			"instruments": len(ids),
			"rows":        est.rows,
		}).Warn("Not enough complete return rows, using equal weight")
		w := make([]float64, len(ids))
		for i := range w {
			w[i] = 1 / float64(len(ids))
		}
		return w, nil
	}

	blend := d.config.Blend
	w := make([]float64, len(ids))
	if blend > 0 {
		mpt := TangencyWeights(est.mean, est.cov, d.config.Ridge)
		for i := range w {
			w[i] += blend * mpt[i]
		}
	}
	if blend < 1 {
		rp, err := RiskParityWeights(ctx, est.cov)
		if err != nil {
			return nil, err
		}
		for i := range w {
			w[i] += (1 - blend) * rp[i]
		}
	}
	return w, ctx.Err()
}
