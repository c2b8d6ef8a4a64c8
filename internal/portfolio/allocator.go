package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/logger"
)

// Allocator implements S3: strategy weights followed by post-processing
// ⭐ SSOT: S3 목표 비중 후처리는 여기서만
//
// 후처리 순서:
//  (a) 직전 비중 대비 변화 한도 [prev−cap, prev+cap] ∩ [0,1] 로 클램프
//  (b) 밴드 안에서 투자 비중 (1 − CashReserve) 으로 재정규화, 도달 불가 시 잔여는 현금
//  (c) MinWeight 미만 비중 제거 (0 이 밴드 안일 때만) 후 비례 재분배
type Allocator struct {
	strategy    Strategy
	constraints Constraints
	logger      *logger.Logger
}

// NewAllocator creates a new allocator
func NewAllocator(strategy Strategy, constraints Constraints, log *logger.Logger) (*Allocator, error) {
	if err := constraints.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Allocator{
		strategy:    strategy,
		constraints: constraints,
		logger:      log.WithStage(contracts.StagePortfolio.ShortName()),
	}, nil
}

// Strategy returns the wrapped strategy
func (a *Allocator) Strategy() Strategy {
	return a.strategy
}

// Allocate computes target weights for a rebalance day
func (a *Allocator) Allocate(ctx context.Context, in contracts.AllocationInput, previous map[string]float64) (contracts.TargetWeights, []contracts.Event, error) {
	var events []contracts.Event

	base, err := a.strategy.TargetWeights(ctx, in)
	if err != nil {
		return contracts.TargetWeights{}, nil, fmt.Errorf("%s weights: %w", a.strategy.Name(), err)
	}

	selected := 0
	for _, w := range base {
		if w > weightEps {
			selected++
		}
	}
	if selected < a.constraints.MinEligible || selected == 0 {
		infeasible := &contracts.InfeasibleAllocationError{
			Date:     in.Date,
			Eligible: selected,
			Required: max(a.constraints.MinEligible, 1),
		}
		if a.constraints.OnInfeasible == OnInfeasibleFail {
			return contracts.TargetWeights{}, nil, infeasible
		}
		// 현금 보유: 변화 한도 안에서 현금 쪽으로 이동
		events = append(events, contracts.Event{Type: contracts.EventInfeasible, Message: infeasible.Error()})
		a.logger.WithFields(map[string]interface{}{
			"date":     in.Date.Format("2006-01-02"),
			"selected": selected,
			"required": infeasible.Required,
		}).Warn("Allocation infeasible, moving to cash")
		base = map[string]float64{}
	}

	desired := make(map[string]float64, len(base))
	for id, w := range base {
		desired[id] = w * a.constraints.Invested()
	}

	weights := PostProcess(desired, previous, a.constraints)

	target := contracts.TargetWeights{Date: in.Date, Weights: weights}
	if !target.Valid() {
		return contracts.TargetWeights{}, nil, fmt.Errorf("post-processed weights invalid on %s: total %.12f",
			in.Date.Format("2006-01-02"), target.Total())
	}

	a.logger.WithFields(map[string]interface{}{
		"date":      in.Date.Format("2006-01-02"),
		"eligible":  len(in.Eligible),
		"selected":  selected,
		"positions": len(weights),
		"invested":  target.Total(),
	}).Debug("Target weights allocated")

	return target, events, nil
}

// PostProcess applies cap, renormalisation and min-weight steps
// desired 는 이미 투자 비중으로 스케일된 값
func PostProcess(desired, previous map[string]float64, c Constraints) map[string]float64 {
	ids := unionIDs(desired, previous)
	lo := make(map[string]float64, len(ids))
	hi := make(map[string]float64, len(ids))
	w := make(map[string]float64, len(ids))

	// (a) 변화 한도 클램프
	for _, id := range ids {
		prev := previous[id]
		lo[id] = math.Max(0, prev-c.MaxWeightChange)
		hi[id] = math.Min(1, prev+c.MaxWeightChange)
		w[id] = clamp(desired[id], lo[id], hi[id])
	}

	// (b) 투자 비중으로 재정규화: 증가는 목표 비중 비례, 감소는 현재 비중 비례
	target := c.Invested()
	if sumOf(desired) < target {
		target = sumOf(desired)
	}
	fill(ids, w, lo, hi, target, func(id string, up bool) float64 {
		if up {
			return desired[id]
		}
		return w[id]
	})

	// (c) 소액 비중 제거 후 나머지에 비례 재분배
	if c.MinWeight > 0 {
		freed := 0.0
		for _, id := range ids {
			if w[id] > 0 && w[id] < c.MinWeight && lo[id] == 0 {
				freed += w[id]
				w[id] = 0
			}
		}
		if freed > 0 {
			total := sumOf(w) + freed
			fill(ids, w, lo, hi, total, func(id string, up bool) float64 {
				if w[id] < c.MinWeight {
					return 0
				}
				return w[id]
			})
		}
	}

	out := make(map[string]float64)
	for _, id := range ids {
		if w[id] > weightEps {
			out[id] = w[id]
		}
	}
	return out
}

// fill moves Σw toward target keeping every w inside [lo, hi]
// share 는 방향별 분배 가중치, 0 이면 이동 대상 아님
func fill(ids []string, w, lo, hi map[string]float64, target float64, share func(id string, up bool) float64) {
	for iter := 0; iter <= 2*len(ids)+1; iter++ {
		gap := target - sumOf(w)
		if math.Abs(gap) <= weightEps {
			return
		}
		up := gap > 0

		totalShare := 0.0
		movable := make([]string, 0, len(ids))
		for _, id := range ids {
			if up && w[id] >= hi[id]-weightEps {
				continue
			}
			if !up && w[id] <= lo[id]+weightEps {
				continue
			}
			if s := share(id, up); s > 0 {
				movable = append(movable, id)
				totalShare += s
			}
		}
		if len(movable) == 0 || totalShare <= 0 {
			return
		}

		shares := make(map[string]float64, len(movable))
		for _, id := range movable {
			shares[id] = share(id, up)
		}
		for _, id := range movable {
			w[id] = clamp(w[id]+gap*shares[id]/totalShare, lo[id], hi[id])
		}
	}
}

// CapViolations returns ids whose change from previous exceeds limit
func CapViolations(weights, previous map[string]float64, limit float64) []string {
	var out []string
	for _, id := range unionIDs(weights, previous) {
		if math.Abs(weights[id]-previous[id]) > limit+contracts.WeightTolerance {
			out = append(out, id)
		}
	}
	return out
}

func unionIDs(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	ids := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]float64{a, b} {
		for id := range m {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// sumOf sums in key order for deterministic rounding
func sumOf(m map[string]float64) float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += m[k]
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
