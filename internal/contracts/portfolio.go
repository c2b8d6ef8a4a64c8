package contracts

import (
	"sort"
	"time"
)

// WeightTolerance 비중 합계 허용 오차
const WeightTolerance = 1e-9

// TargetWeights represents the target allocation passed from S3 to S4
// ⭐ SSOT: S3 → S4 목표 비중 전달
// 0 ≤ w ≤ 1, Σw ≤ 1 (나머지는 현금)
type TargetWeights struct {
	Date    time.Time          `json:"date"`
	Weights map[string]float64 `json:"weights"`
}

// Total returns the sum of all weights
func (t TargetWeights) Total() float64 {
	total := 0.0
	for _, w := range t.Weights {
		total += w
	}
	return total
}

// Cash returns the implied cash weight
func (t TargetWeights) Cash() float64 {
	c := 1 - t.Total()
	if c < 0 {
		return 0
	}
	return c
}

// IDs returns instrument IDs with positive weight, sorted
func (t TargetWeights) IDs() []string {
	ids := make([]string, 0, len(t.Weights))
	for id, w := range t.Weights {
		if w > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Valid checks non-negativity and the sum bound
func (t TargetWeights) Valid() bool {
	for _, w := range t.Weights {
		if w < -WeightTolerance || w > 1+WeightTolerance || w != w {
			return false
		}
	}
	return t.Total() <= 1+WeightTolerance
}

// Holding 보유 포지션
type Holding struct {
	Weight      float64 `json:"weight"`
	EntryPrice  float64 `json:"entry_price"`
	LastPrice   float64 `json:"last_price"`
	MissingDays int     `json:"missing_days"` // 연속 가격 누락 일수
}

// PortfolioState 시뮬레이터 한 실행이 소유하는 상태
// ⭐ SSOT: 날짜 루프를 따라 전달되는 유일한 가변 상태
type PortfolioState struct {
	Holdings      map[string]*Holding `json:"holdings"`
	Cash          float64             `json:"cash"`
	LastRebalance time.Time           `json:"last_rebalance"`
}

// NewPortfolioState returns an all-cash state
func NewPortfolioState() *PortfolioState {
	return &PortfolioState{
		Holdings: make(map[string]*Holding),
		Cash:     1.0,
	}
}

// Weights returns current weights keyed by instrument
func (p *PortfolioState) Weights() map[string]float64 {
	out := make(map[string]float64, len(p.Holdings))
	for id, h := range p.Holdings {
		out[id] = h.Weight
	}
	return out
}

// Invested returns the total held weight
func (p *PortfolioState) Invested() float64 {
	total := 0.0
	for _, h := range p.Holdings {
		total += h.Weight
	}
	return total
}

// IDs returns held instruments, sorted
func (p *PortfolioState) IDs() []string {
	ids := make([]string, 0, len(p.Holdings))
	for id := range p.Holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close removes a position and moves its weight to cash
func (p *PortfolioState) Close(id string) float64 {
	h, ok := p.Holdings[id]
	if !ok {
		return 0
	}
	delete(p.Holdings, id)
	p.Cash += h.Weight
	return h.Weight
}
