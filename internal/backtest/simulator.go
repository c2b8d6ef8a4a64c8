package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/logger"
)

// DefaultMaxMissingDays 연속 가격 누락 시 강제 청산 일수
const DefaultMaxMissingDays = 3

// SimConfig 시뮬레이터 비용/리스크 설정 (비율)
type SimConfig struct {
	Slippage       float64
	Fee            float64
	StopLoss       float64 // 0 = 비활성
	TakeProfit     float64 // 0 = 비활성
	MaxMissingDays int
}

// costRate returns cost per unit traded
func (c SimConfig) costRate() float64 {
	return c.Slippage + c.Fee
}

// AllocateFunc computes target weights from post-drift current weights
type AllocateFunc func(ctx context.Context, current map[string]float64) (contracts.TargetWeights, []contracts.Event, error)

// Simulator walks one run day by day
// ⭐ SSOT: 백테스팅 시뮬레이션은 여기서만 (PortfolioState 단독 소유)
type Simulator struct {
	ds     *contracts.Dataset
	config SimConfig
	state  *contracts.PortfolioState
	logger *logger.Logger
}

// NewSimulator creates a simulator starting from all cash
func NewSimulator(ds *contracts.Dataset, config SimConfig, log *logger.Logger) *Simulator {
	if config.MaxMissingDays < 1 {
		config.MaxMissingDays = DefaultMaxMissingDays
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Simulator{
		ds:     ds,
		config: config,
		state:  contracts.NewPortfolioState(),
		logger: log.WithStage(contracts.StageSimulation.ShortName()),
	}
}

// State returns the current portfolio state
func (s *Simulator) State() *contracts.PortfolioState {
	return s.state
}

// Step simulates calendar index day
// 순서: 가격 반영 (drift) → 누락 강제 청산 → 손절/익절 (비리밸런싱일) → 리밸런싱
func (s *Simulator) Step(ctx context.Context, day int, rebalance bool, allocate AllocateFunc) (contracts.DayRecord, error) {
	date := s.ds.Calendar[day]
	rec := contracts.DayRecord{Date: date, Rebalanced: rebalance}
	rate := s.config.costRate()

	// 1. 전일 비중 × 당일 수익률, 금액은 전일 자산 = 1 기준
	amounts := make(map[string]float64, len(s.state.Holdings))
	cash := s.state.Cash
	gross := 0.0
	for _, id := range s.state.IDs() {
		h := s.state.Holdings[id]
		i, ok := s.ds.InstrumentIndex(id)
		if ok && s.ds.Bars[day][i].HasData() {
			px := s.ds.Bars[day][i].Close
			r := px/h.LastPrice - 1
			gross += h.Weight * r
			amounts[id] = h.Weight * (1 + r)
			h.LastPrice = px
			h.MissingDays = 0
			continue
		}

		// 가격 누락: 비중 유지, 수익률 0
		h.MissingDays++
		amounts[id] = h.Weight
		if h.MissingDays >= s.config.MaxMissingDays {
			cost := h.Weight * rate
			rec.Cost += cost
			cash += amounts[id]
			delete(amounts, id)
			delete(s.state.Holdings, id)
			rec.Events = append(rec.Events, contracts.Event{
				Type:         contracts.EventForcedClose,
				InstrumentID: id,
				Message:      fmt.Sprintf("no price for %d consecutive days, closed at last price %g", h.MissingDays, h.LastPrice),
			})
			s.logger.WithDate(date).WithFields(map[string]interface{}{
				"instrument": id,
				"missing":    h.MissingDays,
				"last_price": h.LastPrice,
			}).Warn("Position force-closed after consecutive missing prices")
			continue
		}
		rec.Events = append(rec.Events, contracts.Event{
			Type:         contracts.EventMissingPrice,
			InstrumentID: id,
			Message:      fmt.Sprintf("missing price, weight carried (%d/%d)", h.MissingDays, s.config.MaxMissingDays),
		})
		s.logger.WithDate(date).WithFields(map[string]interface{}{
			"instrument": id,
			"missing":    h.MissingDays,
		}).Warn("Missing price for held instrument")
	}
	rec.GrossReturn = gross

	// 2. 손절/익절: 리밸런싱일이 아닐 때만, 당일 종가 기준
	if !rebalance {
		for _, id := range sortedKeys(amounts) {
			h := s.state.Holdings[id]
			if h.MissingDays > 0 || h.EntryPrice <= 0 {
				continue
			}
			move := h.LastPrice/h.EntryPrice - 1
			var event contracts.EventType
			switch {
			case s.config.StopLoss > 0 && move <= -s.config.StopLoss:
				event = contracts.EventStopLoss
			case s.config.TakeProfit > 0 && move >= s.config.TakeProfit:
				event = contracts.EventTakeProfit
			default:
				continue
			}
			rec.Cost += amounts[id] * rate
			cash += amounts[id]
			delete(amounts, id)
			delete(s.state.Holdings, id)
			rec.Events = append(rec.Events, contracts.Event{
				Type:         event,
				InstrumentID: id,
				Message:      fmt.Sprintf("move %.4f since entry %g", move, h.EntryPrice),
			})
		}
	}

	wealth := 1 + gross

	// 3. 리밸런싱: 회전율 × (슬리피지 + 수수료) 를 당일 수익률에서 한 번만 차감
	if rebalance {
		current := make(map[string]float64, len(amounts))
		for id, a := range amounts {
			if wealth > 0 {
				current[id] = a / wealth
			}
		}
		target, events, err := allocate(ctx, current)
		if err != nil {
			return rec, err
		}
		rec.Events = append(rec.Events, events...)

		// 회전율은 실제 반영된 비중 기준 (가격 없는 목표 종목은 현금 유지, 비용 없음)
		applied := s.applyTarget(day, target)
		turnover := 0.0
		for _, id := range unionKeys(current, applied) {
			turnover += math.Abs(applied[id] - current[id])
		}
		rec.Turnover = turnover
		rec.Cost += turnover * rate
		s.state.LastRebalance = date
	} else {
		// 비용 차감 후 비중 재정규화
		end := wealth - rec.Cost
		if end <= 0 {
			return rec, fmt.Errorf("%s: portfolio wealth exhausted on %s", contracts.StageSimulation.ShortName(), date.Format("2006-01-02"))
		}
		for id, a := range amounts {
			s.state.Holdings[id].Weight = a / end
		}
		s.state.Cash = (cash - rec.Cost) / end
		if s.state.Cash < 0 {
			s.state.Cash = 0
		}
	}

	// 전액 현금일 때 수익률 0 (당일 비용만 차감)
	rec.DailyReturn = gross - rec.Cost
	rec.Cash = s.state.Cash
	rec.Holdings = s.state.Weights()
	return rec, nil
}

// applyTarget replaces holdings with target weights and returns the weights applied
// 신규 종목 진입가는 당일 종가, 기존 종목은 진입가 유지
func (s *Simulator) applyTarget(day int, target contracts.TargetWeights) map[string]float64 {
	next := make(map[string]*contracts.Holding, len(target.Weights))
	applied := make(map[string]float64, len(target.Weights))
	invested := 0.0
	for _, id := range target.IDs() {
		w := target.Weights[id]
		if h, ok := s.state.Holdings[id]; ok {
			h.Weight = w
			next[id] = h
			applied[id] = w
			invested += w
			continue
		}
		i, ok := s.ds.InstrumentIndex(id)
		if !ok || !s.ds.Bars[day][i].HasData() {
			s.logger.WithDate(s.ds.Calendar[day]).WithField("instrument", id).Warn("Target instrument has no price, kept in cash")
			continue
		}
		px := s.ds.Bars[day][i].Close
		next[id] = &contracts.Holding{Weight: w, EntryPrice: px, LastPrice: px}
		applied[id] = w
		invested += w
	}
	s.state.Holdings = next
	s.state.Cash = math.Max(0, 1-invested)
	return applied
}

func sortedKeys(m map[string]float64) []string {
	return unionKeys(m, nil)
}

func unionKeys(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]float64{a, b} {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
