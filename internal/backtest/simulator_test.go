package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
)

var simStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// priceDataset builds a dataset from close series (NaN = missing)
func priceDataset(closes map[string][]float64) *contracts.Dataset {
	n := 0
	var instruments []contracts.Instrument
	for id, series := range closes {
		instruments = append(instruments, contracts.Instrument{ID: id, AssetClass: contracts.AssetEquity})
		if len(series) > n {
			n = len(series)
		}
	}
	ds := contracts.NewDataset(weekdays(simStart, n), instruments, 0)
	for id, series := range closes {
		i, _ := ds.InstrumentIndex(id)
		for d, c := range series {
			if math.IsNaN(c) {
				continue
			}
			ds.Bars[d][i] = contracts.DailyBar{InstrumentID: id, Date: ds.Calendar[d], Open: c, High: c, Low: c, Close: c, Volume: 1000}
		}
	}
	return ds
}

// target returns an allocate func that always asks for weights
func target(weights map[string]float64) AllocateFunc {
	return func(context.Context, map[string]float64) (contracts.TargetWeights, []contracts.Event, error) {
		return contracts.TargetWeights{Weights: weights}, nil, nil
	}
}

var costs = SimConfig{Slippage: 0.0005, Fee: 0.001}

func TestSimulator_TurnoverCost(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10, 10}})
	sim := NewSimulator(ds, costs, nil)

	rec, err := sim.Step(context.Background(), 0, true, target(map[string]float64{"A": 0.5}))
	require.NoError(t, err)

	// 현금 → A 50%: 회전율 0.5 × 0.0015
	assert.InDelta(t, 0.5, rec.Turnover, 1e-12)
	assert.InDelta(t, 0.00075, rec.Cost, 1e-12)
	assert.InDelta(t, -0.00075, rec.DailyReturn, 1e-12)
	assert.InDelta(t, 0.5, rec.Cash, 1e-12)
	assert.Equal(t, map[string]float64{"A": 0.5}, rec.Holdings)
}

func TestSimulator_Drift(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10, 11}, "B": {20, 20}})
	sim := NewSimulator(ds, SimConfig{}, nil)
	ctx := context.Background()

	_, err := sim.Step(ctx, 0, true, target(map[string]float64{"A": 0.5, "B": 0.5}))
	require.NoError(t, err)

	rec, err := sim.Step(ctx, 1, false, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, rec.GrossReturn, 1e-12)
	assert.InDelta(t, 0.05, rec.DailyReturn, 1e-12)
	assert.InDelta(t, 0.55/1.05, rec.Holdings["A"], 1e-12)
	assert.InDelta(t, 0.5/1.05, rec.Holdings["B"], 1e-12)
	assert.Zero(t, rec.Turnover)
}

func TestSimulator_RebalanceSeesDriftedWeights(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10, 11}, "B": {20, 20}})
	sim := NewSimulator(ds, costs, nil)
	ctx := context.Background()

	_, err := sim.Step(ctx, 0, true, target(map[string]float64{"A": 0.5, "B": 0.5}))
	require.NoError(t, err)

	var seen map[string]float64
	rec, err := sim.Step(ctx, 1, true, func(_ context.Context, current map[string]float64) (contracts.TargetWeights, []contracts.Event, error) {
		seen = current
		return contracts.TargetWeights{Weights: map[string]float64{"A": 0.5, "B": 0.5}}, nil, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.55/1.05, seen["A"], 1e-12)

	turnover := 2 * (0.55/1.05 - 0.5)
	assert.InDelta(t, turnover, rec.Turnover, 1e-12)
	assert.InDelta(t, 0.05-turnover*0.0015, rec.DailyReturn, 1e-12)

	// 기존 보유 종목 진입가 유지
	assert.Equal(t, 10.0, sim.State().Holdings["A"].EntryPrice)
}

func TestSimulator_StopLossAndTakeProfit(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10, 9}, "B": {10, 12}, "C": {10, 10.1}})
	cfg := costs
	cfg.StopLoss = 0.05
	cfg.TakeProfit = 0.15
	sim := NewSimulator(ds, cfg, nil)
	ctx := context.Background()

	_, err := sim.Step(ctx, 0, true, target(map[string]float64{"A": 0.3, "B": 0.3, "C": 0.3}))
	require.NoError(t, err)

	rec, err := sim.Step(ctx, 1, false, nil)
	require.NoError(t, err)

	types := map[string]contracts.EventType{}
	for _, ev := range rec.Events {
		types[ev.InstrumentID] = ev.Type
	}
	assert.Equal(t, contracts.EventStopLoss, types["A"])
	assert.Equal(t, contracts.EventTakeProfit, types["B"])
	assert.NotContains(t, types, "C")

	// 청산 비용: 청산 금액 × 0.0015
	assert.InDelta(t, (0.27+0.36)*0.0015, rec.Cost, 1e-12)
	assert.Equal(t, []string{"C"}, rec.HoldingIDs())
	gross := 0.3*-0.1 + 0.3*0.2 + 0.3*0.01
	assert.InDelta(t, gross-rec.Cost, rec.DailyReturn, 1e-12)
}

func TestSimulator_StopLossSkippedOnRebalanceDay(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10, 8}})
	cfg := costs
	cfg.StopLoss = 0.05
	sim := NewSimulator(ds, cfg, nil)
	ctx := context.Background()

	_, err := sim.Step(ctx, 0, true, target(map[string]float64{"A": 1}))
	require.NoError(t, err)
	rec, err := sim.Step(ctx, 1, true, target(map[string]float64{"A": 1}))
	require.NoError(t, err)

	for _, ev := range rec.Events {
		assert.NotEqual(t, contracts.EventStopLoss, ev.Type)
	}
	assert.Contains(t, rec.Holdings, "A")
}

func TestSimulator_MissingPrices(t *testing.T) {
	nan := math.NaN()
	ds := priceDataset(map[string][]float64{"A": {10, nan, nan, nan, 12}, "B": {10, 10, 10, 10, 10}})
	sim := NewSimulator(ds, costs, nil)
	ctx := context.Background()

	_, err := sim.Step(ctx, 0, true, target(map[string]float64{"A": 0.5, "B": 0.5}))
	require.NoError(t, err)

	for d := 1; d <= 2; d++ {
		rec, err := sim.Step(ctx, d, false, nil)
		require.NoError(t, err)
		require.Len(t, rec.Events, 1)
		assert.Equal(t, contracts.EventMissingPrice, rec.Events[0].Type)
		assert.Zero(t, rec.DailyReturn, "missing price carries at zero return")
		assert.InDelta(t, 0.5, rec.Holdings["A"], 1e-12)
	}

	rec, err := sim.Step(ctx, 3, false, nil)
	require.NoError(t, err)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, contracts.EventForcedClose, rec.Events[0].Type)
	assert.NotContains(t, rec.Holdings, "A")
	assert.InDelta(t, 0.5*0.0015, rec.Cost, 1e-12)
	assert.InDelta(t, (0.5-0.5*0.0015)/(1-0.5*0.0015), rec.Cash, 1e-12)
}

func TestSimulator_AllCash(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10, 20}})
	sim := NewSimulator(ds, costs, nil)
	ctx := context.Background()

	for d := 0; d < 2; d++ {
		rec, err := sim.Step(ctx, d, true, target(nil))
		require.NoError(t, err)
		assert.Zero(t, rec.DailyReturn)
		assert.Equal(t, 1.0, rec.Cash)
		assert.Empty(t, rec.Holdings)
	}
}

func TestSimulator_NewNameWithoutPriceStaysCash(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {math.NaN()}, "B": {10}})
	sim := NewSimulator(ds, SimConfig{}, nil)

	rec, err := sim.Step(context.Background(), 0, true, target(map[string]float64{"A": 0.5, "B": 0.5}))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, rec.HoldingIDs())
	assert.InDelta(t, 0.5, rec.Cash, 1e-12)
}

func TestSimulator_UnpricedTargetNotCharged(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {math.NaN()}, "B": {10}})
	sim := NewSimulator(ds, costs, nil)

	rec, err := sim.Step(context.Background(), 0, true, target(map[string]float64{"A": 0.5, "B": 0.5}))
	require.NoError(t, err)

	// A 는 현금 유지 → 회전율은 B 매수분 0.5 만
	assert.InDelta(t, 0.5, rec.Turnover, 1e-12)
	assert.InDelta(t, 0.00075, rec.Cost, 1e-12)
	assert.InDelta(t, -0.00075, rec.DailyReturn, 1e-12)
	assert.InDelta(t, 1.0, rec.Cash+rec.Holdings["B"], 1e-12)
}

func TestSimulator_AllocateError(t *testing.T) {
	ds := priceDataset(map[string][]float64{"A": {10}})
	sim := NewSimulator(ds, SimConfig{}, nil)
	boom := errors.New("boom")

	_, err := sim.Step(context.Background(), 0, true, func(context.Context, map[string]float64) (contracts.TargetWeights, []contracts.Event, error) {
		return contracts.TargetWeights{}, nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
