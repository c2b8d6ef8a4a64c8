package s2_signals

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/logger"
)

// Calculator computes one raw feature for (day, instrument)
// ok=false 는 해당 셀 피처 미정의
type Calculator interface {
	Name() string
	Calculate(ds *contracts.Dataset, day, inst int) (float64, bool)
}

// Config 점수 생성 설정
type Config struct {
	MomentumWindow   int
	VolatilityWindow int
	VolumeWindow     int
	MinHistory       int
	Weights          strategyconfig.FeatureWeights
	Workers          int
}

// ConfigFrom maps the run scoring section onto builder config
func ConfigFrom(s strategyconfig.Scoring, workers int) Config {
	return Config{
		MomentumWindow:   s.MomentumWindow,
		VolatilityWindow: s.VolatilityWindow,
		VolumeWindow:     s.VolumeWindow,
		MinHistory:       s.MinHistory,
		Weights:          s.Weights,
		Workers:          workers,
	}
}

type weighted struct {
	calc   Calculator
	weight float64
}

// Builder turns a dataset into a composite score matrix
// ⭐ SSOT: S2 종합 점수 생성은 여기서만
type Builder struct {
	cfg      Config
	features []weighted
	logger   *logger.Logger
}

// NewBuilder creates a new score matrix builder
func NewBuilder(cfg Config, log *logger.Logger) *Builder {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	features := []weighted{
		{&MomentumCalculator{Window: cfg.MomentumWindow}, cfg.Weights.Momentum},
		{&VolatilityCalculator{Window: cfg.VolatilityWindow}, cfg.Weights.Volatility},
		{&LiquidityCalculator{Window: cfg.VolumeWindow}, cfg.Weights.Liquidity},
	}
	// 가중치 0 피처는 계산 제외
	active := features[:0]
	for _, f := range features {
		if f.weight > 0 {
			active = append(active, f)
		}
	}
	return &Builder{
		cfg:      cfg,
		features: active,
		logger:   log.WithStage(contracts.StageSignals.ShortName()),
	}
}

// Build computes scores for every simulation day
// 날짜별 행은 서로 독립이므로 병렬 계산
func (b *Builder) Build(ctx context.Context, ds *contracts.Dataset) (*contracts.ScoreMatrix, error) {
	if len(b.features) == 0 {
		return nil, &contracts.ConfigurationError{Field: "scoring.weights", Message: "at least one feature weight must be positive"}
	}
	started := time.Now()

	days := ds.SimulationDays()
	ids := ds.InstrumentIDs()
	values := make([][]contracts.Score, len(days))
	counts := historyCounts(ds)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for row := range days {
		row := row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values[row] = b.scoreDay(ds, counts, ds.StartIndex+row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score build: %w", err)
	}

	m, err := contracts.NewScoreMatrix(days, ids, values)
	if err != nil {
		return nil, err
	}

	valid := 0
	for _, r := range values {
		for _, s := range r {
			if s.Valid {
				valid++
			}
		}
	}
	b.logger.WithFields(map[string]interface{}{
		"days":        len(days),
		"instruments": len(ids),
		"valid_cells": valid,
		"workers":     b.cfg.Workers,
		"elapsed_ms":  time.Since(started).Milliseconds(),
	}).Info("Score matrix built")

	return m, nil
}

// scoreDay computes one row: rank each feature, then weighted mean
func (b *Builder) scoreDay(ds *contracts.Dataset, counts [][]int, day int) []contracts.Score {
	n := len(ds.Instruments)
	eligible := make([]bool, n)
	for i := 0; i < n; i++ {
		// 당일 봉 없음 또는 이력 부족: 미정의
		eligible[i] = ds.Bars[day][i].HasData() && counts[day][i] >= b.cfg.MinHistory
	}

	defined := make([]bool, n)
	copy(defined, eligible)
	raws := make([][]float64, len(b.features))
	for k, f := range b.features {
		raws[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			if !defined[i] {
				continue
			}
			v, ok := f.calc.Calculate(ds, day, i)
			if !ok {
				defined[i] = false
				continue
			}
			raws[k][i] = v
		}
	}

	// 모든 피처가 정의된 종목끼리 순위 비교
	composite := make([]float64, n)
	totalWeight := 0.0
	for k, f := range b.features {
		ranks := PercentileRank(raws[k], defined)
		for i := 0; i < n; i++ {
			composite[i] += f.weight * ranks[i]
		}
		totalWeight += f.weight
	}

	row := make([]contracts.Score, n)
	for i := 0; i < n; i++ {
		if !defined[i] {
			continue
		}
		v := composite[i] / totalWeight
		// 부동소수 오차 보정
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		row[i] = contracts.Defined(v)
	}
	return row
}
