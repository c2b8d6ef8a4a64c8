package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/stockbt/internal/audit"
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/portfolio"
	"github.com/wonny/stockbt/internal/s0_data"
	"github.com/wonny/stockbt/internal/s1_universe"
	"github.com/wonny/stockbt/internal/s2_signals"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/logger"
	"github.com/wonny/stockbt/pkg/redis"
)

// Defaults 실행 설정에 없을 때 사용하는 환경설정 값
type Defaults struct {
	FetchTimeout time.Duration
	SolveTimeout time.Duration
	ScoreWorkers int
	ScoreTTL     time.Duration
}

// Observer receives run lifecycle callbacks (metrics, progress)
type Observer interface {
	RunStarted(kind contracts.StrategyKind)
	DaySimulated(kind contracts.StrategyKind, rec contracts.DayRecord)
	RunFinished(kind contracts.StrategyKind, status string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RunStarted(contracts.StrategyKind)                         {}
func (nopObserver) DaySimulated(contracts.StrategyKind, contracts.DayRecord)  {}
func (nopObserver) RunFinished(contracts.StrategyKind, string, time.Duration) {}

// Run statuses reported to the observer
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Engine runs backtesting simulations end to end
// ⭐ SSOT: 백테스팅 실행은 여기서만
// Normalize → Score → 날짜 루프 (S1 → S3 → S4) → S5 → S6, 저장은 전체 성공 후에만
type Engine struct {
	source   s0_data.Source
	store    contracts.ResultWriter
	cache    *redis.Cache
	defaults Defaults
	observer Observer
	logger   *logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithStore persists successful runs
func WithStore(store contracts.ResultWriter) Option {
	return func(e *Engine) { e.store = store }
}

// WithScoreCache caches computed score matrices
func WithScoreCache(cache *redis.Cache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithObserver registers a lifecycle observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates a new backtest engine
func NewEngine(source s0_data.Source, defaults Defaults, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if defaults.FetchTimeout <= 0 {
		defaults.FetchTimeout = s0_data.DefaultFetchTimeout
	}
	if defaults.SolveTimeout <= 0 {
		defaults.SolveTimeout = portfolio.DefaultSolveTimeout
	}
	if defaults.ScoreWorkers < 1 {
		defaults.ScoreWorkers = 1
	}
	e := &Engine{
		source:   source,
		defaults: defaults,
		observer: nopObserver{},
		logger:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunSpec 한 실행 입력
type RunSpec struct {
	Config    *strategyconfig.Config
	Blacklist []string
	// Progress is called after each simulated day
	Progress func(done, total int)
}

// Outcome 한 실행 결과
type Outcome struct {
	Spec   RunSpec
	Result *contracts.BacktestResult
	Path   string // 저장 위치 (저장소 없으면 빈 값)
	Err    error
}

// RunAll executes independent runs concurrently, each with its own state
// 한 실행의 실패는 다른 실행을 중단시키지 않음
func (e *Engine) RunAll(ctx context.Context, specs []RunSpec, parallel int) []Outcome {
	if parallel < 1 {
		parallel = 1
	}
	outcomes := make([]Outcome, len(specs))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			res, path, err := e.Run(ctx, spec)
			outcomes[i] = Outcome{Spec: spec, Result: res, Path: path, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Run executes one backtest and stores the artifact on success
func (e *Engine) Run(ctx context.Context, spec RunSpec) (*contracts.BacktestResult, string, error) {
	cfg := spec.Config
	started := time.Now()
	runID := uuid.NewString()
	log := e.logger.WithRun(runID)

	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, "", err
	}
	kind := cfg.Strategy.Kind
	e.observer.RunStarted(kind)

	result, err := e.run(ctx, spec, runID, log)
	if err != nil {
		e.observer.RunFinished(kind, StatusFailed, time.Since(started))
		log.WithError(err).Error("Backtest failed, no artifact written")
		return nil, "", err
	}

	path := ""
	if e.store != nil {
		if path, err = e.store.Save(ctx, result); err != nil {
			e.observer.RunFinished(kind, StatusFailed, time.Since(started))
			return nil, "", fmt.Errorf("save result: %w", err)
		}
	}
	e.observer.RunFinished(kind, StatusSuccess, time.Since(started))

	m := result.Meta.Metrics
	log.WithFields(map[string]interface{}{
		"strategy":          kind,
		"days":              len(result.Days),
		"duration":          time.Since(started).Seconds(),
		"cumulative_return": fmt.Sprintf("%.2f%%", m.CumulativeReturn*100),
		"sharpe_ratio":      fmt.Sprintf("%.2f", m.Sharpe),
		"max_drawdown":      fmt.Sprintf("%.2f%%", m.MaxDrawdown*100),
		"artifact":          path,
	}).Info("Backtest completed")

	return result, path, nil
}

func (e *Engine) run(ctx context.Context, spec RunSpec, runID string, log *logger.Logger) (*contracts.BacktestResult, error) {
	cfg := spec.Config

	strategy, err := portfolio.NewStrategy(cfg.Strategy, cfg.Timeouts.SolveTimeout(e.defaults.SolveTimeout), log)
	if err != nil {
		return nil, err
	}
	allocator, err := portfolio.NewAllocator(strategy, portfolio.ConstraintsFrom(cfg.Allocation), log)
	if err != nil {
		return nil, err
	}
	schedule, err := NewSchedule(cfg.Rebalance)
	if err != nil {
		return nil, err
	}

	// S0: 워밍업 = max(설정값, 공분산 추정 구간 + 1)
	warmup := cfg.Run.WarmupDays
	if lb := strategy.Lookback() + 1; lb > warmup {
		warmup = lb
	}
	normalizer := s0_data.NewNormalizer(e.source, cfg.Timeouts.FetchTimeout(e.defaults.FetchTimeout), log)
	ds, err := normalizer.Normalize(ctx, s0_data.Request{
		Start:      cfg.Run.StartDate(),
		End:        cfg.Run.EndDate(),
		WarmupDays: warmup,
	})
	if err != nil {
		return nil, err
	}

	// S2: 점수 매트릭스
	scoreSource, err := e.scoreSource(cfg, log)
	if err != nil {
		return nil, err
	}
	scores, err := scoreSource.Build(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("score matrix: %w", err)
	}

	filter := s1_universe.NewFilter(ds, scores, contracts.NewBlacklist(spec.Blacklist...), s1_universe.ConfigFrom(cfg.Eligibility), log)
	sim := NewSimulator(ds, SimConfig{
		Slippage:       cfg.Costs.Slippage,
		Fee:            cfg.Costs.Fee,
		StopLoss:       cfg.Risk.StopLoss,
		TakeProfit:     cfg.Risk.TakeProfit,
		MaxMissingDays: cfg.Risk.MaxMissingDays,
	}, log)

	days := ds.SimulationDays()
	records := make([]contracts.DayRecord, 0, len(days))
	rebalances := 0
	eventCounts := make(map[contracts.EventType]int)

	// 날짜 순서대로 단일 루프
	for d := ds.StartIndex; d < len(ds.Calendar); d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := d
		rebalance := schedule.IsRebalanceDay(ds.Calendar, ds.StartIndex, day)
		rec, err := sim.Step(ctx, day, rebalance, func(ctx context.Context, current map[string]float64) (contracts.TargetWeights, []contracts.Event, error) {
			universe := filter.Eligible(day)
			in := contracts.AllocationInput{
				Date:     ds.Calendar[day],
				Eligible: eligibleScores(scores, universe),
			}
			if lb := strategy.Lookback(); lb > 0 {
				in.Trailing = portfolio.TrailingReturns(ds, day, universe.Instruments, lb)
			}
			return allocator.Allocate(ctx, in, current)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ds.Calendar[day].Format("2006-01-02"), err)
		}
		if rec.Rebalanced {
			rebalances++
		}
		for _, ev := range rec.Events {
			eventCounts[ev.Type]++
		}
		records = append(records, rec)
		e.observer.DaySimulated(cfg.Strategy.Kind, rec)
		if spec.Progress != nil {
			spec.Progress(len(records), len(days))
		}
	}

	result := &contracts.BacktestResult{
		RunID:    runID,
		Strategy: cfg.Strategy.Kind,
		Start:    days[0],
		End:      days[len(days)-1],
		Days:     records,
	}
	if !result.IsChronological() {
		return nil, fmt.Errorf("%s: result dates not strictly increasing", contracts.StageSimulation.ShortName())
	}

	// S5
	metrics, err := audit.NewAnalyzer(log).Compute(result.DailyReturns())
	if err != nil {
		return nil, err
	}

	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("config hash: %w", err)
	}
	result.Meta = contracts.RunMeta{
		RunID:        runID,
		Strategy:     cfg.Strategy.Kind,
		Summary:      cfg.Summary(),
		Parameters:   cfg.Parameters(),
		ConfigHash:   hash,
		UniverseSize: len(ds.Instruments),
		Start:        result.Start,
		End:          result.End,
		Metrics:      metrics,
		Warnings:     warnings(cfg, eventCounts),
		Precision:    cfg.Output.Precision,
		CreatedAt:    time.Now().UTC(),
	}

	log.WithFields(map[string]interface{}{
		"days":       len(records),
		"rebalances": rebalances,
		"events":     len(eventCounts),
	}).Debug("Simulation loop finished")

	return result, nil
}

// Scores normalizes the run's data range and returns its score matrix
// 시뮬레이션 없이 점수 매트릭스만 필요할 때 (scores export)
func (e *Engine) Scores(ctx context.Context, cfg *strategyconfig.Config) (*contracts.ScoreMatrix, error) {
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	log := e.logger.WithField("purpose", "scores")

	normalizer := s0_data.NewNormalizer(e.source, cfg.Timeouts.FetchTimeout(e.defaults.FetchTimeout), log)
	ds, err := normalizer.Normalize(ctx, s0_data.Request{
		Start:      cfg.Run.StartDate(),
		End:        cfg.Run.EndDate(),
		WarmupDays: cfg.Run.WarmupDays,
	})
	if err != nil {
		return nil, err
	}
	src, err := e.scoreSource(cfg, log)
	if err != nil {
		return nil, err
	}
	scores, err := src.Build(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("score matrix: %w", err)
	}
	return scores, nil
}

// scoreSource selects computed or file scores, optionally cached
func (e *Engine) scoreSource(cfg *strategyconfig.Config, log *logger.Logger) (contracts.ScoreSource, error) {
	var src contracts.ScoreSource
	switch cfg.Scoring.Source {
	case "", "computed":
		src = s2_signals.NewBuilder(s2_signals.ConfigFrom(cfg.Scoring, e.defaults.ScoreWorkers), log)
	case "file":
		src = s2_signals.NewFileSource(cfg.Scoring.File, s2_signals.ReadOptions{}, log)
	default:
		return nil, &contracts.ConfigurationError{Field: "scoring.source", Message: "must be computed or file"}
	}
	if e.cache == nil {
		return src, nil
	}
	salt, err := json.Marshal(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("scoring fingerprint: %w", err)
	}
	sum := sha256.Sum256(salt)
	return s2_signals.NewCachedBuilder(src, e.cache, hex.EncodeToString(sum[:8]), e.defaults.ScoreTTL, log), nil
}

// eligibleScores ranks scores of eligible instruments only
func eligibleScores(scores *contracts.ScoreMatrix, u *contracts.Universe) []contracts.RankedScore {
	row := make(map[string]float64, len(u.Instruments))
	for _, id := range u.Instruments {
		if s := scores.Get(u.Date, id); s.Valid {
			row[id] = s.Value
		}
	}
	return contracts.RankScores(row)
}

// warnings collects config warnings and event totals for the metadata
func warnings(cfg *strategyconfig.Config, counts map[contracts.EventType]int) []string {
	var out []string
	for _, w := range strategyconfig.Warn(cfg) {
		out = append(out, w.Code+": "+w.Message)
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		out = append(out, fmt.Sprintf("%s: %d events", t, counts[contracts.EventType(t)]))
	}
	return out
}
