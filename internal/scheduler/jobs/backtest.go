package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/stockbt/internal/backtest"
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/scheduler"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/logger"
)

// Runner executes backtest runs
type Runner interface {
	RunAll(ctx context.Context, specs []backtest.RunSpec, parallel int) []backtest.Outcome
}

// BacktestJob re-runs a set of run configs on a schedule (e.g. after the daily data load)
type BacktestJob struct {
	runner   Runner
	configs  []string
	parallel int
	schedule string
	logger   *logger.Logger
}

// NewBacktestJob creates a new scheduled backtest job
// schedule 미지정 시 평일 18:00
func NewBacktestJob(runner Runner, configs []string, parallel int, schedule string, log *logger.Logger) *BacktestJob {
	if schedule == "" {
		schedule = "0 0 18 * * 1-5"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BacktestJob{
		runner:   runner,
		configs:  configs,
		parallel: parallel,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *BacktestJob) Name() string {
	return "scheduled_backtests"
}

// Schedule returns the cron schedule (with seconds)
func (j *BacktestJob) Schedule() string {
	return j.schedule
}

// Run loads every config and runs them concurrently
// 설정 파일 하나라도 읽기 실패 시 실행하지 않음 (재시도 없음)
func (j *BacktestJob) Run(ctx context.Context) error {
	specs := make([]backtest.RunSpec, 0, len(j.configs))
	for _, path := range j.configs {
		cfg, _, err := strategyconfig.Load(path)
		if err != nil {
			return scheduler.Permanent(fmt.Errorf("load %s: %w", path, err))
		}
		blacklist, err := strategyconfig.LoadBlacklist(cfg.Run)
		if err != nil {
			return scheduler.Permanent(fmt.Errorf("blacklist %s: %w", path, err))
		}
		specs = append(specs, backtest.RunSpec{Config: cfg, Blacklist: blacklist})
	}

	var failed int
	for i, out := range j.runner.RunAll(ctx, specs, j.parallel) {
		if out.Err != nil {
			failed++
			j.logger.WithError(out.Err).WithField("config", j.configs[i]).Error("Scheduled backtest failed")
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"config":   j.configs[i],
			"run_id":   out.Result.RunID,
			"artifact": out.Path,
		}).Info("Scheduled backtest completed")
	}

	if failed > 0 {
		return &PartialFailure{Failed: failed, Total: len(specs)}
	}
	return nil
}

// PartialFailure reports how many scheduled runs failed
type PartialFailure struct {
	Failed int
	Total  int
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%d of %d scheduled backtests failed (%s)", e.Failed, e.Total, contracts.StageSimulation.ShortName())
}
