package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/stockbt/pkg/logger"
)

// Pruner removes result artifacts older than retention
type Pruner interface {
	Prune(ctx context.Context, now time.Time, retention time.Duration) ([]string, error)
}

// PruneRecorder receives the number of removed artifacts
type PruneRecorder interface {
	RecordPruned(n int)
}

// RetentionJob prunes the result store on a schedule
// ⭐ SSOT: 결과 보관기간 정리는 이 Job 또는 CLI results prune 에서만 (실행 중에는 호출 안 함)
type RetentionJob struct {
	store     Pruner
	retention time.Duration
	schedule  string
	recorder  PruneRecorder
	now       func() time.Time
	logger    *logger.Logger
}

// NewRetentionJob creates a new retention job
// schedule 미지정 시 매일 03:00
func NewRetentionJob(store Pruner, retention time.Duration, schedule string, recorder PruneRecorder, log *logger.Logger) *RetentionJob {
	if schedule == "" {
		schedule = "0 0 3 * * *"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RetentionJob{
		store:     store,
		retention: retention,
		schedule:  schedule,
		recorder:  recorder,
		now:       time.Now,
		logger:    log,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "result_retention"
}

// Schedule returns the cron schedule (with seconds)
func (j *RetentionJob) Schedule() string {
	return j.schedule
}

// Run executes the retention pass
func (j *RetentionJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled result retention")

	removed, err := j.store.Prune(ctx, j.now(), j.retention)
	if j.recorder != nil && len(removed) > 0 {
		j.recorder.RecordPruned(len(removed))
	}
	if err != nil {
		return fmt.Errorf("prune results: %w", err)
	}

	if len(removed) > 0 {
		j.logger.WithField("removed", len(removed)).Info("Result retention completed")
	}

	return nil
}
