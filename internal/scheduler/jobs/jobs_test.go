package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/backtest"
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/scheduler"
)

type fakePruner struct {
	removed   []string
	err       error
	retention time.Duration
}

func (f *fakePruner) Prune(_ context.Context, _ time.Time, retention time.Duration) ([]string, error) {
	f.retention = retention
	return f.removed, f.err
}

type countRecorder struct{ n int }

func (c *countRecorder) RecordPruned(n int) { c.n += n }

func TestRetentionJob(t *testing.T) {
	p := &fakePruner{removed: []string{"a.csv", "b.csv"}}
	rec := &countRecorder{}
	job := NewRetentionJob(p, 48*time.Hour, "", rec, nil)

	assert.Equal(t, "result_retention", job.Name())
	assert.Equal(t, "0 0 3 * * *", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 48*time.Hour, p.retention)
	assert.Equal(t, 2, rec.n)

	p.err = errors.New("bucket unavailable")
	assert.Error(t, job.Run(context.Background()))
}

type fakeRunner struct {
	specs []backtest.RunSpec
	fail  map[int]bool
}

func (f *fakeRunner) RunAll(_ context.Context, specs []backtest.RunSpec, _ int) []backtest.Outcome {
	f.specs = specs
	out := make([]backtest.Outcome, len(specs))
	for i, s := range specs {
		out[i] = backtest.Outcome{Spec: s, Result: &contracts.BacktestResult{RunID: "r"}}
		if f.fail[i] {
			out[i] = backtest.Outcome{Spec: s, Err: errors.New("data gap")}
		}
	}
	return out
}

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBacktestJob(t *testing.T) {
	dir := t.TempDir()
	good := writeConfig(t, dir, "fixed.yaml", "run:\n  start: \"2024-01-02\"\n  end: \"2024-06-28\"\n  blacklist: [\"600000.SH\"]\n")
	alt := writeConfig(t, dir, "dynamic.yaml", "run:\n  start: \"2024-01-02\"\n  end: \"2024-06-28\"\nstrategy:\n  kind: dynamic\n")

	runner := &fakeRunner{}
	job := NewBacktestJob(runner, []string{good, alt}, 2, "", nil)
	require.NoError(t, job.Run(context.Background()))
	require.Len(t, runner.specs, 2)
	assert.Equal(t, []string{"600000.SH"}, runner.specs[0].Blacklist)
	assert.Equal(t, contracts.KindDynamic, runner.specs[1].Config.Strategy.Kind)

	runner.fail = map[int]bool{1: true}
	err := job.Run(context.Background())
	var pf *PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, 1, pf.Failed)

	bad := writeConfig(t, dir, "bad.yaml", "strategy:\n  kindd: fixed\n")
	runner = &fakeRunner{}
	job = NewBacktestJob(runner, []string{good, bad}, 1, "", nil)
	err = job.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, scheduler.IsPermanent(err), "invalid config is not retried")
	assert.False(t, scheduler.IsPermanent(pf))
	assert.Nil(t, runner.specs, "nothing runs when a config is invalid")
}
