package commands

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/scheduler"
	"github.com/wonny/stockbt/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

등록되는 작업:
- result_retention: 매일 03:00 (보존 기간 초과 결과 삭제)
- scheduled_backtests: 평일 18:00 (--config 지정 시, 실행 설정 재실행)

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/quant scheduler start --config configs/fixed.yaml --config configs/dynamic.yaml
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run result_retention`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	// Flags
	schedulerConfigs     []string
	schedulerParallel    int
	schedulerBacktestAt  string
	schedulerRetentionAt string
	schedulerMetricsAddr string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringArrayVar(&schedulerConfigs, "config", nil, "정기 실행할 실행 설정 파일 (반복 지정)")
	schedulerCmd.PersistentFlags().IntVar(&schedulerParallel, "parallel", 2, "정기 백테스트 동시 실행 수")
	schedulerCmd.PersistentFlags().StringVar(&schedulerBacktestAt, "backtest-schedule", "", "백테스트 cron (초 포함, 기본: 0 0 18 * * 1-5)")
	schedulerCmd.PersistentFlags().StringVar(&schedulerRetentionAt, "retention-schedule", "", "보존 정리 cron (초 포함, 기본: 0 0 3 * * *)")
	schedulerStartCmd.Flags().StringVar(&schedulerMetricsAddr, "metrics-addr", "", "Prometheus /metrics 주소 (예: :9090)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	PrintHeader("stockbt Scheduler")

	// Initialize dependencies
	d, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	if schedulerMetricsAddr != "" && d.cfg.MetricsEnabled {
		srv := &http.Server{Addr: schedulerMetricsAddr, Handler: d.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.log.WithError(err).Error("Metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next, _ := sched.NextRun(jobName)
		fmt.Printf("  - %s (next: %s)\n", jobName, next.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	printJobStats(sched)
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	rows := [][]string{}
	for name, stat := range sched.GetJobStats() {
		rows = append(rows, []string{name, stat.Schedule})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	PrintTable([]string{"Job", "Schedule"}, rows)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	d, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	result, err := sched.RunJob(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %.2fs: %s", jobName, result.Duration.Seconds(), result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %.2fs", jobName, result.Duration.Seconds()))
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	rows := [][]string{}
	for name, stat := range sched.GetJobStats() {
		last := "-"
		if stat.LastRun != nil {
			last = stat.LastRun.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", stat.TotalRuns),
			fmt.Sprintf("%d (%.1f%%)", stat.SuccessCount, stat.SuccessRate*100),
			fmt.Sprintf("%d", stat.FailureCount),
			last,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	PrintTable([]string{"Job", "Runs", "Success", "Failures", "Last Run"}, rows)
}

func initScheduler(cmd *cobra.Command) (*deps, *scheduler.Scheduler, error) {
	// 1. Initialize dependencies
	d, err := initDeps(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	// 2. Create scheduler
	sched := scheduler.New(d.log, scheduler.WithRetry(1, 30*time.Second))

	// 3. Register jobs
	retention := jobs.NewRetentionJob(d.store, d.cfg.Results.Retention, schedulerRetentionAt, d.metrics, d.log)
	if err := sched.AddJob(retention); err != nil {
		d.Close()
		return nil, nil, err
	}
	if len(schedulerConfigs) > 0 {
		bt := jobs.NewBacktestJob(d.newEngine(), schedulerConfigs, schedulerParallel, schedulerBacktestAt, d.log)
		if err := sched.AddJob(bt); err != nil {
			d.Close()
			return nil, nil, err
		}
	}

	return d, sched, nil
}
