package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/backtest"
	"github.com/wonny/stockbt/internal/strategyconfig"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스팅 실행",
	Long: `YAML 실행 설정으로 일봉 포트폴리오 백테스트를 실행합니다.

각 실행은:
- 데이터 정렬 (S0) 및 점수 매트릭스 (S2)
- 날짜별 유니버스 필터 (S1), 배분 (S3), 리밸런싱 시뮬레이션 (S4)
- 성과 지표 (S5) 및 결과 저장 (S6, 성공 시에만)

Example:
  go run ./cmd/quant backtest run configs/fixed.yaml
  go run ./cmd/quant backtest run configs/*.yaml --parallel 4`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run [config.yaml...]",
		Short: "백테스트 실행",
		Long: `지정된 실행 설정 파일마다 독립된 백테스트를 실행합니다.

Flags:
  --parallel     동시 실행 수 (기본: 1)
  --no-save      결과 파일을 저장하지 않음
  --no-progress  진행 표시줄 숨김

Example:
  go run ./cmd/quant backtest run configs/fixed.yaml
  go run ./cmd/quant backtest run configs/fixed.yaml configs/dynamic.yaml --parallel 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBacktest,
	}

	// Flags
	backtestParallel   int
	backtestNoSave     bool
	backtestNoProgress bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	// Flags
	backtestRunCmd.Flags().IntVar(&backtestParallel, "parallel", 1, "동시 실행 수")
	backtestRunCmd.Flags().BoolVar(&backtestNoSave, "no-save", false, "결과 파일 저장 안 함")
	backtestRunCmd.Flags().BoolVar(&backtestNoProgress, "no-progress", false, "진행 표시줄 숨김")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	PrintHeader("stockbt Backtest Engine")

	// 1. Load run configs (하나라도 잘못되면 실행 전 실패)
	specs, err := loadRunSpecs(args)
	if err != nil {
		return err
	}

	// 2. Initialize dependencies
	d, err := initDeps(cmd.Context())
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer d.Close()
	if backtestNoSave {
		d.store = nil
	}
	engine := d.newEngine()

	for i, spec := range specs {
		cfg := spec.Config
		PrintKeyValue("Config", args[i], 9)
		PrintKeyValue("Strategy", fmt.Sprintf("%s (%s)", cfg.Strategy.Kind, cfg.Summary()), 9)
		PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", cfg.Run.Start, cfg.Run.End), 9)
	}
	PrintSeparator()

	// 3. Progress
	if !backtestNoProgress {
		attachProgress(specs)
	}

	// 4. Run
	started := time.Now()
	outcomes := engine.RunAll(cmd.Context(), specs, backtestParallel)
	fmt.Println()

	// 5. Report
	failed := printOutcomes(args, outcomes)
	fmt.Println()
	if failed > 0 {
		PrintError(fmt.Sprintf("%d/%d runs failed (%.2fs)", failed, len(outcomes), time.Since(started).Seconds()))
		return fmt.Errorf("%d of %d backtests failed", failed, len(outcomes))
	}
	PrintSuccess(fmt.Sprintf("%d runs completed in %.2fs", len(outcomes), time.Since(started).Seconds()))
	return nil
}

func loadRunSpecs(paths []string) ([]backtest.RunSpec, error) {
	specs := make([]backtest.RunSpec, 0, len(paths))
	for _, path := range paths {
		cfg, _, err := strategyconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		blacklist, err := strategyconfig.LoadBlacklist(cfg.Run)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		specs = append(specs, backtest.RunSpec{Config: cfg, Blacklist: blacklist})
	}
	return specs, nil
}

// attachProgress 단일 실행은 거래일 단위, 복수 실행은 실행 단위 진행 표시
func attachProgress(specs []backtest.RunSpec) {
	if len(specs) == 1 {
		var bar *progressbar.ProgressBar
		specs[0].Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "simulating")
			}
			_ = bar.Set(done)
		}
		return
	}

	bar := progressbar.Default(int64(len(specs)), "backtests")
	for i := range specs {
		specs[i].Progress = func(done, total int) {
			if done == total {
				_ = bar.Add(1)
			}
		}
	}
}

func printOutcomes(paths []string, outcomes []backtest.Outcome) int {
	failed := 0
	rows := make([][]string, 0, len(outcomes))
	for i, o := range outcomes {
		name := filepath.Base(paths[i])
		if o.Err != nil {
			failed++
			rows = append(rows, []string{name, string(o.Spec.Config.Strategy.Kind), "-", "-", "-", "-", "❌ " + o.Err.Error()})
			continue
		}
		m := o.Result.Meta.Metrics
		artifact := o.Path
		if artifact == "" {
			artifact = "(not saved)"
		}
		rows = append(rows, []string{
			name,
			string(o.Result.Strategy),
			strconv.Itoa(len(o.Result.Days)),
			pct(m.CumulativeReturn),
			ratio(m.Sharpe),
			pct(m.MaxDrawdown),
			artifact,
		})
	}
	PrintTable([]string{"Config", "Strategy", "Days", "Return", "Sharpe", "MDD", "Artifact"}, rows)

	// 단일 성공 실행은 상세 지표와 경고 출력
	if len(outcomes) == 1 && outcomes[0].Err == nil {
		meta := outcomes[0].Result.Meta
		fmt.Println()
		PrintMetrics(meta.Metrics)
		if len(meta.Warnings) > 0 {
			fmt.Println()
			PrintWarning("Warnings: " + strings.Join(meta.Warnings, "; "))
		}
	}
	return failed
}
