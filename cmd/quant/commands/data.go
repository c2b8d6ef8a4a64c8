package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/s0_data"
	"github.com/wonny/stockbt/pkg/database"
)

// dataCmd represents the data command
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "시장 데이터 (S0) 점검 및 적재",
	Long: `시장 데이터 원천을 점검하거나 CSV 폴더를 PostgreSQL 로 적재합니다.

Subcommands:
  check   - 구간 데이터 정렬 후 커버리지 리포트
  import  - CSV 폴더를 data.* 테이블로 적재

Example:
  go run ./cmd/quant data check --start 2024-01-02 --end 2024-06-28
  go run ./cmd/quant data import --dir data --start 2020-01-01 --end 2024-12-31`,
}

var (
	dataCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "데이터 커버리지 확인",
		RunE:  runDataCheck,
	}

	dataImportCmd = &cobra.Command{
		Use:   "import",
		Short: "CSV → PostgreSQL 적재",
		Long: `CSV 폴더(bars.csv, instruments.csv, ...)의 구간 데이터를 PostgreSQL 로 적재합니다.
구간 내 기존 행은 하나의 트랜잭션에서 교체됩니다.`,
		RunE: runDataImport,
	}

	// Flags
	dataStart       string
	dataEnd         string
	dataWarmup      int
	dataMinCoverage float64
	dataDir         string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataCheckCmd)
	dataCmd.AddCommand(dataImportCmd)

	for _, c := range []*cobra.Command{dataCheckCmd, dataImportCmd} {
		c.Flags().StringVar(&dataStart, "start", "", "시작 날짜 (YYYY-MM-DD, 필수)")
		c.Flags().StringVar(&dataEnd, "end", "", "종료 날짜 (YYYY-MM-DD, 기본: 오늘)")
		_ = c.MarkFlagRequired("start")
	}
	dataCheckCmd.Flags().IntVar(&dataWarmup, "warmup", 0, "워밍업 거래일 수")
	dataCheckCmd.Flags().Float64Var(&dataMinCoverage, "min-coverage", 0, "가격 커버리지 최소값 (미달 시 실패)")
	dataImportCmd.Flags().StringVar(&dataDir, "dir", "", "CSV 폴더 (기본: DATA_DIR)")
}

func dataRange() (time.Time, time.Time, error) {
	start, err := s0_data.ParseDate(dataStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if dataEnd != "" {
		if end, err = s0_data.ParseDate(dataEnd); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return start, end, nil
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	PrintHeader("stockbt Data Check")

	start, end, err := dataRange()
	if err != nil {
		return err
	}

	d, err := initDeps(cmd.Context())
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer d.Close()

	normalizer := s0_data.NewNormalizer(d.source, d.cfg.Engine.FetchTimeout, d.log)
	ds, err := normalizer.Normalize(cmd.Context(), s0_data.Request{Start: start, End: end, WarmupDays: dataWarmup})
	if err != nil {
		return err
	}
	rep := s0_data.Assess(ds)

	PrintKeyValue("Source", d.cfg.Data.Source, 12)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", rep.Start.Format("2006-01-02"), rep.End.Format("2006-01-02")), 12)
	PrintKeyValue("Days", fmt.Sprintf("%d (+%d warm-up)", rep.Days, rep.WarmupDays), 12)
	PrintKeyValue("Instruments", strconv.Itoa(rep.Instruments), 12)
	PrintSeparator()

	classes := make([]string, 0, len(rep.ByAssetClass))
	for class := range rep.ByAssetClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	rows := [][]string{
		{"Price coverage", pct(rep.Coverage["price"])},
		{"Volume coverage", pct(rep.Coverage["volume"])},
		{"Missing cells", strconv.Itoa(rep.MissingCells)},
		{"Suspended", strconv.Itoa(rep.Suspended)},
		{"Risk warning", strconv.Itoa(rep.RiskWarning)},
		{"Limit up", strconv.Itoa(rep.LimitUp)},
		{"Limit down", strconv.Itoa(rep.LimitDown)},
	}
	for _, class := range classes {
		rows = append(rows, []string{"Asset class " + class, strconv.Itoa(rep.ByAssetClass[class])})
	}
	PrintTable([]string{"Check", "Value"}, rows)
	fmt.Println()

	if dataMinCoverage > 0 && rep.Coverage["price"] < dataMinCoverage {
		PrintError(fmt.Sprintf("Price coverage %.2f%% below %.2f%%", rep.Coverage["price"]*100, dataMinCoverage*100))
		return fmt.Errorf("price coverage below threshold")
	}
	PrintSuccess(fmt.Sprintf("Average coverage %.2f%%", rep.CoverageRate()*100))
	return nil
}

func runDataImport(cmd *cobra.Command, args []string) error {
	PrintHeader("stockbt Data Import")

	start, end, err := dataRange()
	if err != nil {
		return err
	}

	// 1. Load config
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	dir := dataDir
	if dir == "" {
		dir = cfg.Data.Dir
	}

	// 2. Connect to database
	db, err := database.New(cmd.Context(), cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// 3. Import
	target := s0_data.NewPostgresSource(db.Pool)
	if err := target.EnsureSchema(cmd.Context()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	started := time.Now()
	stats, err := target.Import(cmd.Context(), s0_data.NewCSVSource(dir), start, end)
	if err != nil {
		return fmt.Errorf("import %s: %w", dir, err)
	}

	log.WithFields(map[string]interface{}{
		"dir":         dir,
		"calendar":    stats.Calendar,
		"instruments": stats.Instruments,
		"bars":        stats.Bars,
		"flags":       stats.Flags,
	}).Info("Market data imported")

	PrintTable([]string{"Table", "Rows"}, [][]string{
		{"data.trading_calendar", strconv.FormatInt(stats.Calendar, 10)},
		{"data.instruments", strconv.FormatInt(stats.Instruments, 10)},
		{"data.daily_bars", strconv.FormatInt(stats.Bars, 10)},
		{"data.status_flags", strconv.FormatInt(stats.Flags, 10)},
	})
	fmt.Println()
	PrintSuccess(fmt.Sprintf("Imported %s in %.2fs", dir, time.Since(started).Seconds()))
	return nil
}
