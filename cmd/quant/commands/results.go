package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/resultstore"
)

// resultsCmd represents the results command
var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "저장된 백테스트 결과 관리",
	Long: `결과 저장소(S6)의 백테스트 결과를 조회하거나 정리합니다.

Subcommands:
  list   - 결과 목록 (전략 유형, 기간 필터)
  show   - 결과 메타데이터 및 일별 기록
  prune  - 보존 기간이 지난 결과 삭제

Example:
  go run ./cmd/quant results list --kind fixed --max-age 168h
  go run ./cmd/quant results show fixed_strategy_top10-equal-weekly-3f2a9c1e_20240506070809.csv
  go run ./cmd/quant results prune --retention 720h`,
}

var (
	resultsListCmd = &cobra.Command{
		Use:   "list",
		Short: "결과 목록",
		RunE:  listResults,
	}

	resultsShowCmd = &cobra.Command{
		Use:   "show [name]",
		Short: "결과 상세",
		Args:  cobra.ExactArgs(1),
		RunE:  showResult,
	}

	resultsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "보존 기간 초과 결과 삭제",
		Long: `생성 시각이 보존 기간보다 오래된 결과와 메타데이터를 삭제합니다.
실행 중에는 호출되지 않는 별도 정리 작업입니다.`,
		RunE: pruneResults,
	}

	// Flags
	resultsKind      string
	resultsMaxAge    time.Duration
	resultsDays      int
	resultsRetention time.Duration
)

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsPruneCmd)

	resultsListCmd.Flags().StringVar(&resultsKind, "kind", "", "전략 유형 (fixed|dynamic)")
	resultsListCmd.Flags().DurationVar(&resultsMaxAge, "max-age", 0, "최근 기간만 (예: 168h)")
	resultsShowCmd.Flags().IntVar(&resultsDays, "days", 10, "마지막 N 거래일 출력 (0 = 숨김)")
	resultsPruneCmd.Flags().DurationVar(&resultsRetention, "retention", 0, "보존 기간 (기본: RESULT_RETENTION)")
}

func listResults(cmd *cobra.Command, args []string) error {
	kind := contracts.StrategyKind(resultsKind)
	if kind != "" && !kind.IsValid() {
		return fmt.Errorf("invalid --kind %q (fixed|dynamic)", resultsKind)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg, log)
	if err != nil {
		return err
	}

	entries, err := store.List(cmd.Context(), resultstore.Filter{Kind: kind, MaxAge: resultsMaxAge})
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	if len(entries) == 0 {
		PrintInfo("No results")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Name,
			string(e.Kind),
			e.Summary,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	PrintTable([]string{"Name", "Strategy", "Summary", "Created"}, rows)
	fmt.Printf("\n%d results\n", len(entries))
	return nil
}

func showResult(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg, log)
	if err != nil {
		return err
	}

	result, err := store.Read(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	meta := result.Meta

	PrintHeader(args[0])
	PrintKeyValue("Run ID", meta.RunID, 13)
	PrintKeyValue("Strategy", fmt.Sprintf("%s (%s)", meta.Strategy, meta.Summary), 13)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", meta.Start.Format("2006-01-02"), meta.End.Format("2006-01-02")), 13)
	PrintKeyValue("Universe", fmt.Sprintf("%d instruments", meta.UniverseSize), 13)
	PrintKeyValue("Config Hash", meta.ConfigHash, 13)
	PrintKeyValue("Created", meta.CreatedAt.Local().Format("2006-01-02 15:04:05"), 13)
	PrintSeparator()

	PrintMetrics(meta.Metrics)
	for _, w := range meta.Warnings {
		PrintWarning(w)
	}

	if resultsDays <= 0 || len(result.Days) == 0 {
		return nil
	}
	from := max(len(result.Days)-resultsDays, 0)
	rows := make([][]string, 0, len(result.Days)-from)
	for _, day := range result.Days[from:] {
		rows = append(rows, []string{
			day.Date.Format("2006-01-02"),
			pct(day.DailyReturn),
			pct(day.Cost),
			ratio(day.Turnover),
			ratio(day.Cash),
			holdingsText(day.Holdings),
		})
	}
	fmt.Println()
	PrintTable([]string{"Date", "Return", "Cost", "Turnover", "Cash", "Holdings"}, rows)
	return nil
}

func holdingsText(h map[string]float64) string {
	if len(h) == 0 {
		return "-"
	}
	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s %.1f%%", id, h[id]*100))
	}
	return strings.Join(parts, ", ")
}

func pruneResults(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg, log)
	if err != nil {
		return err
	}
	retention := resultsRetention
	if retention <= 0 {
		retention = cfg.Results.Retention
	}

	removed, err := store.Prune(cmd.Context(), time.Now(), retention)
	for _, name := range removed {
		fmt.Printf("   🗑  %s\n", name)
	}
	if err != nil {
		return fmt.Errorf("prune results: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Pruned %d results older than %s", len(removed), retention))
	return nil
}
