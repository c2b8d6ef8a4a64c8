package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/resultstore"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "의존성 상태 확인",
	Long: `설정된 데이터 원천, 결과 저장소, 캐시 연결 상태를 확인합니다.

확인 항목:
- 데이터 원천 (csv|postgres|http) 및 사용 가능 기간
- PostgreSQL Health Check 및 풀 통계 (postgres 원천)
- Redis 점수 캐시 (REDIS_ENABLED)
- 결과 저장소 (local|s3) 및 저장된 결과 수

Example:
  go run ./cmd/quant status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	PrintHeader("stockbt Status")

	d, err := initDeps(cmd.Context())
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	PrintKeyValue("ENV", d.cfg.Env, 14)
	PrintKeyValue("Data Source", d.cfg.Data.Source, 14)
	PrintKeyValue("Result Store", d.cfg.Results.Backend, 14)
	PrintSeparator()

	failed := 0
	rows := [][]string{}
	check := func(name string, err error, detail string) {
		if err != nil {
			failed++
			rows = append(rows, []string{name, "❌", err.Error()})
			return
		}
		rows = append(rows, []string{name, "✅", detail})
	}

	// 1. Data source range
	earliest, err := d.source.EarliestDate(ctx)
	latest := time.Time{}
	if err == nil {
		latest, err = d.source.LatestDate(ctx)
	}
	check("data", err, fmt.Sprintf("%s ~ %s", earliest.Format("2006-01-02"), latest.Format("2006-01-02")))

	// 2. Database
	if d.db != nil {
		h := d.db.HealthCheck(ctx)
		var herr error
		if !h.Healthy {
			herr = fmt.Errorf("%s", h.Error)
		}
		check("postgres", herr, fmt.Sprintf("%v (conns total=%d idle=%d acquired=%d)",
			h.ResponseTime.Round(time.Microsecond), h.TotalConns, h.IdleConns, h.AcquiredConns))
	}

	// 3. Redis
	if d.cache.Enabled() {
		st, err := d.cache.Ping(ctx)
		check("redis", err, fmt.Sprintf("score cache enabled (conns total=%d idle=%d)", st.TotalConns, st.IdleConns))
	} else {
		rows = append(rows, []string{"redis", "-", "disabled"})
	}

	// 4. Result store
	entries, err := d.store.List(ctx, resultstore.Filter{})
	check("results", err, fmt.Sprintf("%d stored (retention %s)", len(entries), d.cfg.Results.Retention))

	PrintTable([]string{"Component", "OK", "Detail"}, rows)
	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d components unhealthy", failed)
	}
	PrintSuccess("All components healthy")
	return nil
}
