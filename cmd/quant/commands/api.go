package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/api"
	"github.com/wonny/stockbt/internal/api/handlers"
	"github.com/wonny/stockbt/internal/metrics"
	"github.com/wonny/stockbt/internal/s0_data"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 저장된 결과 조회/다운로드 엔드포인트 제공
- 실행 설정(YAML) 으로 백테스트 실행
- 데이터 커버리지 조회

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  GET  /api/results?kind=&max_age=      - 결과 목록
  GET  /api/results/{name}?days=true    - 결과 메타데이터 (일별 기록 포함)
  GET  /api/results/{name}/equity       - 누적 수익/낙폭 곡선
  GET  /api/results/{name}/download     - 결과 CSV 원본
  POST /api/backtests                   - 백테스트 실행 (YAML body)
  GET  /api/data/quality?start=&end=    - 데이터 커버리지

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	PrintHeader("stockbt API Server")

	// 1. Initialize dependencies
	d, err := initDeps(cmd.Context())
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer d.Close()

	// Override port if flag is set
	if apiPort != "" {
		d.cfg.Port = apiPort
	}
	log := d.log

	// 2. Create handlers
	h := api.Handlers{
		Results:  handlers.NewResultHandler(d.store, log),
		Backtest: handlers.NewBacktestHandler(d.newEngine(), log),
		Data:     handlers.NewDataHandler(s0_data.NewNormalizer(d.source, d.cfg.Engine.FetchTimeout, log), log),
	}

	// 3. Create router
	var reg *metrics.Registry
	if d.cfg.MetricsEnabled {
		reg = d.metrics
	}
	router := api.NewRouter(h, reg, log)

	// 4. Create server
	server := api.New(d.cfg, log, router)

	// 5. Start server with graceful shutdown
	if err := server.Listen(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on %s\n", server.Addr())
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
