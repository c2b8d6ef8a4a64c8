package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "stockbt - 일봉 포트폴리오 백테스팅 엔진",
	Long: `stockbt Unified CLI

일봉 데이터 기반 포트폴리오 백테스팅 엔진.
S0 데이터 정렬 → S2 점수 → S1 유니버스 → S3 배분 → S4 시뮬레이션 → S5 성과 → S6 저장.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest run configs/fixed.yaml
  go run ./cmd/quant results list --kind dynamic
  go run ./cmd/quant scores export configs/fixed.yaml --out scores.csv
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
