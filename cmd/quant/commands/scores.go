package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/stockbt/internal/s2_signals"
	"github.com/wonny/stockbt/internal/strategyconfig"
)

// scoresCmd represents the scores command
var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "점수 매트릭스 (S2)",
}

var (
	scoresExportCmd = &cobra.Command{
		Use:   "export [config.yaml]",
		Short: "점수 매트릭스 CSV 내보내기",
		Long: `실행 설정의 데이터 구간과 점수 설정으로 점수 매트릭스를 만들어 CSV 로 출력합니다.
출력 파일은 scoring.source: file 의 입력으로 다시 사용할 수 있습니다.

Example:
  go run ./cmd/quant scores export configs/fixed.yaml --out scores.csv`,
		Args: cobra.ExactArgs(1),
		RunE: exportScores,
	}

	scoresOut string
)

func init() {
	rootCmd.AddCommand(scoresCmd)
	scoresCmd.AddCommand(scoresExportCmd)

	scoresExportCmd.Flags().StringVarP(&scoresOut, "out", "o", "", "출력 파일 (기본: stdout)")
}

func exportScores(cmd *cobra.Command, args []string) error {
	cfg, _, err := strategyconfig.Load(args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	d, err := initDeps(cmd.Context())
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer d.Close()

	scores, err := d.newEngine().Scores(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if scoresOut != "" {
		f, err := os.Create(scoresOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", scoresOut, err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := s2_signals.WriteCSV(bw, scores); err != nil {
		return fmt.Errorf("write scores: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write scores: %w", err)
	}

	if scoresOut != "" {
		PrintSuccess(fmt.Sprintf("Exported %d days × %d instruments to %s", len(scores.Dates), len(scores.Instruments), scoresOut))
	}
	return nil
}
