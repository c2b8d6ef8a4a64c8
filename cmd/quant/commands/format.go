package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wonny/stockbt/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintTable renders rows with a header to stdout
func PrintTable(header []string, rows [][]string) {
	if err := renderTable(os.Stdout, header, rows); err != nil {
		PrintError(fmt.Sprintf("render table: %v", err))
	}
}

// renderTable 좌우 테두리만 그리는 테이블
func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.Border{Left: tw.On, Right: tw.On, Top: tw.Off, Bottom: tw.Off},
			Symbols: tw.NewSymbols(tw.StyleASCII),
		})),
	)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("append rows: %w", err)
	}
	return table.Render()
}

// PrintMetrics renders a metrics report as a two-column table
func PrintMetrics(m *contracts.Metrics) {
	if m == nil {
		PrintWarning("No metrics")
		return
	}
	PrintTable([]string{"Metric", "Value"}, [][]string{
		{"Trading Days", strconv.Itoa(m.TradingDays)},
		{"Cumulative Return", pct(m.CumulativeReturn)},
		{"Annualized Return", pct(m.AnnualizedReturn)},
		{"Volatility", pct(m.Volatility)},
		{"Max Drawdown", pct(m.MaxDrawdown)},
		{"Sharpe Ratio", ratio(m.Sharpe)},
		{"Sortino Ratio", ratio(m.Sortino)},
		{"Win Rate", pct(m.WinRate)},
		{"VaR 95% (1d)", pct(-m.VaR95)},
		{"CVaR 95% (1d)", pct(-m.CVaR95)},
	})
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
