package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/resultstore/archive"
	"github.com/wonny/stockbt/pkg/config"
)

func TestHoldingsText(t *testing.T) {
	assert.Equal(t, "-", holdingsText(nil))
	assert.Equal(t, "000001.SZ 25.0%, 600000.SH 50.0%",
		holdingsText(map[string]float64{"600000.SH": 0.5, "000001.SZ": 0.25}))
}

func TestPct(t *testing.T) {
	assert.Equal(t, "+1.50%", pct(0.015))
	assert.Equal(t, "-2.00%", pct(-0.02))
}

func TestLoadRunSpecs(t *testing.T) {
	specs, err := loadRunSpecs([]string{
		filepath.Join("..", "..", "..", "configs", "fixed.yaml"),
	})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, contracts.KindFixed, specs[0].Config.Strategy.Kind)

	_, err = loadRunSpecs([]string{"missing.yaml"})
	assert.Error(t, err)
}

func TestNewStorage_Local(t *testing.T) {
	storage, err := newStorage(config.ResultsConfig{Backend: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	_, ok := storage.(*archive.LocalFS)
	assert.True(t, ok)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	err := renderTable(&buf, []string{"Metric", "Value"}, [][]string{
		{"Sharpe Ratio", "1.25"},
		{"Win Rate", "+55.00%"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, strings.ToLower(out), "metric")
	assert.Contains(t, out, "Sharpe Ratio")
	assert.Contains(t, out, "+55.00%")
	assert.Contains(t, out, "|")
}
