package s0_data

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestCSVSource_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		BarsFile: "date,instrument_id,open,high,low,close,volume\n" +
			"2024-01-02,600000.SH,10,10.2,9.9,10.1,5000\n" +
			"20240103,600000.SH,10.1,10.3,10,,\n",
		InstrumentsFile: "id,asset_class,list_date,delist_date\n" +
			"600000.SH,equity,1999-11-10,\n" +
			"110059.SH,convertible_bond,2021-01-01,2024-06-30\n",
		StatusFile: "date,instrument_id,status\n2024-01-03,600000.SH,suspended\n",
		RiskFile:   "date,instrument_id,flag\n2024-01-02,600000.SH,*ST\n",
		LimitsFile: "date,instrument_id,limit\n2024-01-02,600000.SH,up\n",
	})
	src := NewCSVSource(dir)
	ctx := context.Background()

	bars, err := src.Bars(ctx, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 10.1, bars[0].Close)
	assert.True(t, math.IsNaN(bars[1].Close), "blank close must stay NaN")
	assert.True(t, math.IsNaN(bars[1].Volume))

	master, err := src.Instruments(ctx)
	require.NoError(t, err)
	require.Len(t, master, 2)
	assert.Equal(t, contracts.AssetConvertibleBond, master[1].AssetClass)
	require.NotNil(t, master[1].DelistDate)

	status, _ := src.TradeStatus(ctx, day(1), day(31))
	risk, _ := src.RiskFlags(ctx, day(1), day(31))
	limits, _ := src.Limits(ctx, day(1), day(31))
	assert.Equal(t, contracts.FlagSuspended, status[0].Flags)
	assert.Equal(t, contracts.FlagRiskWarning, risk[0].Flags)
	assert.Equal(t, contracts.FlagLimitUp, limits[0].Flags)

	earliest, _ := src.EarliestDate(ctx)
	latest, _ := src.LatestDate(ctx)
	assert.True(t, earliest.Equal(day(2)))
	assert.True(t, latest.Equal(day(3)))

	cal, err := src.Calendar(ctx, day(1), day(31))
	require.NoError(t, err)
	assert.Empty(t, cal, "no calendar.csv means derive from bars")
}

func TestCSVSource_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"missing bars file", map[string]string{}},
		{"missing close column", map[string]string{BarsFile: "date,instrument_id,open\n2024-01-02,A,1\n"}},
		{"bad number", map[string]string{BarsFile: "date,instrument_id,close\n2024-01-02,A,abc\n"}},
		{"bad date", map[string]string{BarsFile: "date,instrument_id,close\n01/02/2024,A,1\n"}},
		{"bad status", map[string]string{
			BarsFile:   "date,instrument_id,close\n2024-01-02,A,1\n",
			StatusFile: "date,instrument_id,status\n2024-01-02,A,frozen\n",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewCSVSource(writeFiles(t, tt.files))
			_, err := src.Bars(context.Background(), day(1), day(31))
			assert.Error(t, err)
		})
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		parse func(string) (contracts.StatusFlags, error)
		in    string
		want  contracts.StatusFlags
	}{
		{ParseTradeStatus, "停牌", contracts.FlagSuspended},
		{ParseTradeStatus, "", contracts.FlagNormal},
		{ParseRiskFlag, "st", contracts.FlagRiskWarning},
		{ParseRiskFlag, "none", contracts.FlagNormal},
		{ParseLimit, "跌停", contracts.FlagLimitDown},
		{ParseLimit, "1", contracts.FlagLimitUp},
	}
	for _, tt := range tests {
		got, err := tt.parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
