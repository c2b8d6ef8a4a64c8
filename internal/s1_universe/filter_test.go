package s1_universe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

// fixture: one day, one instrument per exclusion case
func fixture(t *testing.T) (*contracts.Dataset, *contracts.ScoreMatrix) {
	t.Helper()
	ids := []string{"BL", "DL", "LU", "NEW", "NOBAR", "OK", "ST", "STSUS", "SUS", "UNDEF"}
	instruments := make([]contracts.Instrument, len(ids))
	for i, id := range ids {
		instruments[i] = contracts.Instrument{ID: id, AssetClass: contracts.AssetEquity}
	}
	instruments[3].ListDate = day(10)

	ds := contracts.NewDataset([]time.Time{day(6)}, instruments, 0)
	for i, id := range ids {
		if id == "NOBAR" {
			continue
		}
		ds.Bars[0][i] = contracts.DailyBar{InstrumentID: id, Date: day(6), Close: 10, Volume: 100}
	}
	set := func(id string, table [][]contracts.StatusFlags, f contracts.StatusFlags) {
		i, ok := ds.InstrumentIndex(id)
		require.True(t, ok)
		table[0][i] |= f
	}
	set("DL", ds.Status, contracts.FlagDelisted)
	set("SUS", ds.Status, contracts.FlagSuspended)
	set("STSUS", ds.Status, contracts.FlagSuspended)
	set("STSUS", ds.Risk, contracts.FlagRiskWarning)
	set("ST", ds.Risk, contracts.FlagRiskWarning)
	set("LU", ds.Limit, contracts.FlagLimitUp)

	row := make([]contracts.Score, len(ids))
	for i, id := range ids {
		if id != "UNDEF" {
			row[i] = contracts.Defined(0.5)
		}
	}
	scores, err := contracts.NewScoreMatrix([]time.Time{day(6)}, ids, [][]contracts.Score{row})
	require.NoError(t, err)
	return ds, scores
}

func TestFilter_Eligible(t *testing.T) {
	ds, scores := fixture(t)
	f := NewFilter(ds, scores, contracts.NewBlacklist("BL", "ZZZ"), Config{ExcludeRiskWarning: true}, nil)

	u := f.Eligible(0)

	assert.Equal(t, []string{"LU", "OK"}, u.Instruments)
	assert.Equal(t, 10, u.TotalCount)
	assert.Equal(t, map[string]contracts.ExclusionReason{
		"BL":    contracts.ReasonBlacklisted,
		"DL":    contracts.ReasonDelisted,
		"NEW":   contracts.ReasonNotListed,
		"NOBAR": contracts.ReasonNoData,
		"ST":    contracts.ReasonRiskWarning,
		"STSUS": contracts.ReasonSuspended, // 정지가 경고보다 우선
		"SUS":   contracts.ReasonSuspended,
		"UNDEF": contracts.ReasonUndefinedScore,
	}, u.Excluded)
	assert.True(t, u.Date.Equal(day(6)))
}

func TestFilter_Policy(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    []string
		wantOut contracts.ExclusionReason
	}{
		{"risk warning allowed", Config{}, []string{"LU", "OK", "ST"}, ""},
		{"limit up excluded", Config{ExcludeRiskWarning: true, ExcludeLimitUp: true}, []string{"OK"}, contracts.ReasonLimitUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, scores := fixture(t)
			u := NewFilter(ds, scores, contracts.NewBlacklist("BL"), tt.config, nil).Eligible(0)
			assert.Equal(t, tt.want, u.Instruments)
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, u.Excluded["LU"])
			}
		})
	}
}

func TestConfigFrom_DefaultsRiskWarningOn(t *testing.T) {
	assert.True(t, ConfigFrom(strategyconfig.Eligibility{}).ExcludeRiskWarning)
	off := false
	assert.False(t, ConfigFrom(strategyconfig.Eligibility{ExcludeRiskWarning: &off}).ExcludeRiskWarning)
}

func TestSummary(t *testing.T) {
	ds, scores := fixture(t)
	u := NewFilter(ds, scores, nil, Config{ExcludeRiskWarning: true}, nil).Eligible(0)
	s := Summary(u)
	assert.Equal(t, 2, s[contracts.ReasonSuspended])
	assert.Equal(t, 0, s[contracts.ReasonBlacklisted])
}
