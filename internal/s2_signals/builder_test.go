package s2_signals

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/redis"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

// testDataset builds a dataset from close series; NaN means no bar
func testDataset(startIndex int, closes map[string][]float64) *contracts.Dataset {
	n := 0
	var instruments []contracts.Instrument
	for id, series := range closes {
		n = len(series)
		instruments = append(instruments, contracts.Instrument{ID: id, AssetClass: contracts.AssetEquity})
	}
	calendar := make([]time.Time, n)
	for d := range calendar {
		calendar[d] = day(d + 1)
	}
	ds := contracts.NewDataset(calendar, instruments, startIndex)
	for id, series := range closes {
		i, _ := ds.InstrumentIndex(id)
		for d, c := range series {
			if math.IsNaN(c) {
				continue
			}
			ds.Bars[d][i] = contracts.DailyBar{
				InstrumentID: id, Date: calendar[d],
				Open: c, High: c, Low: c, Close: c, Volume: 1000 * c,
			}
		}
	}
	return ds
}

func fixture() *contracts.Dataset {
	nan := math.NaN()
	return testDataset(2, map[string][]float64{
		"A": {10, 11, 12, 13, 14, 15},
		"B": {10, 10, 10, 10, 10, 11},
		"C": {10, 9, 8, 7, 6, nan},
	})
}

func momentumOnly(minHistory, workers int) Config {
	return Config{
		MomentumWindow:   2,
		VolatilityWindow: 2,
		VolumeWindow:     2,
		MinHistory:       minHistory,
		Weights:          strategyconfig.FeatureWeights{Momentum: 1},
		Workers:          workers,
	}
}

func TestPercentileRank(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		valid  []bool
		want   []float64
	}{
		{"ordered", []float64{3, 1, 2}, []bool{true, true, true}, []float64{1, 0, 0.5}},
		{"ties share average", []float64{1, 1, 2}, []bool{true, true, true}, []float64{0.25, 0.25, 1}},
		{"single valid", []float64{7, 0}, []bool{true, false}, []float64{0.5, 0}},
		{"none valid", []float64{1, 2}, []bool{false, false}, []float64{0, 0}},
		{"invalid skipped", []float64{5, 100, 1}, []bool{true, false, true}, []float64{1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentileRank(tt.values, tt.valid)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
}

func TestCalculators(t *testing.T) {
	ds := fixture()
	a, _ := ds.InstrumentIndex("A")
	b, _ := ds.InstrumentIndex("B")

	mom := &MomentumCalculator{Window: 2}
	v, ok := mom.Calculate(ds, 2, a)
	require.True(t, ok)
	assert.InDelta(t, 0.2, v, 1e-12)
	_, ok = mom.Calculate(ds, 1, a)
	assert.False(t, ok, "window reaches before calendar")

	vol := &VolatilityCalculator{Window: 2}
	v, ok = vol.Calculate(ds, 3, b)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	liq := &LiquidityCalculator{Window: 2}
	v, ok = liq.Calculate(ds, 1, a)
	require.True(t, ok)
	assert.InDelta(t, 10500.0, v, 1e-9)
}

func TestBuilder_Build(t *testing.T) {
	ds := fixture()
	m, err := NewBuilder(momentumOnly(3, 1), nil).Build(context.Background(), ds)
	require.NoError(t, err)

	require.Len(t, m.Dates, 4)
	assert.True(t, m.Dates[0].Equal(day(3)))

	// 3일: A 0.2, B 0, C -0.2
	assert.Equal(t, contracts.Defined(1), m.Get(day(3), "A"))
	assert.Equal(t, contracts.Defined(0.5), m.Get(day(3), "B"))
	assert.Equal(t, contracts.Defined(0), m.Get(day(3), "C"))

	// 6일 C 봉 없음: 미정의 (0 아님)
	assert.False(t, m.Get(day(6), "C").Valid)
	assert.Equal(t, contracts.Defined(1), m.Get(day(6), "A"))
	assert.Equal(t, contracts.Defined(0), m.Get(day(6), "B"))

	ranked := m.Rank(day(3))
	require.Len(t, ranked, 3)
	assert.Equal(t, "A", ranked[0].InstrumentID)
	assert.Equal(t, 1, ranked[0].Rank)
}

func TestBuilder_MinHistory(t *testing.T) {
	m, err := NewBuilder(momentumOnly(4, 1), nil).Build(context.Background(), fixture())
	require.NoError(t, err)
	assert.Equal(t, 0, m.ValidCount(day(3)), "only 3 closes by day 3")
	assert.Equal(t, 3, m.ValidCount(day(4)))
}

func TestBuilder_ParallelMatchesSequential(t *testing.T) {
	cfg := momentumOnly(2, 1)
	cfg.Weights = strategyconfig.FeatureWeights{Momentum: 0.4, Volatility: 0.3, Liquidity: 0.3}

	seq, err := NewBuilder(cfg, nil).Build(context.Background(), fixture())
	require.NoError(t, err)
	cfg.Workers = 8
	par, err := NewBuilder(cfg, nil).Build(context.Background(), fixture())
	require.NoError(t, err)

	assert.Equal(t, seq.Values, par.Values)
	for _, row := range par.Values {
		for _, s := range row {
			if s.Valid {
				assert.GreaterOrEqual(t, s.Value, 0.0)
				assert.LessOrEqual(t, s.Value, 1.0)
			}
		}
	}
}

func TestBuilder_Errors(t *testing.T) {
	cfg := momentumOnly(1, 1)
	cfg.Weights = strategyconfig.FeatureWeights{}
	_, err := NewBuilder(cfg, nil).Build(context.Background(), fixture())
	var ce *contracts.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBuilder(momentumOnly(1, 2), nil).Build(ctx, fixture())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSV_RoundTrip(t *testing.T) {
	m, err := NewBuilder(momentumOnly(3, 1), nil).Build(context.Background(), fixture())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, m))
	assert.True(t, strings.HasPrefix(buf.String(), "date,A,B,C\n"))

	back, err := ReadCSV(&buf, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, m.Instruments, back.Instruments)
	assert.Equal(t, m.Values, back.Values)
	for d := range m.Dates {
		assert.True(t, m.Dates[d].Equal(back.Dates[d]))
	}
}

func TestReadCSV(t *testing.T) {
	t.Run("out of range without normalize", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("date,X,Y\n2024-03-01,3,5\n"), ReadOptions{})
		assert.Error(t, err)
	})

	t.Run("min-max normalize", func(t *testing.T) {
		m, err := ReadCSV(strings.NewReader("date,X,Y,Z\n2024-03-01,3,5,\n20240302,2,2,NaN\n"), ReadOptions{Normalize: true})
		require.NoError(t, err)
		assert.Equal(t, contracts.Defined(0), m.Get(day(1), "X"))
		assert.Equal(t, contracts.Defined(1), m.Get(day(1), "Y"))
		assert.False(t, m.Get(day(1), "Z").Valid)
		assert.Equal(t, contracts.Defined(0.5), m.Get(day(2), "X"))
		assert.False(t, m.Get(day(2), "Z").Valid)
	})

	t.Run("unordered dates", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("date,X\n2024-03-02,0.1\n2024-03-01,0.2\n"), ReadOptions{})
		assert.Error(t, err)
	})
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	body := "date,A,Z\n2024-03-03,0.9,0.4\n2024-03-05,0.1,0.2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	m, err := NewFileSource(path, ReadOptions{}, nil).Build(context.Background(), fixture())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, m.Instruments)
	assert.Len(t, m.Dates, 4)
	assert.Equal(t, contracts.Defined(0.9), m.Get(day(3), "A"))
	assert.False(t, m.Get(day(3), "B").Valid, "column absent from file")
	assert.False(t, m.Get(day(4), "A").Valid, "row absent from file")
	assert.False(t, m.Get(day(3), "Z").Valid, "instrument absent from dataset")

	_, err = NewFileSource(filepath.Join(t.TempDir(), "nope.csv"), ReadOptions{}, nil).Build(context.Background(), fixture())
	assert.Error(t, err)
}

type countingSource struct {
	calls int
	inner contracts.ScoreSource
}

func (c *countingSource) Build(ctx context.Context, ds *contracts.Dataset) (*contracts.ScoreMatrix, error) {
	c.calls++
	return c.inner.Build(ctx, ds)
}

func TestCachedBuilder_DisabledRedis(t *testing.T) {
	inner := &countingSource{inner: NewBuilder(momentumOnly(3, 1), nil)}
	cache := redis.NewCache(redis.Disabled(), "stockbt")
	cb := NewCachedBuilder(inner, cache, "cfg", 0, nil)

	for i := 0; i < 2; i++ {
		m, err := cb.Build(context.Background(), fixture())
		require.NoError(t, err)
		assert.Equal(t, 3, m.ValidCount(day(3)))
	}
	assert.Equal(t, 2, inner.calls, "disabled cache always misses")
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("cfg", fixture())
	assert.Equal(t, a, Fingerprint("cfg", fixture()))
	assert.NotEqual(t, a, Fingerprint("other", fixture()))

	ds := fixture()
	ds.Bars[0][0].Close = 99
	assert.NotEqual(t, a, Fingerprint("cfg", ds))
}
