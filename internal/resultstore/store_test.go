package resultstore

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/resultstore/archive"
)

func sampleResult(kind contracts.StrategyKind, created time.Time) *contracts.BacktestResult {
	d0 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	days := []contracts.DayRecord{
		{Date: d0, DailyReturn: -0.00075, Cost: 0.00075, Turnover: 0.5, Cash: 0.5, Holdings: map[string]float64{"600000.SH": 0.5}},
		{Date: d0.AddDate(0, 0, 1), DailyReturn: 0.1 / 3, GrossReturn: 0.1 / 3, Cash: 1.0 / 3, Holdings: map[string]float64{"600000.SH": 2.0 / 3}},
		{Date: d0.AddDate(0, 0, 2), DailyReturn: math.Nextafter(0.01, 1), GrossReturn: math.Nextafter(0.01, 1), Cash: 1, Holdings: map[string]float64{}},
	}
	return &contracts.BacktestResult{
		RunID:    "3f2a9c1e-0000-4000-8000-000000000000",
		Strategy: kind,
		Start:    days[0].Date,
		End:      days[2].Date,
		Days:     days,
		Meta: contracts.RunMeta{
			RunID:        "3f2a9c1e-0000-4000-8000-000000000000",
			Strategy:     kind,
			Summary:      "top1-equal-daily",
			Parameters:   map[string]string{"top_k": "1"},
			UniverseSize: 3,
			Metrics:      &contracts.Metrics{CumulativeReturn: 0.04, TradingDays: 3},
			Warnings:     []string{"HIGH_TURNOVER: daily"},
			CreatedAt:    created,
		},
	}
}

func newStore(t *testing.T, precision int) (*Store, *archive.LocalFS) {
	t.Helper()
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return New(fs, precision, nil), fs
}

func TestFileName(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	name := FileName(contracts.KindDynamic, "th0.7_max20", "3f2a9c1e-aaaa", created)
	assert.Equal(t, "dynamic_strategy_th0.7-max20-3f2a9c1e_20240506070809.csv", name)

	e, err := ParseName(name)
	require.NoError(t, err)
	assert.Equal(t, contracts.KindDynamic, e.Kind)
	assert.Equal(t, "th0.7-max20-3f2a9c1e", e.Summary)
	assert.True(t, e.CreatedAt.Equal(created))
}

func TestParseName_Invalid(t *testing.T) {
	for _, name := range []string{
		"fixed_strategy_top1_20240506070809.txt",
		"momentum_strategy_top1_20240506070809.csv",
		"fixed_strategy_top1.csv",
		"fixed_strategy_top1_2024.csv",
		"notes.csv",
		"fixed_strategy_../../etc/top1_20240506070809.csv",
		"fixed_strategy_a/b_20240506070809.csv",
		`fixed_strategy_a\b_20240506070809.csv`,
		"fixed_strategy_top1..x_20240506070809.csv",
	} {
		_, err := ParseName(name)
		assert.Error(t, err, name)
	}
}

func TestStore_RoundTripExact(t *testing.T) {
	store, _ := newStore(t, -1)
	ctx := context.Background()
	in := sampleResult(contracts.KindFixed, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))

	loc, err := store.Save(ctx, in)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc, "fixed_strategy_top1-equal-daily-3f2a9c1e_20240506070809.csv"))

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	out, err := store.Read(ctx, entries[0].Name)
	require.NoError(t, err)
	require.Len(t, out.Days, len(in.Days))
	for i := range in.Days {
		// -1 정밀도: 비트 단위 동일
		assert.Equal(t, math.Float64bits(in.Days[i].DailyReturn), math.Float64bits(out.Days[i].DailyReturn))
		assert.Equal(t, in.Days[i].Holdings, out.Days[i].Holdings)
		assert.True(t, in.Days[i].Date.Equal(out.Days[i].Date))
		assert.Equal(t, in.Days[i].Cash, out.Days[i].Cash)
	}
	assert.Equal(t, in.RunID, out.RunID)
	assert.Equal(t, contracts.KindFixed, out.Strategy)
	assert.Equal(t, in.Meta.Metrics, out.Meta.Metrics)
	assert.Equal(t, 3, out.Meta.UniverseSize)
	require.NotNil(t, out.Meta.Precision)
	assert.Equal(t, -1, *out.Meta.Precision)
	assert.True(t, out.End.Equal(in.End))
}

func TestStore_FixedPrecision(t *testing.T) {
	store, _ := newStore(t, 4)
	ctx := context.Background()
	in := sampleResult(contracts.KindFixed, time.Now())

	_, err := store.Save(ctx, in)
	require.NoError(t, err)
	entries, _ := store.List(ctx, Filter{})
	require.Len(t, entries, 1)

	raw, err := store.ReadRaw(ctx, entries[0].Name)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, "date,daily_return,gross_return,cost,turnover,cash,holdings", lines[0])
	assert.Equal(t, "2024-03-04,-0.0008,0.0000,0.0008,0.5000,0.5000,600000.SH:0.5000", lines[1])

	out, err := store.Read(ctx, entries[0].Name)
	require.NoError(t, err)
	for i := range in.Days {
		assert.InDelta(t, in.Days[i].DailyReturn, out.Days[i].DailyReturn, 1e-4)
	}
}

func TestStore_RunPrecisionOverridesDefault(t *testing.T) {
	store, _ := newStore(t, -1)
	ctx := context.Background()
	in := sampleResult(contracts.KindFixed, time.Now())
	two := 2
	in.Meta.Precision = &two

	_, err := store.Save(ctx, in)
	require.NoError(t, err)
	entries, _ := store.List(ctx, Filter{})
	require.Len(t, entries, 1)

	raw, err := store.ReadRaw(ctx, entries[0].Name)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, "2024-03-04,0.00,0.00,0.00,0.50,0.50,600000.SH:0.50", lines[1])

	meta, err := store.ReadMeta(ctx, entries[0].Name)
	require.NoError(t, err)
	assert.Equal(t, 2, *meta.Precision)
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	store, _ := newStore(t, -1)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for _, r := range []*contracts.BacktestResult{
		sampleResult(contracts.KindFixed, now.Add(-48*time.Hour)),
		sampleResult(contracts.KindDynamic, now.Add(-time.Hour)),
		sampleResult(contracts.KindFixed, now.Add(-2*time.Hour)),
	} {
		_, err := store.Save(ctx, r)
		require.NoError(t, err)
	}

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, contracts.KindDynamic, all[0].Kind)
	assert.True(t, all[1].CreatedAt.After(all[2].CreatedAt))

	fixed, _ := store.List(ctx, Filter{Kind: contracts.KindFixed})
	assert.Len(t, fixed, 2)

	recent, _ := store.List(ctx, Filter{Kind: contracts.KindFixed, MaxAge: 24 * time.Hour})
	require.Len(t, recent, 1)
	assert.True(t, recent[0].CreatedAt.Equal(now.Add(-2*time.Hour)))
}

func TestStore_Prune(t *testing.T) {
	store, fs := newStore(t, -1)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	old := sampleResult(contracts.KindFixed, now.Add(-31*24*time.Hour))
	fresh := sampleResult(contracts.KindDynamic, now.Add(-29*24*time.Hour))
	for _, r := range []*contracts.BacktestResult{old, fresh} {
		_, err := store.Save(ctx, r)
		require.NoError(t, err)
	}

	removed, err := store.Prune(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.True(t, strings.HasPrefix(removed[0], "fixed_"))

	ok, _ := fs.Exists(ctx, metaName(removed[0]))
	assert.False(t, ok, "sidecar removed with the result")

	left, _ := store.List(ctx, Filter{})
	require.Len(t, left, 1)
	assert.Equal(t, contracts.KindDynamic, left[0].Kind)
}

func TestStore_NotFound(t *testing.T) {
	store, _ := newStore(t, -1)
	ctx := context.Background()

	_, err := store.Read(ctx, "fixed_strategy_top1_20240101000000.csv")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = store.ReadRaw(ctx, "../etc/passwd")
	assert.True(t, errors.Is(err, ErrNotFound))

	escape := "fixed_strategy_../../outside/top1_20240101000000.csv"
	_, err = store.ReadRaw(ctx, escape)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	_, err = store.ReadMeta(ctx, escape)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	_, err = store.Read(ctx, escape)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

// failingStorage fails CSV writes after the sidecar succeeds
type failingStorage struct {
	*archive.LocalFS
}

func (f failingStorage) Write(ctx context.Context, path string, data []byte) error {
	if strings.HasSuffix(path, csvExt) {
		return errors.New("disk full")
	}
	return f.LocalFS.Write(ctx, path, data)
}

func TestStore_SaveIsAllOrNothing(t *testing.T) {
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	store := New(failingStorage{fs}, -1, nil)
	ctx := context.Background()

	_, err = store.Save(ctx, sampleResult(contracts.KindFixed, time.Now()))
	require.Error(t, err)

	paths, err := fs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, paths, "no partial artifact left behind")

	_, err = store.Save(ctx, &contracts.BacktestResult{Strategy: contracts.KindFixed})
	assert.Error(t, err)
}
