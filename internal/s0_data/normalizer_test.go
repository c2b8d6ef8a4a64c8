package s0_data

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(id string, d int, close float64) contracts.DailyBar {
	return contracts.DailyBar{InstrumentID: id, Date: day(d), Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func fixture() *MemorySource {
	return &MemorySource{
		Days: []time.Time{day(2), day(3), day(4), day(5), day(8), day(9)},
		Master: []contracts.Instrument{
			{ID: "600000.SH", AssetClass: contracts.AssetEquity},
			{ID: "510300.SH", AssetClass: contracts.AssetETF},
		},
		BarRows: []contracts.DailyBar{
			bar("600000.SH", 2, 10), bar("600000.SH", 3, 10.5), bar("600000.SH", 4, 10.2),
			bar("600000.SH", 8, 10.4), bar("600000.SH", 9, 10.6),
			bar("510300.SH", 2, 4), bar("510300.SH", 3, 4.1), bar("510300.SH", 4, 4.2),
			bar("510300.SH", 5, 4.3), bar("510300.SH", 8, 4.4), bar("510300.SH", 9, 4.5),
			bar("113050.SH", 9, 120), // 마스터에 없는 전환사채
		},
		StatusRows: []contracts.FlagRecord{
			{InstrumentID: "600000.SH", Date: day(5), Flags: contracts.FlagSuspended},
		},
		RiskRows: []contracts.FlagRecord{
			{InstrumentID: "600000.SH", Date: day(8), Flags: contracts.FlagRiskWarning},
		},
		LimitRows: []contracts.FlagRecord{
			{InstrumentID: "510300.SH", Date: day(9), Flags: contracts.FlagLimitUp},
		},
	}
}

func TestNormalize_AlignsTables(t *testing.T) {
	n := NewNormalizer(fixture(), time.Second, nil)

	ds, err := n.Normalize(context.Background(), Request{Start: day(4), End: day(9), WarmupDays: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"113050.SH", "510300.SH", "600000.SH"}, ds.InstrumentIDs())
	require.Len(t, ds.Calendar, 6)
	assert.Equal(t, 2, ds.StartIndex)
	assert.True(t, ds.Calendar[ds.StartIndex].Equal(day(4)))

	pf, _ := ds.InstrumentIndex("600000.SH")
	etf, _ := ds.InstrumentIndex("510300.SH")

	// 5일 600000 봉 없음: NaN (0 아님)
	assert.True(t, math.IsNaN(ds.Close(3, pf)))
	assert.Equal(t, 4.3, ds.Close(3, etf))

	assert.True(t, ds.Status[3][pf].Has(contracts.FlagSuspended))
	assert.True(t, ds.Risk[4][pf].Has(contracts.FlagRiskWarning))
	assert.True(t, ds.Limit[5][etf].Has(contracts.FlagLimitUp))
	assert.Equal(t, contracts.FlagNormal, ds.Flags(2, pf))

	cb, _ := ds.InstrumentIndex("113050.SH")
	assert.Equal(t, contracts.AssetEquity, ds.Instruments[cb].AssetClass)
}

func TestNormalize_DataGap(t *testing.T) {
	n := NewNormalizer(fixture(), time.Second, nil)

	_, err := n.Normalize(context.Background(), Request{Start: day(1), End: day(9)})
	var gap *contracts.DataGapError
	require.True(t, errors.As(err, &gap), "got %v", err)
	assert.True(t, gap.Earliest.Equal(day(2)))
}

func TestNormalize_ClipsToLatest(t *testing.T) {
	n := NewNormalizer(fixture(), time.Second, nil)

	ds, err := n.Normalize(context.Background(), Request{Start: day(8), End: day(31)})
	require.NoError(t, err)
	assert.True(t, ds.Calendar[len(ds.Calendar)-1].Equal(day(9)))
	assert.Len(t, ds.SimulationDays(), 2)
}

func TestNormalize_DerivesCalendarFromBars(t *testing.T) {
	src := fixture()
	src.Days = nil
	n := NewNormalizer(src, time.Second, nil)

	ds, err := n.Normalize(context.Background(), Request{Start: day(3), End: day(9), WarmupDays: 1})
	require.NoError(t, err)
	assert.Len(t, ds.Calendar, 6)
	assert.Equal(t, 1, ds.StartIndex)
}

func TestNormalize_DelistedFromMaster(t *testing.T) {
	src := fixture()
	delist := day(8)
	src.Master[0].DelistDate = &delist
	n := NewNormalizer(src, time.Second, nil)

	ds, err := n.Normalize(context.Background(), Request{Start: day(2), End: day(9)})
	require.NoError(t, err)
	pf, _ := ds.InstrumentIndex("600000.SH")
	assert.False(t, ds.Status[3][pf].Has(contracts.FlagDelisted))
	assert.True(t, ds.Status[4][pf].Has(contracts.FlagDelisted))
	assert.True(t, ds.Status[5][pf].Has(contracts.FlagDelisted))
}

func TestNormalize_EmptyRange(t *testing.T) {
	n := NewNormalizer(fixture(), time.Second, nil)

	_, err := n.Normalize(context.Background(), Request{Start: day(6), End: day(7)})
	var ide *contracts.InsufficientDataError
	assert.True(t, errors.As(err, &ide), "got %v", err)

	_, err = n.Normalize(context.Background(), Request{Start: day(9), End: day(2)})
	var ce *contracts.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

// slowSource blocks bar queries until the context ends
type slowSource struct {
	*MemorySource
}

func (s slowSource) Bars(ctx context.Context, _, _ time.Time) ([]contracts.DailyBar, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNormalize_Timeout(t *testing.T) {
	n := NewNormalizer(slowSource{fixture()}, 20*time.Millisecond, nil)

	_, err := n.Normalize(context.Background(), Request{Start: day(2), End: day(9)})
	var te *contracts.TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, contracts.StageData, te.Stage)
}

func TestNormalize_ParentCanceled(t *testing.T) {
	n := NewNormalizer(slowSource{fixture()}, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Normalize(ctx, Request{Start: day(2), End: day(9)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, contracts.IsTimeout(err))
}

func TestAssess(t *testing.T) {
	n := NewNormalizer(fixture(), time.Second, nil)
	ds, err := n.Normalize(context.Background(), Request{Start: day(2), End: day(9)})
	require.NoError(t, err)

	rep := Assess(ds)
	assert.Equal(t, 6, rep.Days)
	assert.Equal(t, 3, rep.Instruments)
	// 18 cells: 600000 5개, 510300 6개, 113050 1개
	assert.Equal(t, 6, rep.MissingCells)
	assert.InDelta(t, 12.0/18.0, rep.Coverage["price"], 1e-12)
	assert.Equal(t, 1, rep.Suspended)
	assert.Equal(t, 1, rep.RiskWarning)
	assert.Equal(t, 1, rep.LimitUp)
	assert.Equal(t, 1, rep.ByAssetClass["etf"])
}
