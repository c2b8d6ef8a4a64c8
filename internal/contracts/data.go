package contracts

import (
	"math"
	"sort"
	"time"
)

// AssetClass 종목 자산군
type AssetClass string

const (
	AssetEquity          AssetClass = "equity"
	AssetETF             AssetClass = "etf"
	AssetConvertibleBond AssetClass = "convertible_bond"
)

// IsValid checks if the asset class is known
func (a AssetClass) IsValid() bool {
	switch a {
	case AssetEquity, AssetETF, AssetConvertibleBond:
		return true
	}
	return false
}

// Instrument 종목 마스터 (불변)
// ⭐ SSOT: 모든 스테이지는 ID 문자열로 종목을 참조
type Instrument struct {
	ID         string     `json:"id"`
	AssetClass AssetClass `json:"asset_class"`
	ListDate   time.Time  `json:"list_date"`
	DelistDate *time.Time `json:"delist_date,omitempty"`
}

// ListedOn reports whether the instrument is listed on the given day
func (i Instrument) ListedOn(day time.Time) bool {
	if !i.ListDate.IsZero() && day.Before(i.ListDate) {
		return false
	}
	if i.DelistDate != nil && !day.Before(*i.DelistDate) {
		return false
	}
	return true
}

// DailyBar 수정주가 일봉
type DailyBar struct {
	InstrumentID string    `json:"instrument_id"`
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
}

// missingBar 데이터 없음 (0이 아닌 NaN)
var missingBar = DailyBar{
	Open:   math.NaN(),
	High:   math.NaN(),
	Low:    math.NaN(),
	Close:  math.NaN(),
	Volume: math.NaN(),
}

// MissingBar returns a bar marked as "no data"
func MissingBar(id string, day time.Time) DailyBar {
	b := missingBar
	b.InstrumentID = id
	b.Date = day
	return b
}

// HasData reports whether the bar carries a usable close
func (b DailyBar) HasData() bool {
	return !math.IsNaN(b.Close) && b.Close > 0
}

// StatusFlags 거래 상태 비트셋 (중복 가능)
type StatusFlags uint8

const (
	FlagSuspended StatusFlags = 1 << iota
	FlagRiskWarning
	FlagLimitUp
	FlagLimitDown
	FlagDelisted
)

// FlagNormal 정상 상태
const FlagNormal StatusFlags = 0

// Has reports whether all bits of f are set
func (s StatusFlags) Has(f StatusFlags) bool {
	return s&f == f
}

// Tradable reports whether the instrument can be traded on that day
func (s StatusFlags) Tradable() bool {
	return s&(FlagSuspended|FlagDelisted) == 0
}

// String renders the flags as a '|' joined list
func (s StatusFlags) String() string {
	if s == FlagNormal {
		return "normal"
	}
	names := []struct {
		f    StatusFlags
		name string
	}{
		{FlagSuspended, "suspended"},
		{FlagRiskWarning, "risk_warning"},
		{FlagLimitUp, "limit_up"},
		{FlagLimitDown, "limit_down"},
		{FlagDelisted, "delisted"},
	}
	out := ""
	for _, n := range names {
		if s.Has(n.f) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// FlagRecord 원천 상태 피드 한 행
type FlagRecord struct {
	InstrumentID string      `json:"instrument_id"`
	Date         time.Time   `json:"date"`
	Flags        StatusFlags `json:"flags"`
}

// Dataset S0 → S2/S1/S4 정렬된 데이터
// ⭐ SSOT: 모든 테이블은 [day][instrument] 인덱스 (Calendar × Instruments)
type Dataset struct {
	Calendar    []time.Time  `json:"calendar"`
	Instruments []Instrument `json:"instruments"`
	// StartIndex 요청 시작일 인덱스 (그 이전은 워밍업 구간)
	StartIndex int `json:"start_index"`

	Bars   [][]DailyBar    `json:"-"`
	Status [][]StatusFlags `json:"-"`
	Risk   [][]StatusFlags `json:"-"`
	Limit  [][]StatusFlags `json:"-"`

	index map[string]int
}

// NewDataset allocates aligned tables filled with "no data" bars and normal flags.
// Instruments are sorted by ID.
func NewDataset(calendar []time.Time, instruments []Instrument, startIndex int) *Dataset {
	inst := append([]Instrument(nil), instruments...)
	sort.Slice(inst, func(a, b int) bool { return inst[a].ID < inst[b].ID })

	ds := &Dataset{
		Calendar:    calendar,
		Instruments: inst,
		StartIndex:  startIndex,
		Bars:        make([][]DailyBar, len(calendar)),
		Status:      make([][]StatusFlags, len(calendar)),
		Risk:        make([][]StatusFlags, len(calendar)),
		Limit:       make([][]StatusFlags, len(calendar)),
	}
	for d, day := range calendar {
		ds.Bars[d] = make([]DailyBar, len(inst))
		ds.Status[d] = make([]StatusFlags, len(inst))
		ds.Risk[d] = make([]StatusFlags, len(inst))
		ds.Limit[d] = make([]StatusFlags, len(inst))
		for i, in := range inst {
			ds.Bars[d][i] = MissingBar(in.ID, day)
		}
	}
	ds.reindex()
	return ds
}

func (ds *Dataset) reindex() {
	ds.index = make(map[string]int, len(ds.Instruments))
	for i, in := range ds.Instruments {
		ds.index[in.ID] = i
	}
}

// InstrumentIndex returns the column of an instrument
func (ds *Dataset) InstrumentIndex(id string) (int, bool) {
	if ds.index == nil {
		ds.reindex()
	}
	i, ok := ds.index[id]
	return i, ok
}

// InstrumentIDs returns sorted instrument IDs
func (ds *Dataset) InstrumentIDs() []string {
	ids := make([]string, len(ds.Instruments))
	for i, in := range ds.Instruments {
		ids[i] = in.ID
	}
	return ids
}

// Flags merges trade status, risk warning and limit flags of one cell
func (ds *Dataset) Flags(day, inst int) StatusFlags {
	return ds.Status[day][inst] | ds.Risk[day][inst] | ds.Limit[day][inst]
}

// SimulationDays returns the calendar from StartIndex on
func (ds *Dataset) SimulationDays() []time.Time {
	if ds.StartIndex >= len(ds.Calendar) {
		return nil
	}
	return ds.Calendar[ds.StartIndex:]
}

// Close returns the close price, NaN if missing
func (ds *Dataset) Close(day, inst int) float64 {
	return ds.Bars[day][inst].Close
}
