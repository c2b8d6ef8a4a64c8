package s0_data

import (
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// QualityReport 정렬된 데이터셋의 커버리지 요약
type QualityReport struct {
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	Days         int                `json:"days"`
	WarmupDays   int                `json:"warmup_days"`
	Instruments  int                `json:"instruments"`
	Coverage     map[string]float64 `json:"coverage"` // 데이터별 커버리지 (시뮬레이션 구간)
	MissingCells int                `json:"missing_cells"`
	Suspended    int                `json:"suspended"`
	RiskWarning  int                `json:"risk_warning"`
	LimitUp      int                `json:"limit_up"`
	LimitDown    int                `json:"limit_down"`
	ByAssetClass map[string]int     `json:"by_asset_class"`
}

// Assess summarises the simulation window of a dataset
func Assess(ds *contracts.Dataset) *QualityReport {
	rep := &QualityReport{
		Days:         len(ds.SimulationDays()),
		WarmupDays:   ds.StartIndex,
		Instruments:  len(ds.Instruments),
		Coverage:     make(map[string]float64),
		ByAssetClass: make(map[string]int),
	}
	for _, in := range ds.Instruments {
		rep.ByAssetClass[string(in.AssetClass)]++
	}
	if rep.Days == 0 || rep.Instruments == 0 {
		return rep
	}
	rep.Start = ds.Calendar[ds.StartIndex]
	rep.End = ds.Calendar[len(ds.Calendar)-1]

	cells := 0
	priced, volume := 0, 0
	for d := ds.StartIndex; d < len(ds.Calendar); d++ {
		for i := range ds.Instruments {
			cells++
			b := ds.Bars[d][i]
			if b.HasData() {
				priced++
				if b.Volume == b.Volume { // NaN 제외
					volume++
				}
			} else {
				rep.MissingCells++
			}
			f := ds.Flags(d, i)
			if f.Has(contracts.FlagSuspended) {
				rep.Suspended++
			}
			if f.Has(contracts.FlagRiskWarning) {
				rep.RiskWarning++
			}
			if f.Has(contracts.FlagLimitUp) {
				rep.LimitUp++
			}
			if f.Has(contracts.FlagLimitDown) {
				rep.LimitDown++
			}
		}
	}
	rep.Coverage["price"] = float64(priced) / float64(cells)
	rep.Coverage["volume"] = float64(volume) / float64(cells)
	return rep
}

// CoverageRate returns the average coverage rate across all data types
func (q *QualityReport) CoverageRate() float64 {
	if len(q.Coverage) == 0 {
		return 0.0
	}

	total := 0.0
	for _, rate := range q.Coverage {
		total += rate
	}

	return total / float64(len(q.Coverage))
}
