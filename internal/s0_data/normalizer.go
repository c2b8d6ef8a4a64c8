package s0_data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/logger"
)

// DefaultFetchTimeout 원천 데이터 조회 제한 시간
const DefaultFetchTimeout = 30 * time.Second

// Request 정렬 요청
type Request struct {
	Start      time.Time
	End        time.Time
	WarmupDays int // Start 이전에 포함할 거래일 수 (팩터 계산용)
}

// Normalizer aligns raw feeds into one date × instrument dataset
// ⭐ SSOT: S0 데이터 정렬은 여기서만 (읽기 전용, 부수효과 없음)
type Normalizer struct {
	source       Source
	fetchTimeout time.Duration
	logger       *logger.Logger
}

// NewNormalizer creates a new normalizer
func NewNormalizer(source Source, fetchTimeout time.Duration, log *logger.Logger) *Normalizer {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Normalizer{
		source:       source,
		fetchTimeout: fetchTimeout,
		logger:       log.WithStage(contracts.StageData.ShortName()),
	}
}

// raw 조회 결과
type raw struct {
	earliest    time.Time
	latest      time.Time
	calendar    []time.Time
	warmStart   time.Time
	instruments []contracts.Instrument
	bars        []contracts.DailyBar
	status      []contracts.FlagRecord
	risk        []contracts.FlagRecord
	limits      []contracts.FlagRecord
}

// Normalize fetches feeds for the request and aligns them
func (n *Normalizer) Normalize(ctx context.Context, req Request) (*contracts.Dataset, error) {
	req.Start, req.End = truncateDay(req.Start), truncateDay(req.End)
	if req.End.Before(req.Start) {
		return nil, &contracts.ConfigurationError{Field: "run", Message: "end must not be before start"}
	}

	r, err := n.fetchWithTimeout(ctx, req)
	if err != nil {
		return nil, err
	}

	ds, stats := align(r, req)
	if len(ds.SimulationDays()) == 0 {
		return nil, &contracts.InsufficientDataError{
			Stage:  contracts.StageData,
			Date:   req.Start,
			Reason: "no trading days in requested range",
		}
	}

	n.logger.WithFields(map[string]interface{}{
		"start":        req.Start.Format("2006-01-02"),
		"end":          ds.Calendar[len(ds.Calendar)-1].Format("2006-01-02"),
		"days":         len(ds.SimulationDays()),
		"warmup_days":  ds.StartIndex,
		"instruments":  len(ds.Instruments),
		"bars":         stats.bars,
		"off_calendar": stats.offCalendar,
		"duplicates":   stats.duplicates,
	}).Info("Dataset normalized")

	if stats.clipped {
		n.logger.WithField("latest", r.latest.Format("2006-01-02")).
			Warn("Requested end is after the last available date, calendar clipped")
	}

	return ds, nil
}

// fetchWithTimeout runs the fetch bounded by fetchTimeout
// 만료 시 TimeoutError, 상위 컨텍스트 취소 시 ctx.Err()
func (n *Normalizer) fetchWithTimeout(ctx context.Context, req Request) (*raw, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, n.fetchTimeout)
	defer cancel()

	type result struct {
		r   *raw
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := n.fetch(fetchCtx, req)
		done <- result{r, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, n.timeout(res.err)
		}
		return res.r, res.err
	case <-fetchCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, n.timeout(fetchCtx.Err())
	}
}

func (n *Normalizer) timeout(cause error) error {
	return &contracts.TimeoutError{
		Stage:     contracts.StageData,
		Operation: "data fetch",
		Limit:     n.fetchTimeout,
		Cause:     cause,
	}
}

func (n *Normalizer) fetch(ctx context.Context, req Request) (*raw, error) {
	r := &raw{}
	var err error

	if r.earliest, err = n.source.EarliestDate(ctx); err != nil {
		return nil, fmt.Errorf("earliest date: %w", err)
	}
	if r.earliest.IsZero() {
		return nil, &contracts.InsufficientDataError{Stage: contracts.StageData, Reason: "source has no records"}
	}
	r.earliest = truncateDay(r.earliest)
	if req.Start.Before(r.earliest) {
		return nil, &contracts.DataGapError{
			Stage:     contracts.StageData,
			Requested: req.Start,
			Earliest:  r.earliest,
		}
	}
	if r.latest, err = n.source.LatestDate(ctx); err != nil {
		return nil, fmt.Errorf("latest date: %w", err)
	}
	r.latest = truncateDay(r.latest)

	// 1. 캘린더: 워밍업 구간 포함
	if r.calendar, err = n.source.Calendar(ctx, r.earliest, req.End); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	derived := len(r.calendar) == 0
	r.warmStart = warmupStart(r.calendar, req.Start, req.WarmupDays, r.earliest)

	// 2. 원천 테이블
	if r.instruments, err = n.source.Instruments(ctx); err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	if derived {
		// 캘린더 미제공: 전체 봉 날짜로 캘린더 생성 후 워밍업 계산
		all, err := n.source.Bars(ctx, r.earliest, req.End)
		if err != nil {
			return nil, fmt.Errorf("bars: %w", err)
		}
		r.calendar = barDates(all)
		r.warmStart = warmupStart(r.calendar, req.Start, req.WarmupDays, r.earliest)
		for _, b := range all {
			if !b.Date.Before(r.warmStart) {
				r.bars = append(r.bars, b)
			}
		}
	} else if r.bars, err = n.source.Bars(ctx, r.warmStart, req.End); err != nil {
		return nil, fmt.Errorf("bars: %w", err)
	}
	if r.status, err = n.source.TradeStatus(ctx, r.warmStart, req.End); err != nil {
		return nil, fmt.Errorf("trade status: %w", err)
	}
	if r.risk, err = n.source.RiskFlags(ctx, r.warmStart, req.End); err != nil {
		return nil, fmt.Errorf("risk flags: %w", err)
	}
	if r.limits, err = n.source.Limits(ctx, r.warmStart, req.End); err != nil {
		return nil, fmt.Errorf("limits: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// warmupStart returns the first calendar day of the warm-up window
func warmupStart(calendar []time.Time, start time.Time, warmup int, earliest time.Time) time.Time {
	idx := sort.Search(len(calendar), func(i int) bool { return !calendar[i].Before(start) })
	first := idx - warmup
	if first < 0 {
		first = 0
	}
	if first < len(calendar) && first < idx {
		return calendar[first]
	}
	if earliest.After(start) {
		return earliest
	}
	return start
}

func barDates(bars []contracts.DailyBar) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, b := range bars {
		d := truncateDay(b.Date)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type alignStats struct {
	bars        int
	offCalendar int
	duplicates  int
	clipped     bool
}

// align builds the aligned tables
func align(r *raw, req Request) (*contracts.Dataset, alignStats) {
	var stats alignStats

	// 캘린더: [warmStart, min(End, latest)]
	last := req.End
	if r.latest.Before(last) {
		last = r.latest
		stats.clipped = true
	}
	var calendar []time.Time
	startIndex := -1
	for _, d := range r.calendar {
		d = truncateDay(d)
		if d.Before(r.warmStart) || d.After(last) {
			continue
		}
		if startIndex < 0 && !d.Before(req.Start) {
			startIndex = len(calendar)
		}
		calendar = append(calendar, d)
	}
	if startIndex < 0 {
		startIndex = len(calendar)
	}

	dayIndex := make(map[time.Time]int, len(calendar))
	for i, d := range calendar {
		dayIndex[d] = i
	}

	// 종목: 구간 내 봉이 하나 이상 있는 종목
	master := make(map[string]contracts.Instrument, len(r.instruments))
	for _, in := range r.instruments {
		master[in.ID] = in
	}
	present := make(map[string]contracts.Instrument)
	for _, b := range r.bars {
		if _, ok := dayIndex[truncateDay(b.Date)]; !ok || !b.HasData() {
			continue
		}
		if _, ok := present[b.InstrumentID]; ok {
			continue
		}
		in, ok := master[b.InstrumentID]
		if !ok {
			in = contracts.Instrument{ID: b.InstrumentID, AssetClass: contracts.AssetEquity}
		}
		present[b.InstrumentID] = in
	}
	instruments := make([]contracts.Instrument, 0, len(present))
	for _, in := range present {
		instruments = append(instruments, in)
	}

	ds := contracts.NewDataset(calendar, instruments, startIndex)

	// 봉: 0 이하 종가는 데이터 없음으로 간주
	filled := make(map[[2]int]bool)
	for _, b := range r.bars {
		d, ok := dayIndex[truncateDay(b.Date)]
		if !ok {
			stats.offCalendar++
			continue
		}
		i, ok := ds.InstrumentIndex(b.InstrumentID)
		if !ok || !b.HasData() {
			continue
		}
		key := [2]int{d, i}
		if filled[key] {
			stats.duplicates++
		}
		filled[key] = true
		b.Date = calendar[d]
		ds.Bars[d][i] = b
		stats.bars++
	}

	applyFlags(ds, dayIndex, r.status, ds.Status)
	applyFlags(ds, dayIndex, r.risk, ds.Risk)
	applyFlags(ds, dayIndex, r.limits, ds.Limit)

	// 상장폐지일 이후는 상장폐지 플래그
	for i, in := range ds.Instruments {
		if in.DelistDate == nil {
			continue
		}
		for d, day := range calendar {
			if !day.Before(*in.DelistDate) {
				ds.Status[d][i] |= contracts.FlagDelisted
			}
		}
	}

	return ds, stats
}

func applyFlags(ds *contracts.Dataset, dayIndex map[time.Time]int, recs []contracts.FlagRecord, table [][]contracts.StatusFlags) {
	for _, r := range recs {
		d, ok := dayIndex[truncateDay(r.Date)]
		if !ok {
			continue
		}
		i, ok := ds.InstrumentIndex(r.InstrumentID)
		if !ok {
			continue
		}
		table[d][i] |= r.Flags
	}
}
