package s0_data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// CSV 데이터 폴더 파일명
const (
	CalendarFile    = "calendar.csv"     // date (선택)
	InstrumentsFile = "instruments.csv"  // id,asset_class,list_date,delist_date (선택)
	BarsFile        = "bars.csv"         // date,instrument_id,open,high,low,close,volume (필수)
	StatusFile      = "trade_status.csv" // date,instrument_id,status (선택)
	RiskFile        = "risk_warning.csv" // date,instrument_id,flag (선택)
	LimitsFile      = "limits.csv"       // date,instrument_id,limit (선택)
)

// Opener opens one named table of a data folder
// 없는 파일은 fs.ErrNotExist 로 보고
type Opener func(ctx context.Context, name string) (io.ReadCloser, error)

// CSVSource reads a data folder once and serves range queries from memory
type CSVSource struct {
	open Opener

	mu  sync.Mutex
	mem *MemorySource
}

// NewCSVSource creates a CSV source over a local data folder
func NewCSVSource(dir string) *CSVSource {
	return NewCSVSourceWith(func(_ context.Context, name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, name))
	})
}

// NewCSVSourceWith creates a CSV source over any table opener
func NewCSVSourceWith(open Opener) *CSVSource {
	return &CSVSource{open: open}
}

// load 성공한 적재만 캐시 (실패 시 다음 호출에서 재시도)
func (s *CSVSource) load(ctx context.Context) (*MemorySource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem != nil {
		return s.mem, nil
	}
	mem, err := loadTables(ctx, s.open)
	if err != nil {
		return nil, err
	}
	s.mem = mem
	return mem, nil
}

// Calendar implements Source
func (s *CSVSource) Calendar(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Calendar(ctx, from, to)
}

// Instruments implements Source
func (s *CSVSource) Instruments(ctx context.Context) ([]contracts.Instrument, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Instruments(ctx)
}

// Bars implements Source
func (s *CSVSource) Bars(ctx context.Context, from, to time.Time) ([]contracts.DailyBar, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Bars(ctx, from, to)
}

// TradeStatus implements Source
func (s *CSVSource) TradeStatus(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.TradeStatus(ctx, from, to)
}

// RiskFlags implements Source
func (s *CSVSource) RiskFlags(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.RiskFlags(ctx, from, to)
}

// Limits implements Source
func (s *CSVSource) Limits(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Limits(ctx, from, to)
}

// EarliestDate implements Source
func (s *CSVSource) EarliestDate(ctx context.Context) (time.Time, error) {
	m, err := s.load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return m.EarliestDate(ctx)
}

// LatestDate implements Source
func (s *CSVSource) LatestDate(ctx context.Context) (time.Time, error) {
	m, err := s.load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return m.LatestDate(ctx)
}

func loadTables(ctx context.Context, open Opener) (*MemorySource, error) {
	m := &MemorySource{}

	if err := readTable(ctx, open, BarsFile, true, []string{"date", "instrument_id", "close"}, func(r row) error {
		bar, err := parseBar(r)
		if err != nil {
			return err
		}
		m.BarRows = append(m.BarRows, bar)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readTable(ctx, open, CalendarFile, false, []string{"date"}, func(r row) error {
		d, err := ParseDate(r.get("date"))
		if err != nil {
			return err
		}
		m.Days = append(m.Days, d)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readTable(ctx, open, InstrumentsFile, false, []string{"id"}, func(r row) error {
		in, err := parseInstrument(r)
		if err != nil {
			return err
		}
		m.Master = append(m.Master, in)
		return nil
	}); err != nil {
		return nil, err
	}

	flagTables := []struct {
		file  string
		col   string
		parse func(string) (contracts.StatusFlags, error)
		dest  *[]contracts.FlagRecord
	}{
		{StatusFile, "status", ParseTradeStatus, &m.StatusRows},
		{RiskFile, "flag", ParseRiskFlag, &m.RiskRows},
		{LimitsFile, "limit", ParseLimit, &m.LimitRows},
	}
	for _, ft := range flagTables {
		if err := readTable(ctx, open, ft.file, false, []string{"date", "instrument_id", ft.col}, func(r row) error {
			d, err := ParseDate(r.get("date"))
			if err != nil {
				return err
			}
			flags, err := ft.parse(r.get(ft.col))
			if err != nil {
				return err
			}
			*ft.dest = append(*ft.dest, contracts.FlagRecord{
				InstrumentID: r.get("instrument_id"),
				Date:         d,
				Flags:        flags,
			})
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// row 헤더 이름으로 접근하는 CSV 한 행
type row struct {
	cols   map[string]int
	values []string
}

func (r row) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// readTable streams a headered CSV; a missing optional file is not an error
func readTable(ctx context.Context, open Opener, name string, required bool, mustHave []string, fn func(row) error) error {
	f, err := open(ctx, name)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true

	header, err := rd.Read()
	if err != nil {
		return fmt.Errorf("read header %s: %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range mustHave {
		if _, ok := cols[c]; !ok {
			return fmt.Errorf("%s: missing column %q", name, c)
		}
	}

	line := 1
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%s line %d: %w", name, line, err)
		}
		if err := fn(row{cols: cols, values: rec}); err != nil {
			return fmt.Errorf("%s line %d: %w", name, line, err)
		}
	}
}

func parseBar(r row) (contracts.DailyBar, error) {
	d, err := ParseDate(r.get("date"))
	if err != nil {
		return contracts.DailyBar{}, err
	}
	bar := contracts.MissingBar(r.get("instrument_id"), d)
	if bar.InstrumentID == "" {
		return bar, fmt.Errorf("empty instrument_id")
	}

	fields := []struct {
		name string
		dest *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	}
	for _, f := range fields {
		v := r.get(f.name)
		if v == "" {
			continue // 빈 칸 = 데이터 없음 (NaN 유지)
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bar, fmt.Errorf("column %s: %w", f.name, err)
		}
		*f.dest = x
	}
	return bar, nil
}

func parseInstrument(r row) (contracts.Instrument, error) {
	in := contracts.Instrument{
		ID:         r.get("id"),
		AssetClass: contracts.AssetClass(strings.ToLower(r.get("asset_class"))),
	}
	if in.ID == "" {
		return in, fmt.Errorf("empty id")
	}
	if in.AssetClass == "" {
		in.AssetClass = contracts.AssetEquity
	}
	if !in.AssetClass.IsValid() {
		return in, fmt.Errorf("unknown asset_class %q", in.AssetClass)
	}
	if v := r.get("list_date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return in, err
		}
		in.ListDate = d
	}
	if v := r.get("delist_date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return in, err
		}
		in.DelistDate = &d
	}
	return in, nil
}
