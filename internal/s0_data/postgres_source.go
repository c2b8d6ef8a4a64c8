package s0_data

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stockbt/internal/contracts"
)

// Schema data.* 테이블 정의 (EnsureSchema 에서 사용)
const Schema = `
CREATE SCHEMA IF NOT EXISTS data;

CREATE TABLE IF NOT EXISTS data.trading_calendar (
	trade_date DATE PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS data.instruments (
	instrument_id TEXT PRIMARY KEY,
	asset_class   TEXT NOT NULL DEFAULT 'equity',
	list_date     DATE,
	delist_date   DATE
);

CREATE TABLE IF NOT EXISTS data.daily_bars (
	instrument_id TEXT NOT NULL,
	trade_date    DATE NOT NULL,
	open_price    DOUBLE PRECISION,
	high_price    DOUBLE PRECISION,
	low_price     DOUBLE PRECISION,
	close_price   DOUBLE PRECISION,
	volume        DOUBLE PRECISION,
	PRIMARY KEY (instrument_id, trade_date)
);

CREATE TABLE IF NOT EXISTS data.status_flags (
	instrument_id TEXT NOT NULL,
	trade_date    DATE NOT NULL,
	feed          TEXT NOT NULL, -- status | risk | limit
	flags         SMALLINT NOT NULL,
	PRIMARY KEY (instrument_id, trade_date, feed)
);
`

// 상태 피드 구분값
const (
	feedStatus = "status"
	feedRisk   = "risk"
	feedLimit  = "limit"
)

// PostgresSource reads feeds from the data.* schema
// ⭐ SSOT: PostgreSQL 시세/상태 조회는 여기서만
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a new postgres-backed source
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// EnsureSchema creates the data.* tables if missing
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure data schema: %w", err)
	}
	return nil
}

// Calendar implements Source
func (s *PostgresSource) Calendar(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT trade_date
		FROM data.trading_calendar
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		days = append(days, truncateDay(d))
	}
	return days, rows.Err()
}

// Instruments implements Source
func (s *PostgresSource) Instruments(ctx context.Context) ([]contracts.Instrument, error) {
	query := `
		SELECT instrument_id, asset_class, list_date, delist_date
		FROM data.instruments
		ORDER BY instrument_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []contracts.Instrument
	for rows.Next() {
		var (
			in         contracts.Instrument
			assetClass string
			listDate   *time.Time
		)
		if err := rows.Scan(&in.ID, &assetClass, &listDate, &in.DelistDate); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		in.AssetClass = contracts.AssetClass(assetClass)
		if listDate != nil {
			in.ListDate = truncateDay(*listDate)
		}
		if in.DelistDate != nil {
			d := truncateDay(*in.DelistDate)
			in.DelistDate = &d
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Bars implements Source
func (s *PostgresSource) Bars(ctx context.Context, from, to time.Time) ([]contracts.DailyBar, error) {
	query := `
		SELECT instrument_id, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_bars
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date ASC, instrument_id ASC
	`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []contracts.DailyBar
	for rows.Next() {
		var (
			b                  contracts.DailyBar
			o, h, l, c, volume *float64
		)
		if err := rows.Scan(&b.InstrumentID, &b.Date, &o, &h, &l, &c, &volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = truncateDay(b.Date)
		b.Open, b.High, b.Low, b.Close, b.Volume = orNaN(o), orNaN(h), orNaN(l), orNaN(c), orNaN(volume)
		out = append(out, b)
	}
	return out, rows.Err()
}

// TradeStatus implements Source
func (s *PostgresSource) TradeStatus(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	return s.flags(ctx, feedStatus, from, to)
}

// RiskFlags implements Source
func (s *PostgresSource) RiskFlags(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	return s.flags(ctx, feedRisk, from, to)
}

// Limits implements Source
func (s *PostgresSource) Limits(ctx context.Context, from, to time.Time) ([]contracts.FlagRecord, error) {
	return s.flags(ctx, feedLimit, from, to)
}

func (s *PostgresSource) flags(ctx context.Context, feed string, from, to time.Time) ([]contracts.FlagRecord, error) {
	query := `
		SELECT instrument_id, trade_date, flags
		FROM data.status_flags
		WHERE feed = $1 AND trade_date BETWEEN $2 AND $3
	`

	rows, err := s.pool.Query(ctx, query, feed, from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s flags: %w", feed, err)
	}
	defer rows.Close()

	var out []contracts.FlagRecord
	for rows.Next() {
		var (
			r     contracts.FlagRecord
			flags int16
		)
		if err := rows.Scan(&r.InstrumentID, &r.Date, &flags); err != nil {
			return nil, fmt.Errorf("scan %s flags: %w", feed, err)
		}
		r.Date = truncateDay(r.Date)
		r.Flags = contracts.StatusFlags(flags)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EarliestDate implements Source
func (s *PostgresSource) EarliestDate(ctx context.Context) (time.Time, error) {
	return s.boundary(ctx, "MIN")
}

// LatestDate implements Source
func (s *PostgresSource) LatestDate(ctx context.Context) (time.Time, error) {
	return s.boundary(ctx, "MAX")
}

func (s *PostgresSource) boundary(ctx context.Context, agg string) (time.Time, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s(d) FROM (
			SELECT %[1]s(trade_date) AS d FROM data.daily_bars
			UNION ALL
			SELECT %[1]s(trade_date) AS d FROM data.status_flags
		) t
	`, agg)

	var d *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&d); err != nil {
		return time.Time{}, fmt.Errorf("query %s date: %w", agg, err)
	}
	if d == nil {
		return time.Time{}, nil
	}
	return truncateDay(*d), nil
}

// ImportStats 적재 건수
type ImportStats struct {
	Calendar    int64 `json:"calendar"`
	Instruments int64 `json:"instruments"`
	Bars        int64 `json:"bars"`
	Flags       int64 `json:"flags"`
}

// Import copies every feed of src within [from, to] into the data.* tables.
// Existing rows in the range are replaced inside one transaction.
func (s *PostgresSource) Import(ctx context.Context, src Source, from, to time.Time) (*ImportStats, error) {
	days, err := src.Calendar(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	instruments, err := src.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	bars, err := src.Bars(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}

	var flagRows [][]any
	feeds := []struct {
		name string
		read func(context.Context, time.Time, time.Time) ([]contracts.FlagRecord, error)
	}{
		{feedStatus, src.TradeStatus},
		{feedRisk, src.RiskFlags},
		{feedLimit, src.Limits},
	}
	for _, f := range feeds {
		recs, err := f.read(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("read %s flags: %w", f.name, err)
		}
		for _, r := range recs {
			flagRows = append(flagRows, []any{r.InstrumentID, r.Date, f.name, int16(r.Flags)})
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM data.trading_calendar WHERE trade_date BETWEEN $1 AND $2`,
		`DELETE FROM data.daily_bars WHERE trade_date BETWEEN $1 AND $2`,
		`DELETE FROM data.status_flags WHERE trade_date BETWEEN $1 AND $2`,
	} {
		if _, err := tx.Exec(ctx, q, from, to); err != nil {
			return nil, fmt.Errorf("clear range: %w", err)
		}
	}

	stats := &ImportStats{}

	if stats.Calendar, err = tx.CopyFrom(ctx,
		pgx.Identifier{"data", "trading_calendar"},
		[]string{"trade_date"},
		pgx.CopyFromSlice(len(days), func(i int) ([]any, error) {
			return []any{days[i]}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("copy calendar: %w", err)
	}

	for _, in := range instruments {
		_, err := tx.Exec(ctx, `
			INSERT INTO data.instruments (instrument_id, asset_class, list_date, delist_date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (instrument_id) DO UPDATE SET
				asset_class = EXCLUDED.asset_class,
				list_date = EXCLUDED.list_date,
				delist_date = EXCLUDED.delist_date
		`, in.ID, string(in.AssetClass), nullDate(in.ListDate), in.DelistDate)
		if err != nil {
			return nil, fmt.Errorf("upsert instrument %s: %w", in.ID, err)
		}
		stats.Instruments++
	}

	if stats.Bars, err = tx.CopyFrom(ctx,
		pgx.Identifier{"data", "daily_bars"},
		[]string{"instrument_id", "trade_date", "open_price", "high_price", "low_price", "close_price", "volume"},
		pgx.CopyFromSlice(len(bars), func(i int) ([]any, error) {
			b := bars[i]
			return []any{b.InstrumentID, b.Date, nanToNull(b.Open), nanToNull(b.High), nanToNull(b.Low), nanToNull(b.Close), nanToNull(b.Volume)}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("copy bars: %w", err)
	}

	if stats.Flags, err = tx.CopyFrom(ctx,
		pgx.Identifier{"data", "status_flags"},
		[]string{"instrument_id", "trade_date", "feed", "flags"},
		pgx.CopyFromRows(flagRows),
	); err != nil {
		return nil, fmt.Errorf("copy flags: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return stats, nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func nanToNull(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
