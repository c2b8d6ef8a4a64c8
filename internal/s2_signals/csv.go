package s2_signals

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/s0_data"
)

// WriteCSV writes a score matrix in wide form: date, then one column per instrument
// 미정의 점수는 빈 셀
func WriteCSV(w io.Writer, m *contracts.ScoreMatrix) error {
	cw := csv.NewWriter(w)
	header := append([]string{"date"}, m.Instruments...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for d, day := range m.Dates {
		rec := make([]string, 0, len(m.Instruments)+1)
		rec = append(rec, day.Format("2006-01-02"))
		for _, s := range m.Values[d] {
			if !s.Valid {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(s.Value, 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", d+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadOptions 외부 점수 파일 옵션
type ReadOptions struct {
	// Normalize 행별 min-max 정규화 ([0,1] 밖 점수 파일용)
	Normalize bool
}

// ReadCSV parses a wide score file as written by WriteCSV
// The first column is the date; blank and NaN cells are undefined.
func ReadCSV(r io.Reader, opts ReadOptions) (*contracts.ScoreMatrix, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("score file needs a date column and at least one instrument")
	}
	instruments := make([]string, len(header)-1)
	for i, h := range header[1:] {
		instruments[i] = strings.TrimSpace(h)
	}

	var dates []time.Time
	var values [][]contracts.Score
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		day, err := s0_data.ParseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if n := len(dates); n > 0 && !day.After(dates[n-1]) {
			return nil, fmt.Errorf("line %d: dates must be strictly increasing", line)
		}
		row := make([]contracts.Score, len(instruments))
		for i := range instruments {
			if i+1 >= len(rec) {
				break
			}
			cell := strings.TrimSpace(rec[i+1])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, %s: %w", line, instruments[i], err)
			}
			if math.IsNaN(v) {
				continue
			}
			row[i] = contracts.Defined(v)
		}
		if opts.Normalize {
			minMax(row)
		}
		dates = append(dates, day)
		values = append(values, row)
	}

	return contracts.NewScoreMatrix(dates, instruments, values)
}

// minMax rescales valid scores of a row to [0,1]; a flat row maps to 0.5
func minMax(row []contracts.Score) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range row {
		if s.Valid {
			lo = math.Min(lo, s.Value)
			hi = math.Max(hi, s.Value)
		}
	}
	for i, s := range row {
		if !s.Valid {
			continue
		}
		if hi == lo {
			row[i].Value = 0.5
			continue
		}
		row[i].Value = (s.Value - lo) / (hi - lo)
	}
}
