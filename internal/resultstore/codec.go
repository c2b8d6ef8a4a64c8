package resultstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/stockbt/internal/contracts"
)

// Header 결과 CSV 컬럼
var Header = []string{"date", "daily_return", "gross_return", "cost", "turnover", "cash", "holdings"}

const dateLayout = "2006-01-02"

// formatFloat renders v with the declared precision
// -1: 최단 정확 표현 (왕복 시 비트 동일), 그 외: 소수점 이하 precision 자리
func formatFloat(v float64, precision int) string {
	if precision < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(int32(precision))
}

// formatHoldings renders "ID:w;ID:w" sorted by ID
func formatHoldings(h map[string]float64, precision int) string {
	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id + ":" + formatFloat(h[id], precision)
	}
	return strings.Join(parts, ";")
}

// EncodeCSV writes daily records as CSV
func EncodeCSV(w io.Writer, days []contracts.DayRecord, precision int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, d := range days {
		row := []string{
			d.Date.Format(dateLayout),
			formatFloat(d.DailyReturn, precision),
			formatFloat(d.GrossReturn, precision),
			formatFloat(d.Cost, precision),
			formatFloat(d.Turnover, precision),
			formatFloat(d.Cash, precision),
			formatHoldings(d.Holdings, precision),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV parses daily records written by EncodeCSV
func DecodeCSV(data []byte) ([]contracts.DayRecord, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, header[i], col)
		}
	}

	var days []contracts.DayRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(dateLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date: %w", line, err)
		}
		var nums [5]float64
		for i := range nums {
			if nums[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, Header[i+1], err)
			}
		}
		holdings, err := parseHoldings(row[6])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		days = append(days, contracts.DayRecord{
			Date:        date,
			DailyReturn: nums[0],
			GrossReturn: nums[1],
			Cost:        nums[2],
			Turnover:    nums[3],
			Cash:        nums[4],
			Holdings:    holdings,
		})
	}
	return days, nil
}

func parseHoldings(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ";") {
		i := strings.LastIndex(part, ":")
		if i <= 0 {
			return nil, fmt.Errorf("bad holding %q", part)
		}
		w, err := strconv.ParseFloat(part[i+1:], 64)
		if err != nil {
			return nil, fmt.Errorf("bad holding weight %q: %w", part, err)
		}
		out[part[:i]] = w
	}
	return out, nil
}
