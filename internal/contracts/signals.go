package contracts

import (
	"fmt"
	"sort"
	"time"
)

// Score 종합 점수
// Valid=false 는 "점수 미정의" (투자 불가) 태그이며 숫자 센티넬이 아님
type Score struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Undefined 미정의 점수
var Undefined = Score{}

// Defined wraps a value in a valid score
func Defined(v float64) Score {
	return Score{Value: v, Valid: true}
}

// ScoreMatrix S2 → S1/S3 종합 점수 매트릭스
// ⭐ SSOT: 생성 후 불변, 값은 [0,1]
type ScoreMatrix struct {
	Dates       []time.Time `json:"dates"`
	Instruments []string    `json:"instruments"`
	Values      [][]Score   `json:"values"` // [date][instrument]

	dateIndex map[string]int
	instIndex map[string]int
}

// NewScoreMatrix validates shape and range and builds lookup indexes
func NewScoreMatrix(dates []time.Time, instruments []string, values [][]Score) (*ScoreMatrix, error) {
	if len(values) != len(dates) {
		return nil, fmt.Errorf("score matrix: %d rows for %d dates", len(values), len(dates))
	}
	for d, row := range values {
		if len(row) != len(instruments) {
			return nil, fmt.Errorf("score matrix: row %d has %d columns, want %d", d, len(row), len(instruments))
		}
		for i, s := range row {
			if s.Valid && (s.Value < 0 || s.Value > 1 || s.Value != s.Value) {
				return nil, fmt.Errorf("score matrix: %s %s out of range: %v",
					dates[d].Format("2006-01-02"), instruments[i], s.Value)
			}
		}
	}

	m := &ScoreMatrix{
		Dates:       dates,
		Instruments: instruments,
		Values:      values,
		dateIndex:   make(map[string]int, len(dates)),
		instIndex:   make(map[string]int, len(instruments)),
	}
	for d, day := range dates {
		m.dateIndex[dayKey(day)] = d
	}
	for i, id := range instruments {
		m.instIndex[id] = i
	}
	return m, nil
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DateIndex returns the row of a date
func (m *ScoreMatrix) DateIndex(day time.Time) (int, bool) {
	d, ok := m.dateIndex[dayKey(day)]
	return d, ok
}

// Get returns the score for (day, instrument); unknown cells are undefined
func (m *ScoreMatrix) Get(day time.Time, id string) Score {
	d, ok := m.dateIndex[dayKey(day)]
	if !ok {
		return Undefined
	}
	i, ok := m.instIndex[id]
	if !ok {
		return Undefined
	}
	return m.Values[d][i]
}

// Row returns valid scores of a day keyed by instrument
func (m *ScoreMatrix) Row(day time.Time) map[string]float64 {
	d, ok := m.dateIndex[dayKey(day)]
	if !ok {
		return nil
	}
	out := make(map[string]float64)
	for i, s := range m.Values[d] {
		if s.Valid {
			out[m.Instruments[i]] = s.Value
		}
	}
	return out
}

// RankedScore 정렬된 점수 (점수 내림차순, 동점은 ID 오름차순)
type RankedScore struct {
	InstrumentID string  `json:"instrument_id"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`
}

// Rank returns valid scores of the day, best first
func (m *ScoreMatrix) Rank(day time.Time) []RankedScore {
	return RankScores(m.Row(day))
}

// RankScores orders a score map by score desc, then ID asc
// ⭐ SSOT: 종목 순위 정렬 규칙
func RankScores(scores map[string]float64) []RankedScore {
	ranked := make([]RankedScore, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, RankedScore{InstrumentID: id, Score: s})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].InstrumentID < ranked[b].InstrumentID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// ValidCount returns the number of defined scores on a day
func (m *ScoreMatrix) ValidCount(day time.Time) int {
	return len(m.Row(day))
}
