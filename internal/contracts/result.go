package contracts

import (
	"sort"
	"time"
)

// StrategyKind 전략 유형 (결과 파일명 접두어)
type StrategyKind string

const (
	KindFixed   StrategyKind = "fixed"
	KindDynamic StrategyKind = "dynamic"
)

// IsValid checks if the kind is known
func (k StrategyKind) IsValid() bool {
	return k == KindFixed || k == KindDynamic
}

// EventType 일별 이벤트 유형
type EventType string

const (
	EventStopLoss     EventType = "stop_loss"
	EventTakeProfit   EventType = "take_profit"
	EventMissingPrice EventType = "missing_price"
	EventForcedClose  EventType = "forced_close"
	EventInfeasible   EventType = "infeasible_cash"
	EventRebalance    EventType = "rebalance"
)

// Event 일별 이벤트 (경고 포함)
type Event struct {
	Type         EventType `json:"type"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// DayRecord 일별 시뮬레이션 결과 한 행
type DayRecord struct {
	Date        time.Time          `json:"date"`
	DailyReturn float64            `json:"daily_return"` // 비용 차감 후
	GrossReturn float64            `json:"gross_return"`
	Cost        float64            `json:"cost"`
	Turnover    float64            `json:"turnover"`
	Cash        float64            `json:"cash"`
	Rebalanced  bool               `json:"rebalanced"`
	Holdings    map[string]float64 `json:"holdings"` // 장 마감 후 비중
	Events      []Event            `json:"events,omitempty"`
}

// HoldingIDs returns held instruments of the day, sorted
func (r DayRecord) HoldingIDs() []string {
	ids := make([]string, 0, len(r.Holdings))
	for id := range r.Holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Metrics S5 성과 지표
type Metrics struct {
	CumulativeReturn float64 `json:"cumulative_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	MaxDrawdown      float64 `json:"max_drawdown"` // 양수 비율
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	WinRate          float64 `json:"win_rate"`
	VaR95            float64 `json:"var_95"`  // 일간 Historical VaR (양수 손실)
	CVaR95           float64 `json:"cvar_95"` // 일간 Expected Shortfall
	TradingDays      int     `json:"trading_days"`
}

// RunMeta 결과 메타데이터 (사이드카 파일)
type RunMeta struct {
	RunID        string            `json:"run_id"`
	Strategy     StrategyKind      `json:"strategy"`
	Summary      string            `json:"summary"` // 파라미터 요약 ('_' 없음)
	Parameters   map[string]string `json:"parameters"`
	ConfigHash   string            `json:"config_hash,omitempty"`
	UniverseSize int               `json:"universe_size"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Metrics      *Metrics          `json:"metrics,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Precision    *int              `json:"precision,omitempty"` // 결과 CSV 소수 자릿수 (-1 = 최단 정확 표현)
	CreatedAt    time.Time         `json:"created_at"`
}

// BacktestResult S4 → S5/S6 한 실행의 결과
// ⭐ SSOT: Days 는 날짜 오름차순이며 요청 기간의 모든 거래일을 포함
type BacktestResult struct {
	RunID    string       `json:"run_id"`
	Strategy StrategyKind `json:"strategy"`
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Days     []DayRecord  `json:"days"`
	Meta     RunMeta      `json:"meta"`
}

// DailyReturns returns net daily returns in date order
func (r *BacktestResult) DailyReturns() []float64 {
	out := make([]float64, len(r.Days))
	for i, d := range r.Days {
		out[i] = d.DailyReturn
	}
	return out
}

// IsChronological checks strictly increasing dates
func (r *BacktestResult) IsChronological() bool {
	for i := 1; i < len(r.Days); i++ {
		if !r.Days[i].Date.After(r.Days[i-1].Date) {
			return false
		}
	}
	return true
}
