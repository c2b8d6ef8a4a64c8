package contracts

import (
	"errors"
	"fmt"
	"time"
)

// ⭐ SSOT: 백테스트 에러 분류
// 모든 에러는 errors.As 로 구분 가능하며 Stage/Date/Instrument 컨텍스트를 가짐

// DataGapError 요청 시작일이 전체 유니버스의 최초 기록보다 앞섬
type DataGapError struct {
	Stage     Stage
	Requested time.Time
	Earliest  time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("%s: data gap: requested start %s precedes earliest record %s",
		e.Stage.ShortName(), e.Requested.Format("2006-01-02"), e.Earliest.Format("2006-01-02"))
}

// InsufficientDataError 계산에 필요한 관측치 부족
type InsufficientDataError struct {
	Stage      Stage
	Instrument string
	Date       time.Time
	Need       int
	Have       int
	Reason     string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("%s: insufficient data", e.Stage.ShortName())
	if e.Instrument != "" {
		msg += " for " + e.Instrument
	}
	if !e.Date.IsZero() {
		msg += " on " + e.Date.Format("2006-01-02")
	}
	if e.Need > 0 {
		msg += fmt.Sprintf(" (need %d, have %d)", e.Need, e.Have)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// InfeasibleAllocationError 투자 가능 종목이 최소 개수 미만
type InfeasibleAllocationError struct {
	Date     time.Time
	Eligible int
	Required int
}

func (e *InfeasibleAllocationError) Error() string {
	return fmt.Sprintf("%s: infeasible allocation on %s: %d eligible, %d required",
		StagePortfolio.ShortName(), e.Date.Format("2006-01-02"), e.Eligible, e.Required)
}

// TimeoutError 데이터 조회 또는 최적화가 제한 시간 초과
type TimeoutError struct {
	Stage     Stage
	Operation string
	Date      time.Time
	Limit     time.Duration
	Cause     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: %s timed out after %s", e.Stage.ShortName(), e.Operation, e.Limit)
	if !e.Date.IsZero() {
		msg += " on " + e.Date.Format("2006-01-02")
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ConfigurationError 잘못된 설정 (필드 경로 포함)
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ConfigurationErrors 여러 설정 오류 묶음
type ConfigurationErrors []*ConfigurationError

func (es ConfigurationErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	msg := fmt.Sprintf("%d configuration errors:", len(es))
	for _, e := range es {
		msg += "\n  - " + e.Field + ": " + e.Message
	}
	return msg
}

// Unwrap exposes each error to errors.As
func (es ConfigurationErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
