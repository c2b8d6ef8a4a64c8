package contracts

import (
	"context"
	"time"
)

// ScoreSource provides composite scores (S2)
// ⭐ SSOT: S2 점수 매트릭스 생성 인터페이스
type ScoreSource interface {
	Build(ctx context.Context, ds *Dataset) (*ScoreMatrix, error)
}

// EligibilityFilter selects the investable instruments of a day (S1)
// ⭐ SSOT: S1 유니버스 인터페이스
type EligibilityFilter interface {
	Eligible(day int) *Universe
}

// AllocationInput S1/S2 → S3 리밸런싱일 입력
type AllocationInput struct {
	Date     time.Time
	Eligible []RankedScore        // 투자 가능 종목 점수 (내림차순)
	Trailing map[string][]float64 // 종목별 직전 일간 수익률 (NaN = 결측), 길이 동일
}

// WeightAllocator turns eligible scores into post-processed target weights (S3)
// ⭐ SSOT: S3 목표 비중 인터페이스
type WeightAllocator interface {
	Allocate(ctx context.Context, in AllocationInput, previous map[string]float64) (TargetWeights, []Event, error)
}

// MetricsCalculator computes performance metrics (S5)
// ⭐ SSOT: S5 성과 지표 인터페이스
type MetricsCalculator interface {
	Compute(dailyReturns []float64) (*Metrics, error)
}

// ResultWriter persists a completed run (S6)
// ⭐ SSOT: S6 결과 저장 인터페이스
type ResultWriter interface {
	Save(ctx context.Context, result *BacktestResult) (string, error)
}
