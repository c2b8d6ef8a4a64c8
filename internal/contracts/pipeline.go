package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 에러 컨텍스트, 결과 메타데이터에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S0 → S2 → (리밸런싱 일마다) S1 → S3 → S4 → S5 → S6
//   Data  Signals  Universe  Portfolio  Simulation  Audit  Store

// Stage represents a pipeline stage
type Stage string

const (
	// StageData S0: 원천 데이터 정렬
	// 책임: 가격/거래상태/리스크경고/상하한가 테이블을 공통 캘린더와 종목 집합으로 정렬
	// 위치: internal/s0_data/
	StageData Stage = "S0_DATA"

	// StageUniverse S1: 리밸런싱 일자별 투자 가능 종목
	// 책임: 블랙리스트, 거래정지/상장폐지, 리스크경고, 점수 미정의 종목 제외
	// 위치: internal/s1_universe/
	StageUniverse Stage = "S1_UNIVERSE"

	// StageSignals S2: 종합 점수 매트릭스
	// 책임: 가격/거래량 기반 팩터 계산, 횡단면 정규화, 종합 점수 산출
	// 위치: internal/s2_signals/
	StageSignals Stage = "S2_SIGNALS"

	// StagePortfolio S3: 목표 비중 산출
	// 책임: 고정/동적 보유 전략, 비중 변화 한도, 재정규화
	// 위치: internal/portfolio/
	StagePortfolio Stage = "S3_PORTFOLIO"

	// StageSimulation S4: 일별 리밸런싱 시뮬레이션
	// 책임: 드리프트, 손절/익절, 거래비용, 일별 수익률 누적
	// 위치: internal/backtest/
	StageSimulation Stage = "S4_SIMULATION"

	// StageAudit S5: 성과 지표
	// 책임: 누적/연환산 수익률, 변동성, 최대 낙폭
	// 위치: internal/audit/
	StageAudit Stage = "S5_AUDIT"

	// StageStore S6: 결과 저장소
	// 책임: 실행별 결과 파일 기록, 조회, 보관기간 정리
	// 위치: internal/resultstore/
	StageStore Stage = "S6_STORE"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageData:
		return "S0"
	case StageUniverse:
		return "S1"
	case StageSignals:
		return "S2"
	case StagePortfolio:
		return "S3"
	case StageSimulation:
		return "S4"
	case StageAudit:
		return "S5"
	case StageStore:
		return "S6"
	default:
		return "UNKNOWN"
	}
}

// Description returns Korean description of the stage
func (s Stage) Description() string {
	switch s {
	case StageData:
		return "데이터 정렬"
	case StageUniverse:
		return "투자 가능 종목"
	case StageSignals:
		return "종합 점수 계산"
	case StagePortfolio:
		return "목표 비중 산출"
	case StageSimulation:
		return "리밸런싱 시뮬레이션"
	case StageAudit:
		return "성과 지표"
	case StageStore:
		return "결과 저장"
	default:
		return "알 수 없음"
	}
}

// AllStages returns all pipeline stages in execution order
func AllStages() []Stage {
	return []Stage{
		StageData,
		StageSignals,
		StageUniverse,
		StagePortfolio,
		StageSimulation,
		StageAudit,
		StageStore,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}
