package strategyconfig

import (
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

// DateLayout 설정 파일의 날짜 형식
const DateLayout = "2006-01-02"

// Config는 백테스트 한 실행의 전체 설정
type Config struct {
	Run         Run         `yaml:"run" json:"run"`
	Strategy    Strategy    `yaml:"strategy" json:"strategy"`
	Allocation  Allocation  `yaml:"allocation" json:"allocation"`
	Eligibility Eligibility `yaml:"eligibility" json:"eligibility"`
	Costs       Costs       `yaml:"costs" json:"costs"`
	Risk        Risk        `yaml:"risk" json:"risk"`
	Rebalance   Rebalance   `yaml:"rebalance" json:"rebalance"`
	Scoring     Scoring     `yaml:"scoring" json:"scoring"`
	Timeouts    Timeouts    `yaml:"timeouts" json:"timeouts"`
	Output      Output      `yaml:"output" json:"output"`
}

// Run 실행 범위
type Run struct {
	Name          string   `yaml:"name" json:"name"`
	Start         string   `yaml:"start" json:"start"` // YYYY-MM-DD
	End           string   `yaml:"end" json:"end"`     // YYYY-MM-DD
	WarmupDays    int      `yaml:"warmup_days" json:"warmup_days"`
	Blacklist     []string `yaml:"blacklist" json:"blacklist"`
	BlacklistFile string   `yaml:"blacklist_file" json:"blacklist_file"`
}

// StartDate returns the parsed start date (zero if invalid)
func (r Run) StartDate() time.Time {
	t, _ := time.Parse(DateLayout, r.Start)
	return t
}

// EndDate returns the parsed end date (zero if invalid)
func (r Run) EndDate() time.Time {
	t, _ := time.Parse(DateLayout, r.End)
	return t
}

// Strategy S3: 보유 전략 선택
type Strategy struct {
	Kind    contracts.StrategyKind `yaml:"kind" json:"kind"` // fixed | dynamic
	Fixed   Fixed                  `yaml:"fixed" json:"fixed"`
	Dynamic Dynamic                `yaml:"dynamic" json:"dynamic"`
}

// Fixed 고정 보유: 상위 K 종목
type Fixed struct {
	TopK      int    `yaml:"top_k" json:"top_k"`
	Weighting string `yaml:"weighting" json:"weighting"` // equal | score
}

// Dynamic 동적 보유: 임계값 이상 종목에 MPT/리스크패리티 혼합
type Dynamic struct {
	Threshold   float64 `yaml:"threshold" json:"threshold"`
	MaxHoldings int     `yaml:"max_holdings" json:"max_holdings"`
	Blend       float64 `yaml:"blend" json:"blend"`       // 1.0 = MPT only, 0.0 = risk parity only
	Lookback    int     `yaml:"lookback" json:"lookback"` // 공분산 추정 거래일 수
	Ridge       float64 `yaml:"ridge" json:"ridge"`
}

// Allocation 비중 후처리
type Allocation struct {
	MaxWeightChange float64 `yaml:"max_weight_change" json:"max_weight_change"` // 리밸런싱당 종목별 비중 변화 한도
	CashReserve     float64 `yaml:"cash_reserve" json:"cash_reserve"`
	MinWeight       float64 `yaml:"min_weight" json:"min_weight"`
	MinEligible     int     `yaml:"min_eligible" json:"min_eligible"`
	OnInfeasible    string  `yaml:"on_infeasible" json:"on_infeasible"` // cash | fail
}

// Eligibility S1 정책
type Eligibility struct {
	ExcludeRiskWarning *bool `yaml:"exclude_risk_warning" json:"exclude_risk_warning"` // 미지정 시 true
	ExcludeLimitUp     bool  `yaml:"exclude_limit_up" json:"exclude_limit_up"`
}

// RiskWarningExcluded resolves the default-on policy
func (e Eligibility) RiskWarningExcluded() bool {
	return e.ExcludeRiskWarning == nil || *e.ExcludeRiskWarning
}

// Costs 거래 비용 (비율)
type Costs struct {
	Slippage float64 `yaml:"slippage" json:"slippage"`
	Fee      float64 `yaml:"fee" json:"fee"`
}

// PerUnit returns cost per unit of turnover
func (c Costs) PerUnit() float64 {
	return c.Slippage + c.Fee
}

// Risk 손절/익절 (0 = 비활성)
type Risk struct {
	StopLoss       float64 `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit     float64 `yaml:"take_profit" json:"take_profit"`
	MaxMissingDays int     `yaml:"max_missing_days" json:"max_missing_days"`
}

// Rebalance 리밸런싱 주기
type Rebalance struct {
	Frequency string `yaml:"frequency" json:"frequency"` // daily | weekly | monthly | every_n
	Interval  int    `yaml:"interval" json:"interval"`   // every_n 거래일 간격
}

// Scoring S2 점수 설정
type Scoring struct {
	Source           string         `yaml:"source" json:"source"` // computed | file
	File             string         `yaml:"file" json:"file"`
	MomentumWindow   int            `yaml:"momentum_window" json:"momentum_window"`
	VolatilityWindow int            `yaml:"volatility_window" json:"volatility_window"`
	VolumeWindow     int            `yaml:"volume_window" json:"volume_window"`
	MinHistory       int            `yaml:"min_history" json:"min_history"`
	Weights          FeatureWeights `yaml:"weights" json:"weights"`
}

// FeatureWeights 팩터 가중치 (합 = 1.0)
type FeatureWeights struct {
	Momentum   float64 `yaml:"momentum" json:"momentum"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Liquidity  float64 `yaml:"liquidity" json:"liquidity"`
}

// Sum returns the sum of all weights
func (w FeatureWeights) Sum() float64 {
	return w.Momentum + w.Volatility + w.Liquidity
}

// Timeouts 조회/최적화 제한 시간 (미지정 시 환경설정 값)
type Timeouts struct {
	Fetch string `yaml:"fetch" json:"fetch"`
	Solve string `yaml:"solve" json:"solve"`
}

// FetchTimeout returns the fetch timeout or fallback
func (t Timeouts) FetchTimeout(fallback time.Duration) time.Duration {
	return parseDurationOr(t.Fetch, fallback)
}

// SolveTimeout returns the solve timeout or fallback
func (t Timeouts) SolveTimeout(fallback time.Duration) time.Duration {
	return parseDurationOr(t.Solve, fallback)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Output 결과 파일 설정
type Output struct {
	Precision *int `yaml:"precision" json:"precision"` // 미지정 시 환경설정 값, -1 = 최단 정확 표현
}

// Default returns a config with every optional field filled
// 설정 파일은 필요한 값만 덮어씀
func Default() Config {
	return Config{
		Run: Run{
			WarmupDays: 60,
		},
		Strategy: Strategy{
			Kind:  contracts.KindFixed,
			Fixed: Fixed{TopK: 10, Weighting: "equal"},
			Dynamic: Dynamic{
				Threshold:   0.7,
				MaxHoldings: 20,
				Blend:       0.5,
				Lookback:    60,
				Ridge:       1e-4,
			},
		},
		Allocation: Allocation{
			MaxWeightChange: 0.05,
			MinWeight:       0.001,
			MinEligible:     1,
			OnInfeasible:    "cash",
		},
		Costs: Costs{
			Slippage: 0.0005,
			Fee:      0.001,
		},
		Risk: Risk{
			MaxMissingDays: 3,
		},
		Rebalance: Rebalance{
			Frequency: "weekly",
		},
		Scoring: Scoring{
			Source:           "computed",
			MomentumWindow:   20,
			VolatilityWindow: 20,
			VolumeWindow:     20,
			MinHistory:       20,
			Weights: FeatureWeights{
				Momentum:   0.4,
				Volatility: 0.3,
				Liquidity:  0.3,
			},
		},
	}
}

// Summary returns the parameter summary used in result file names
// '_' 는 파일명 구분자이므로 사용하지 않음
func (c *Config) Summary() string {
	switch c.Strategy.Kind {
	case contracts.KindDynamic:
		return "th" + trimFloat(c.Strategy.Dynamic.Threshold) +
			"-max" + itoa(c.Strategy.Dynamic.MaxHoldings) +
			"-bl" + trimFloat(c.Strategy.Dynamic.Blend) +
			"-" + c.Rebalance.Frequency
	default:
		return "top" + itoa(c.Strategy.Fixed.TopK) +
			"-" + c.Strategy.Fixed.Weighting +
			"-" + c.Rebalance.Frequency
	}
}

// Parameters returns a flat parameter map for result metadata
func (c *Config) Parameters() map[string]string {
	p := map[string]string{
		"strategy":          string(c.Strategy.Kind),
		"rebalance":         c.Rebalance.Frequency,
		"max_weight_change": trimFloat(c.Allocation.MaxWeightChange),
		"cash_reserve":      trimFloat(c.Allocation.CashReserve),
		"slippage":          trimFloat(c.Costs.Slippage),
		"fee":               trimFloat(c.Costs.Fee),
		"stop_loss":         trimFloat(c.Risk.StopLoss),
		"take_profit":       trimFloat(c.Risk.TakeProfit),
		"exclude_risk":      boolStr(c.Eligibility.RiskWarningExcluded()),
		"exclude_limit_up":  boolStr(c.Eligibility.ExcludeLimitUp),
	}
	if c.Rebalance.Frequency == "every_n" {
		p["interval"] = itoa(c.Rebalance.Interval)
	}
	switch c.Strategy.Kind {
	case contracts.KindDynamic:
		p["threshold"] = trimFloat(c.Strategy.Dynamic.Threshold)
		p["max_holdings"] = itoa(c.Strategy.Dynamic.MaxHoldings)
		p["blend"] = trimFloat(c.Strategy.Dynamic.Blend)
		p["lookback"] = itoa(c.Strategy.Dynamic.Lookback)
	default:
		p["top_k"] = itoa(c.Strategy.Fixed.TopK)
		p["weighting"] = c.Strategy.Fixed.Weighting
	}
	return p
}

// DecisionSnapshot 실행 설정 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}
