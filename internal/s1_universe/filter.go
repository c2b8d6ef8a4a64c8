package s1_universe

import (
	"sort"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/logger"
)

// Config holds eligibility policy
type Config struct {
	ExcludeRiskWarning bool // ST/*ST 제외 (기본 true)
	ExcludeLimitUp     bool // 상한가 제외 (기본 false)
}

// ConfigFrom maps the run eligibility section
func ConfigFrom(e strategyconfig.Eligibility) Config {
	return Config{
		ExcludeRiskWarning: e.RiskWarningExcluded(),
		ExcludeLimitUp:     e.ExcludeLimitUp,
	}
}

// Filter selects investable instruments per trading day
// ⭐ SSOT: S1 투자 가능 종목 판정은 여기서만 (날짜별 독립)
type Filter struct {
	ds        *contracts.Dataset
	scores    *contracts.ScoreMatrix
	blacklist contracts.Blacklist
	config    Config
	logger    *logger.Logger
}

// NewFilter creates a new eligibility filter
func NewFilter(ds *contracts.Dataset, scores *contracts.ScoreMatrix, blacklist contracts.Blacklist, config Config, log *logger.Logger) *Filter {
	if blacklist == nil {
		blacklist = contracts.NewBlacklist()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Filter{
		ds:        ds,
		scores:    scores,
		blacklist: blacklist,
		config:    config,
		logger:    log.WithStage(contracts.StageUniverse.ShortName()),
	}
}

// Eligible returns the universe of calendar index day
func (f *Filter) Eligible(day int) *contracts.Universe {
	date := f.ds.Calendar[day]
	universe := &contracts.Universe{
		Date:        date,
		Instruments: make([]string, 0, len(f.ds.Instruments)),
		Excluded:    make(map[string]contracts.ExclusionReason),
		TotalCount:  len(f.ds.Instruments),
	}

	for i, in := range f.ds.Instruments {
		reason := f.checkExclusion(day, i, in)
		if reason != "" {
			universe.Excluded[in.ID] = reason
			continue
		}
		universe.Instruments = append(universe.Instruments, in.ID)
	}
	sort.Strings(universe.Instruments)

	f.logger.WithFields(map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"eligible": len(universe.Instruments),
		"excluded": len(universe.Excluded),
	}).Debug("Universe evaluated")

	return universe
}

// checkExclusion returns the first matching exclusion reason, "" if eligible
func (f *Filter) checkExclusion(day, i int, in contracts.Instrument) contracts.ExclusionReason {
	date := f.ds.Calendar[day]
	flags := f.ds.Flags(day, i)

	// 우선순위 순서로 체크

	// 1. 블랙리스트
	if f.blacklist.Contains(in.ID) {
		return contracts.ReasonBlacklisted
	}

	// 2. 상장 전
	if !in.ListDate.IsZero() && date.Before(in.ListDate) {
		return contracts.ReasonNotListed
	}

	// 3. 상장폐지
	if flags.Has(contracts.FlagDelisted) {
		return contracts.ReasonDelisted
	}

	// 4. 거래정지
	if flags.Has(contracts.FlagSuspended) {
		return contracts.ReasonSuspended
	}

	// 5. 당일 봉 없음
	if !f.ds.Bars[day][i].HasData() {
		return contracts.ReasonNoData
	}

	// 6. 리스크 경고 (ST)
	if f.config.ExcludeRiskWarning && flags.Has(contracts.FlagRiskWarning) {
		return contracts.ReasonRiskWarning
	}

	// 7. 상한가 (매수 불가)
	if f.config.ExcludeLimitUp && flags.Has(contracts.FlagLimitUp) {
		return contracts.ReasonLimitUp
	}

	// 8. 점수 미정의
	if f.scores == nil || !f.scores.Get(date, in.ID).Valid {
		return contracts.ReasonUndefinedScore
	}

	return ""
}

// Summary counts exclusions by reason
func Summary(u *contracts.Universe) map[contracts.ExclusionReason]int {
	out := make(map[contracts.ExclusionReason]int)
	for _, r := range u.Excluded {
		out[r]++
	}
	return out
}
