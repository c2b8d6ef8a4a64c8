package contracts

import "time"

// ExclusionReason 투자 불가 사유
type ExclusionReason string

// 제외 사유 (우선순위 순)
const (
	ReasonBlacklisted    ExclusionReason = "blacklisted"
	ReasonNotListed      ExclusionReason = "not_listed"
	ReasonDelisted       ExclusionReason = "delisted"
	ReasonSuspended      ExclusionReason = "suspended"
	ReasonNoData         ExclusionReason = "no_data"
	ReasonRiskWarning    ExclusionReason = "risk_warning"
	ReasonLimitUp        ExclusionReason = "limit_up"
	ReasonUndefinedScore ExclusionReason = "undefined_score"
)

// Universe represents the investable instruments of one day (S1 output)
// ⭐ SSOT: S1 → S3 투자 가능 종목 전달
type Universe struct {
	Date        time.Time                  `json:"date"`
	Instruments []string                   `json:"instruments"` // 정렬됨
	Excluded    map[string]ExclusionReason `json:"excluded"`
	TotalCount  int                        `json:"total_count"`
}

// Contains checks if an instrument is in the universe
func (u *Universe) Contains(id string) bool {
	for _, s := range u.Instruments {
		if s == id {
			return true
		}
	}
	return false
}

// Size returns the number of eligible instruments
func (u *Universe) Size() int {
	return len(u.Instruments)
}

// Blacklist 실행 전체에 적용되는 제외 종목
type Blacklist map[string]struct{}

// NewBlacklist builds a blacklist from IDs
func NewBlacklist(ids ...string) Blacklist {
	b := make(Blacklist, len(ids))
	for _, id := range ids {
		b[id] = struct{}{}
	}
	return b
}

// Contains checks membership
func (b Blacklist) Contains(id string) bool {
	_, ok := b[id]
	return ok
}
