package resultstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
)

const (
	timestampLayout = "20060102150405"
	csvExt          = ".csv"
	metaExt         = ".meta.json"
	nameInfix       = "_strategy_"
)

// Entry 저장된 결과 한 건 (파일명에서 파싱)
type Entry struct {
	Name      string                 `json:"name"`
	Kind      contracts.StrategyKind `json:"kind"`
	Summary   string                 `json:"summary"`
	CreatedAt time.Time              `json:"created_at"`
}

// FileName builds "{kind}_strategy_{summary}-{runid}_{YYYYMMDDHHMMSS}.csv"
// summary 와 run id 에는 '_' 가 없으므로 마지막 '_' 뒤가 항상 타임스탬프
func FileName(kind contracts.StrategyKind, summary, runID string, created time.Time) string {
	summary = strings.ReplaceAll(summary, "_", "-")
	short := strings.ReplaceAll(runID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if short != "" {
		summary += "-" + short
	}
	return string(kind) + nameInfix + summary + "_" + created.UTC().Format(timestampLayout) + csvExt
}

// ParseName parses a result file name
func ParseName(name string) (Entry, error) {
	// ⭐ SSOT: 결과 이름은 스토리지 루트 바로 아래 파일만 가리킨다
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Entry{}, fmt.Errorf("result name %q: path elements not allowed", name)
	}
	base, ok := strings.CutSuffix(name, csvExt)
	if !ok {
		return Entry{}, fmt.Errorf("result name %q: missing %s", name, csvExt)
	}
	kind, rest, ok := strings.Cut(base, nameInfix)
	if !ok || !contracts.StrategyKind(kind).IsValid() {
		return Entry{}, fmt.Errorf("result name %q: unknown strategy prefix", name)
	}
	i := strings.LastIndex(rest, "_")
	if i < 0 {
		return Entry{}, fmt.Errorf("result name %q: missing timestamp", name)
	}
	created, err := time.Parse(timestampLayout, rest[i+1:])
	if err != nil {
		return Entry{}, fmt.Errorf("result name %q: bad timestamp: %w", name, err)
	}
	return Entry{
		Name:      name,
		Kind:      contracts.StrategyKind(kind),
		Summary:   rest[:i],
		CreatedAt: created,
	}, nil
}

// metaName returns the sidecar name of a result file
func metaName(name string) string {
	return strings.TrimSuffix(name, csvExt) + metaExt
}
