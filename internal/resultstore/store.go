package resultstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/resultstore/archive"
	"github.com/wonny/stockbt/pkg/logger"
)

// DefaultRetention 결과 파일 보관 기간
const DefaultRetention = 30 * 24 * time.Hour

// ErrNotFound is returned for unknown result names
var ErrNotFound = errors.New("result not found")

// Store persists backtest results as CSV + metadata sidecar
// ⭐ SSOT: S6 결과 저장소
// 사이드카를 먼저, CSV 를 마지막에 기록하므로 CSV 가 보이면 실행이 완결된 것
type Store struct {
	storage   archive.Storage
	precision int
	now       func() time.Time
	logger    *logger.Logger
}

// New creates a result store
func New(storage archive.Storage, precision int, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		storage:   storage,
		precision: precision,
		now:       time.Now,
		logger:    log.WithStage(contracts.StageStore.ShortName()),
	}
}

// Precision returns the declared float precision (-1 = shortest exact)
func (s *Store) Precision() int {
	return s.precision
}

// Save writes one completed run and returns its location
func (s *Store) Save(ctx context.Context, r *contracts.BacktestResult) (string, error) {
	if r == nil || len(r.Days) == 0 {
		return "", fmt.Errorf("%s: empty result", contracts.StageStore.ShortName())
	}
	created := r.Meta.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	summary := r.Meta.Summary
	if summary == "" {
		summary = "run"
	}
	name := FileName(r.Strategy, summary, r.RunID, created)
	if _, err := ParseName(name); err != nil {
		return "", err
	}

	// 실행 설정의 자릿수가 저장소 기본값보다 우선
	precision := s.precision
	if r.Meta.Precision != nil {
		precision = *r.Meta.Precision
	}
	var body bytes.Buffer
	if err := EncodeCSV(&body, r.Days, precision); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	meta := r.Meta
	meta.Precision = &precision
	metaBody, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.storage.Write(ctx, metaName(name), metaBody); err != nil {
		return "", fmt.Errorf("write %s: %w", metaName(name), err)
	}
	if err := s.storage.Write(ctx, name, body.Bytes()); err != nil {
		// 완결되지 않은 실행은 사이드카도 남기지 않음
		_ = s.storage.Delete(context.WithoutCancel(ctx), metaName(name))
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id": r.RunID,
		"name":   name,
		"days":   len(r.Days),
		"bytes":  body.Len(),
	}).Info("Result saved")

	return s.storage.Location(name), nil
}

// ReadRaw returns the stored CSV bytes verbatim
func (s *Store) ReadRaw(ctx context.Context, name string) ([]byte, error) {
	if _, err := ParseName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	data, err := s.storage.Read(ctx, name)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, err
}

// ReadMeta returns the metadata sidecar of a result
func (s *Store) ReadMeta(ctx context.Context, name string) (*contracts.RunMeta, error) {
	if _, err := ParseName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	data, err := s.storage.Read(ctx, metaName(name))
	if errors.Is(err, archive.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", metaName(name), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var meta contracts.RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metaName(name), err)
	}
	return &meta, nil
}

// Read loads a stored result with its metadata
func (s *Store) Read(ctx context.Context, name string) (*contracts.BacktestResult, error) {
	entry, err := ParseName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	data, err := s.ReadRaw(ctx, name)
	if err != nil {
		return nil, err
	}
	days, err := DecodeCSV(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	meta, err := s.ReadMeta(ctx, name)
	if err != nil {
		return nil, err
	}

	r := &contracts.BacktestResult{
		RunID:    meta.RunID,
		Strategy: entry.Kind,
		Days:     days,
		Meta:     *meta,
	}
	if len(days) > 0 {
		r.Start = days[0].Date
		r.End = days[len(days)-1].Date
	}
	return r, nil
}

// Filter 목록 조회 조건 (0 값 = 제한 없음)
type Filter struct {
	Kind   contracts.StrategyKind
	MaxAge time.Duration
}

// List returns stored results, newest first
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	paths, err := s.storage.List(ctx, string(f.Kind))
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	now := s.now()

	var entries []Entry
	for _, p := range paths {
		if !strings.HasSuffix(p, csvExt) || strings.Contains(p, "/") {
			continue
		}
		e, err := ParseName(p)
		if err != nil {
			continue // 다른 파일은 무시
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.MaxAge > 0 && now.Sub(e.CreatedAt) > f.MaxAge {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Name > entries[j].Name
	})
	return entries, nil
}

// Prune deletes results older than retention at now
// 실행 중에는 호출하지 않음 (CLI results prune, 스케줄러 작업)
func (s *Store) Prune(ctx context.Context, now time.Time, retention time.Duration) ([]string, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	entries, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if now.Sub(e.CreatedAt) <= retention {
			continue
		}
		// CSV 먼저 삭제: 중간에 실패해도 미완결 실행으로 보임
		if err := s.storage.Delete(ctx, e.Name); err != nil {
			return removed, fmt.Errorf("delete %s: %w", e.Name, err)
		}
		if err := s.storage.Delete(ctx, metaName(e.Name)); err != nil {
			return removed, fmt.Errorf("delete %s: %w", metaName(e.Name), err)
		}
		removed = append(removed, e.Name)
	}

	s.logger.WithFields(map[string]interface{}{
		"removed":   len(removed),
		"kept":      len(entries) - len(removed),
		"retention": retention.String(),
	}).Info("Result store pruned")

	return removed, nil
}
