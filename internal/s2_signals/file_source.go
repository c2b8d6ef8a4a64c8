package s2_signals

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/logger"
)

// FileSource serves scores from an externally produced score file
// 데이터셋 날짜/종목에 맞춰 재정렬, 파일에 없는 셀은 미정의
type FileSource struct {
	path   string
	opts   ReadOptions
	logger *logger.Logger
}

// NewFileSource creates a file-backed score source
func NewFileSource(path string, opts ReadOptions, log *logger.Logger) *FileSource {
	if log == nil {
		log = logger.Nop()
	}
	return &FileSource{path: path, opts: opts, logger: log.WithStage(contracts.StageSignals.ShortName())}
}

// Build loads the file and aligns it to the dataset
func (s *FileSource) Build(ctx context.Context, ds *contracts.Dataset) (*contracts.ScoreMatrix, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open score file: %w", err)
	}
	defer f.Close()

	ext, err := ReadCSV(f, s.opts)
	if err != nil {
		return nil, fmt.Errorf("score file %s: %w", s.path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, missing, err := Align(ext, ds)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"file":         s.path,
		"file_days":    len(ext.Dates),
		"file_columns": len(ext.Instruments),
		"missing_days": missing,
	}).Info("Score file loaded")
	return m, nil
}

// Align reshapes a matrix onto the dataset's simulation days and instruments
// returns the number of simulation days absent from the source matrix
func Align(src *contracts.ScoreMatrix, ds *contracts.Dataset) (*contracts.ScoreMatrix, int, error) {
	days := ds.SimulationDays()
	ids := ds.InstrumentIDs()
	values := make([][]contracts.Score, len(days))
	missing := 0
	for d, day := range days {
		values[d] = make([]contracts.Score, len(ids))
		if _, ok := src.DateIndex(day); !ok {
			missing++
			continue
		}
		for i, id := range ids {
			values[d][i] = src.Get(day, id)
		}
	}
	m, err := contracts.NewScoreMatrix(days, ids, values)
	return m, missing, err
}
