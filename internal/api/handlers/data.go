package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/s0_data"
	"github.com/wonny/stockbt/pkg/logger"
)

// DatasetNormalizer aligns source feeds (S0)
type DatasetNormalizer interface {
	Normalize(ctx context.Context, req s0_data.Request) (*contracts.Dataset, error)
}

// DataHandler handles data-related API endpoints
// ⭐ SSOT: 데이터 API 핸들러는 이 구조체에서만
type DataHandler struct {
	normalizer DatasetNormalizer
	logger     *logger.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(normalizer DatasetNormalizer, log *logger.Logger) *DataHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DataHandler{normalizer: normalizer, logger: log}
}

// GetQuality returns a coverage report of the aligned dataset
// GET /api/data/quality?start=2024-01-01&end=2024-06-30
func (h *DataHandler) GetQuality(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := s0_data.ParseDate(q.Get("start"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "start is required (YYYY-MM-DD)")
		return
	}
	end := time.Now().UTC()
	if v := q.Get("end"); v != "" {
		if end, err = s0_data.ParseDate(v); err != nil {
			respondError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
	}

	ds, err := h.normalizer.Normalize(r.Context(), s0_data.Request{Start: start, End: end})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to normalize dataset")
		respondError(w, statusFor(err), err.Error())
		return
	}

	report := s0_data.Assess(ds)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"report":        report,
		"coverage_rate": report.CoverageRate(),
	})
}
