package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/stockbt/internal/audit"
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/resultstore"
	"github.com/wonny/stockbt/pkg/logger"
)

// ResultReader is the read side of the result store
type ResultReader interface {
	List(ctx context.Context, f resultstore.Filter) ([]resultstore.Entry, error)
	Read(ctx context.Context, name string) (*contracts.BacktestResult, error)
	ReadRaw(ctx context.Context, name string) ([]byte, error)
	ReadMeta(ctx context.Context, name string) (*contracts.RunMeta, error)
}

// ResultHandler handles result store endpoints
// ⭐ SSOT: 결과 조회 API 핸들러는 이 구조체에서만 (읽기 전용)
type ResultHandler struct {
	store  ResultReader
	logger *logger.Logger
}

// NewResultHandler creates a new result handler
func NewResultHandler(store ResultReader, log *logger.Logger) *ResultHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ResultHandler{store: store, logger: log}
}

// List returns stored results, newest first
// GET /api/results?kind=fixed&max_age=72h
func (h *ResultHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := resultstore.Filter{Kind: contracts.StrategyKind(q.Get("kind"))}
	if f.Kind != "" && !f.Kind.IsValid() {
		respondError(w, http.StatusBadRequest, "kind must be fixed or dynamic")
		return
	}
	if v := q.Get("max_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "max_age must be a positive duration")
			return
		}
		f.MaxAge = d
	}

	entries, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list results")
		respondError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}
	if entries == nil {
		entries = []resultstore.Entry{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": entries,
		"count":   len(entries),
	})
}

// Get returns result metadata, optionally with daily rows
// GET /api/results/{name}?days=true
func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	withDays, _ := strconv.ParseBool(r.URL.Query().Get("days"))

	if !withDays {
		meta, err := h.store.ReadMeta(r.Context(), name)
		if err != nil {
			h.fail(w, name, err)
			return
		}
		respondJSON(w, http.StatusOK, meta)
		return
	}

	result, err := h.store.Read(r.Context(), name)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Equity returns the wealth curve of a result
// GET /api/results/{name}/equity
func (h *ResultHandler) Equity(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	result, err := h.store.Read(r.Context(), name)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":      name,
		"snapshots": audit.Snapshots(result),
	})
}

// Download streams the stored CSV verbatim
// GET /api/results/{name}/download
func (h *ResultHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := h.store.ReadRaw(r.Context(), name)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *ResultHandler) fail(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, resultstore.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Result not found")
		return
	}
	h.logger.WithError(err).WithField("name", name).Error("Failed to read result")
	respondError(w, http.StatusInternalServerError, "Failed to read result")
}
