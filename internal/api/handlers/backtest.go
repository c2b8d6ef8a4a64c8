package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/wonny/stockbt/internal/backtest"
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/strategyconfig"
	"github.com/wonny/stockbt/pkg/logger"
)

const maxConfigBytes = 1 << 20

// Runner executes one backtest run
type Runner interface {
	Run(ctx context.Context, spec backtest.RunSpec) (*contracts.BacktestResult, string, error)
}

// BacktestHandler starts backtests from a posted run config
type BacktestHandler struct {
	runner Runner
	logger *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(runner Runner, log *logger.Logger) *BacktestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BacktestHandler{runner: runner, logger: log}
}

// Run executes a backtest synchronously and returns its metadata
// POST /api/backtests (body: YAML 실행 설정)
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	cfg, err := strategyconfig.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	blacklist, err := strategyconfig.LoadBlacklist(cfg.Run)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, location, err := h.runner.Run(r.Context(), backtest.RunSpec{Config: cfg, Blacklist: blacklist})
	if err != nil {
		h.logger.WithError(err).Warn("Backtest request failed")
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"location": location,
		"meta":     result.Meta,
	})
}

// statusFor maps the error taxonomy to HTTP status codes
func statusFor(err error) int {
	var (
		ce   *contracts.ConfigurationError
		ces  contracts.ConfigurationErrors
		gap  *contracts.DataGapError
		ide  *contracts.InsufficientDataError
		infe *contracts.InfeasibleAllocationError
	)
	switch {
	case errors.As(err, &ce), errors.As(err, &ces):
		return http.StatusBadRequest
	case errors.As(err, &gap), errors.As(err, &ide), errors.As(err, &infe):
		return http.StatusUnprocessableEntity
	case contracts.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	}
	return http.StatusInternalServerError
}
