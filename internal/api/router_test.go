package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/api/handlers"
	"github.com/wonny/stockbt/internal/backtest"
	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/internal/metrics"
	"github.com/wonny/stockbt/internal/resultstore"
	"github.com/wonny/stockbt/internal/resultstore/archive"
)

func storedResult(t *testing.T) (*resultstore.Store, string) {
	t.Helper()
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	store := resultstore.New(fs, -1, nil)

	d0 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	_, err = store.Save(context.Background(), &contracts.BacktestResult{
		RunID:    "abcdef12-3456",
		Strategy: contracts.KindFixed,
		Days: []contracts.DayRecord{
			{Date: d0, DailyReturn: 0.01, Cash: 0.5, Holdings: map[string]float64{"A": 0.5}},
			{Date: d0.AddDate(0, 0, 1), DailyReturn: -0.02, Cash: 0.5, Holdings: map[string]float64{"A": 0.5}},
		},
		Meta: contracts.RunMeta{
			RunID:     "abcdef12-3456",
			Strategy:  contracts.KindFixed,
			Summary:   "top1-equal-weekly",
			CreatedAt: time.Now().UTC(),
		},
	})
	require.NoError(t, err)

	entries, err := store.List(context.Background(), resultstore.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return store, entries[0].Name
}

// stubRunner returns a canned result or error
type stubRunner struct {
	err error
}

func (s stubRunner) Run(_ context.Context, spec backtest.RunSpec) (*contracts.BacktestResult, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return &contracts.BacktestResult{Meta: contracts.RunMeta{RunID: "r1", Summary: spec.Config.Summary()}}, "mem://r1", nil
}

func newTestRouter(t *testing.T, runner handlers.Runner) (http.Handler, string) {
	store, name := storedResult(t)
	h := Handlers{
		Results:  handlers.NewResultHandler(store, nil),
		Backtest: handlers.NewBacktestHandler(runner, nil),
	}
	return NewRouter(h, metrics.NewRegistry(), nil), name
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, stubRunner{})
	rec := do(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouter_Results(t *testing.T) {
	router, name := newTestRouter(t, stubRunner{})

	rec := do(router, http.MethodGet, "/api/results?kind=fixed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Results []resultstore.Entry `json:"results"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, name, list.Results[0].Name)

	rec = do(router, http.MethodGet, "/api/results?kind=dynamic", "")
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = do(router, http.MethodGet, "/api/results?kind=momentum", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/api/results/"+name, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var meta contracts.RunMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "abcdef12-3456", meta.RunID)

	rec = do(router, http.MethodGet, "/api/results/"+name+"?days=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result contracts.BacktestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Days, 2)

	rec = do(router, http.MethodGet, "/api/results/"+name+"/equity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"snapshots"`)

	rec = do(router, http.MethodGet, "/api/results/"+name+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "date,daily_return,"))

	rec = do(router, http.MethodGet, "/api/results/fixed_strategy_x_20200101000000.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Backtest(t *testing.T) {
	config := "run:\n  start: \"2024-01-02\"\n  end: \"2024-03-29\"\nstrategy:\n  kind: fixed\n  fixed:\n    top_k: 3\n"

	router, _ := newTestRouter(t, stubRunner{})
	rec := do(router, http.MethodPost, "/api/backtests", config)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "top3-equal-weekly")

	rec = do(router, http.MethodPost, "/api/backtests", "strategy:\n  kind: momentum\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	router, _ = newTestRouter(t, stubRunner{err: &contracts.DataGapError{Stage: contracts.StageData}})
	rec = do(router, http.MethodPost, "/api/backtests", config)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(t, stubRunner{})
	do(router, http.MethodGet, "/api/results", "")

	rec := do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/results",status="200"} 1`)
}
