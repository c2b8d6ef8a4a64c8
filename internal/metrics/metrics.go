package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/stockbt/internal/contracts"
)

// Registry holds all Prometheus metrics
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Backtest metrics
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsInFlight    prometheus.Gauge
	daysSimulated   *prometheus.CounterVec
	rebalancesTotal *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	turnover        *prometheus.HistogramVec
	prunedTotal     prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockbt_runs_total",
				Help: "Total number of backtest runs",
			},
			[]string{"strategy", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockbt_run_duration_seconds",
				Help:    "Backtest run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"strategy"},
		),
		runsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockbt_runs_in_flight",
				Help: "Number of backtest runs currently executing",
			},
		),
		daysSimulated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockbt_days_simulated_total",
				Help: "Total number of simulated trading days",
			},
			[]string{"strategy"},
		),
		rebalancesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockbt_rebalances_total",
				Help: "Total number of rebalance days",
			},
			[]string{"strategy"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockbt_events_total",
				Help: "Simulation events by type (stop loss, missing price, ...)",
			},
			[]string{"type"},
		),
		turnover: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockbt_rebalance_turnover",
				Help:    "Turnover per rebalance day",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"strategy"},
		),
		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stockbt_results_pruned_total",
				Help: "Total number of result artifacts removed by retention",
			},
		),
	}

	reg.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.runsTotal,
		r.runDuration,
		r.runsInFlight,
		r.daysSimulated,
		r.rebalancesTotal,
		r.eventsTotal,
		r.turnover,
		r.prunedTotal,
	)

	return r
}

// RecordRequest records an HTTP request
func (r *Registry) RecordRequest(method, path string, status int, seconds float64) {
	r.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RunStarted implements backtest.Observer
func (r *Registry) RunStarted(kind contracts.StrategyKind) {
	r.runsInFlight.Inc()
}

// DaySimulated implements backtest.Observer
func (r *Registry) DaySimulated(kind contracts.StrategyKind, rec contracts.DayRecord) {
	r.daysSimulated.WithLabelValues(string(kind)).Inc()
	if rec.Rebalanced {
		r.rebalancesTotal.WithLabelValues(string(kind)).Inc()
		r.turnover.WithLabelValues(string(kind)).Observe(rec.Turnover)
	}
	for _, ev := range rec.Events {
		r.eventsTotal.WithLabelValues(string(ev.Type)).Inc()
	}
}

// RunFinished implements backtest.Observer
func (r *Registry) RunFinished(kind contracts.StrategyKind, status string, elapsed time.Duration) {
	r.runsInFlight.Dec()
	r.runsTotal.WithLabelValues(string(kind), status).Inc()
	r.runDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// RecordPruned records removed result artifacts
func (r *Registry) RecordPruned(n int) {
	r.prunedTotal.Add(float64(n))
}

// Handler returns the /metrics HTTP handler
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
