// Package metrics exposes Prometheus counters for poll passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors recorded by the poll driver. Each instance
// owns its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	PassesTotal  *prometheus.CounterVec
	RowsLogged   prometheus.Counter
	ErrorsTotal  *prometheus.CounterVec
	PassDuration prometheus.Histogram
	LedgerSize   prometheus.Gauge
	Polling      prometheus.Gauge
	Authorized   prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotlog_passes_total",
				Help: "Total number of poll passes by outcome",
			},
			[]string{"result"},
		),
		RowsLogged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spotlog_rows_logged_total",
				Help: "Total number of rows appended to the destination table",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotlog_errors_total",
				Help: "Total number of pass errors by kind",
			},
			[]string{"kind"},
		),
		PassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spotlog_pass_duration_seconds",
				Help:    "Time spent in one fetch, dedupe and log pass",
				Buckets: prometheus.DefBuckets,
			},
		),
		LedgerSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotlog_ledger_keys",
				Help: "Number of distinct keys in the ledger of the last pass",
			},
		),
		Polling: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotlog_polling",
				Help: "1 while polling is started",
			},
		),
		Authorized: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotlog_authorized",
				Help: "1 while a Spotify session is held",
			},
		),
	}

	m.registry.MustRegister(
		m.PassesTotal,
		m.RowsLogged,
		m.ErrorsTotal,
		m.PassDuration,
		m.LedgerSize,
		m.Polling,
		m.Authorized,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePass records the outcome of one pass
func (m *Metrics) ObservePass(result string, logged int, ledgerKeys int, took time.Duration) {
	m.PassesTotal.WithLabelValues(result).Inc()
	m.RowsLogged.Add(float64(logged))
	m.LedgerSize.Set(float64(ledgerKeys))
	m.PassDuration.Observe(took.Seconds())
}

// ObserveError counts a pass error of the given kind
func (m *Metrics) ObserveError(kind string) {
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// SetPolling records whether polling is started
func (m *Metrics) SetPolling(on bool) {
	m.Polling.Set(boolGauge(on))
}

// SetAuthorized records whether a session is held
func (m *Metrics) SetAuthorized(on bool) {
	m.Authorized.Set(boolGauge(on))
}

func boolGauge(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
