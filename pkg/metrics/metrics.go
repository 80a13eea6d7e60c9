// Package metrics defines the Prometheus collectors used by the service and
// exposes an HTTP handler for scraping. Collectors live in a registry owned
// by the process and passed to each component; nothing registers globally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record outcomes for RecordsTotal.
const (
	OutcomeDropped  = "dropped"
	OutcomeSkipped  = "skipped"
	OutcomeEnriched = "enriched"
	OutcomeInvalid  = "invalid"
)

// Enrichment statuses for EnrichmentsTotal. Degraded means every upstream
// failed; the record still carries an empty income list.
const (
	EnrichmentComplete = "complete"
	EnrichmentPartial  = "partial"
	EnrichmentDegraded = "degraded"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	UpstreamLatency  *prometheus.SummaryVec
	UpstreamFailures *prometheus.CounterVec

	RecordsTotal        *prometheus.CounterVec
	EnrichmentsTotal    *prometheus.CounterVec
	EmptyIncomeTotal    prometheus.Counter
	IncomeEntries       prometheus.Histogram
	RecordsProduced     *prometheus.CounterVec
	ProcessorFailures   prometheus.Counter
	EngineState         prometheus.Gauge
	LedgerWriteFailures prometheus.Counter
}

// New creates a registry and registers all collectors, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		UpstreamLatency: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "upstream_client_seconds",
				Help:       "Latency of upstream income calls in seconds, including retries.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"client"},
		),
		UpstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_failures_total",
				Help: "Upstream calls that failed terminally, by client and reason.",
			},
			[]string{"client", "reason"},
		),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inntekt_records_total",
				Help: "Consumed records by outcome (dropped, skipped, enriched, invalid).",
			},
			[]string{"outcome"},
		),
		EnrichmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inntekt_enrichments_total",
				Help: "Enrichments by status (complete, partial, degraded).",
			},
			[]string{"status"},
		),
		EmptyIncomeTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inntekt_empty_income_total",
				Help: "Complete enrichments where both upstreams reported no income.",
			},
		),
		IncomeEntries: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inntekt_income_entries",
				Help:    "Number of income entries per enriched record.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		RecordsProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_records_produced_total",
				Help: "Records written to Kafka by topic.",
			},
			[]string{"topic"},
		),
		ProcessorFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kafka_processor_failures_total",
				Help: "Partition processors that stopped on a fatal error.",
			},
		),
		EngineState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kafka_engine_state",
				Help: "Stream engine state (0=created, 1=running, 2=pending_shutdown, 3=not_running, 4=error).",
			},
		),
		LedgerWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_write_failures_total",
				Help: "Failure ledger rows that could not be written.",
			},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.UpstreamLatency,
		m.UpstreamFailures,
		m.RecordsTotal,
		m.EnrichmentsTotal,
		m.EmptyIncomeTotal,
		m.IncomeEntries,
		m.RecordsProduced,
		m.ProcessorFailures,
		m.EngineState,
		m.LedgerWriteFailures,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
