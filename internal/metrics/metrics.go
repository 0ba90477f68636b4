// Package metrics exposes Prometheus metrics for the ingestion pipeline,
// the runtime materializer and the query API.
//
// Usage:
//
//	metrics.RecordTableStep("load", "loaded")
//	metrics.RecordMaterialize(time.Since(start), err)
//	metrics.RecordQuery("http", time.Since(start), err)
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TableStepsTotal counts table outcomes per pipeline step.
	TableStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpipe_table_steps_total",
			Help: "Table outcomes per pipeline step (load, build, export)",
		},
		[]string{"step", "status"},
	)

	// QAFindingsTotal counts QA findings by check and status.
	QAFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpipe_qa_findings_total",
			Help: "QA findings by check and status",
		},
		[]string{"check", "status"},
	)

	// MaterializeBuildsTotal counts runtime database builds by result.
	MaterializeBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpipe_materialize_builds_total",
			Help: "Runtime database builds by result",
		},
		[]string{"result"},
	)

	// MaterializeDuration tracks how long runtime builds take.
	MaterializeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nflpipe_materialize_duration_seconds",
			Help:    "Duration of runtime database builds in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// QueryDuration tracks analytical query latency.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nflpipe_query_duration_seconds",
			Help:    "Duration of analytical queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// QueryErrorsTotal counts failed analytical queries.
	QueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpipe_query_errors_total",
			Help: "Failed analytical queries",
		},
		[]string{"source"},
	)

	// HTTPRequestsTotal counts API requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nflpipe_http_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// RecordTableStep counts one table outcome.
func RecordTableStep(step, status string) {
	TableStepsTotal.WithLabelValues(step, status).Inc()
}

// RecordFinding counts one QA finding.
func RecordFinding(check, status string) {
	QAFindingsTotal.WithLabelValues(check, status).Inc()
}

// RecordMaterialize records a runtime build.
func RecordMaterialize(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	MaterializeBuildsTotal.WithLabelValues(result).Inc()
	MaterializeDuration.Observe(d.Seconds())
}

// RecordQuery records one analytical query.
func RecordQuery(source string, d time.Duration, err error) {
	QueryDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		QueryErrorsTotal.WithLabelValues(source).Inc()
	}
}

// RecordHTTPRequest counts one API request.
func RecordHTTPRequest(route string, code int) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
