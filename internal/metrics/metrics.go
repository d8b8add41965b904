// Package metrics defines the Prometheus collectors exported by calfeed.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session end reasons used as the "reason" label of SessionsEnded.
const (
	ReasonTimeout    = "timeout"
	ReasonError      = "error"
	ReasonDisconnect = "disconnect"
)

var (
	// Stream session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "calfeed_stream_sessions_active",
			Help: "Number of currently open stream sessions",
		},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calfeed_stream_sessions_ended_total",
			Help: "Total number of stream sessions ended by reason",
		},
		[]string{"reason"},
	)

	RecordsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calfeed_records_delivered_total",
			Help: "Total number of change records written to stream sessions",
		},
	)

	HeartbeatsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calfeed_heartbeats_sent_total",
			Help: "Total number of heartbeat frames written to stream sessions",
		},
	)

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calfeed_poll_duration_seconds",
			Help:    "Time taken by one change log read in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Change log metrics
	ChangesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calfeed_changes_appended_total",
			Help: "Total number of change log appends by result",
		},
		[]string{"result"},
	)

	TrimRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calfeed_trim_runs_total",
			Help: "Total number of retention runs by result",
		},
		[]string{"result"},
	)

	RecordsTrimmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calfeed_records_trimmed_total",
			Help: "Total number of change records removed by retention",
		},
	)

	// Export metrics
	ExportRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calfeed_export_runs_total",
			Help: "Total number of snapshot exports by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calfeed_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calfeed_api_request_duration_seconds",
			Help:    "API request duration in seconds, streaming requests excluded",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsEnded)
	prometheus.MustRegister(RecordsDelivered)
	prometheus.MustRegister(HeartbeatsSent)
	prometheus.MustRegister(PollDuration)
	prometheus.MustRegister(ChangesAppended)
	prometheus.MustRegister(TrimRuns)
	prometheus.MustRegister(RecordsTrimmed)
	prometheus.MustRegister(ExportRuns)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Result returns the "result" label value for an operation outcome.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
