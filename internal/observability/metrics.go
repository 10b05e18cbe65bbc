package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_http_requests_total",
			Help: "Total number of API requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_http_request_duration_seconds",
			Help:    "API request latency by route. Question routes include up to two model calls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
	modelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_model_requests_total",
			Help: "Total number of generative model calls by profile and outcome.",
		},
		[]string{"profile", "outcome"},
	)
	modelLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_model_latency_ms",
			Help:    "Generative model call latency in milliseconds, including timed out calls.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		},
		[]string{"profile"},
	)
	queryFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_query_fallbacks_total",
			Help: "Total number of generated queries replaced by the default query, by reason.",
		},
		[]string{"reason"},
	)
	plotRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_plot_rejections_total",
			Help: "Total number of plot requests rejected, by reason.",
		},
		[]string{"reason"},
	)
	tablesProvisionedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_tables_provisioned_total",
			Help: "Total number of tables created and registered.",
		},
	)
	rowsLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_rows_loaded_total",
			Help: "Total number of rows inserted while provisioning or restoring tables.",
		},
	)
	tablesRestoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_tables_restored_total",
			Help: "Total number of tables provisioned again from their archived dataset.",
		},
	)
	tablesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_tables_dropped_total",
			Help: "Total number of tables dropped and unregistered.",
		},
	)
	archiveFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_archive_failures_total",
			Help: "Total number of dataset archive operations that failed, by operation.",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		modelRequestsTotal,
		modelLatencyMs,
		queryFallbacksTotal,
		plotRejectionsTotal,
		tablesProvisionedTotal,
		rowsLoadedTotal,
		tablesRestoredTotal,
		tablesDroppedTotal,
		archiveFailuresTotal,
	)
}

func observeHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func ObserveModelCall(profile, outcome string, elapsed time.Duration) {
	modelRequestsTotal.WithLabelValues(profile, outcome).Inc()
	modelLatencyMs.WithLabelValues(profile).Observe(float64(elapsed.Milliseconds()))
}

func IncrementQueryFallback(reason string) {
	queryFallbacksTotal.WithLabelValues(reason).Inc()
}

func IncrementPlotRejection(reason string) {
	plotRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveTableProvisioned(rows int) {
	tablesProvisionedTotal.Inc()
	if rows > 0 {
		rowsLoadedTotal.Add(float64(rows))
	}
}

// ObserveTableRestored counts a restore and the rows it loaded back.
func ObserveTableRestored(rows int) {
	tablesRestoredTotal.Inc()
	if rows > 0 {
		rowsLoadedTotal.Add(float64(rows))
	}
}

func IncrementTableDropped() {
	tablesDroppedTotal.Inc()
}

func IncrementArchiveFailure(operation string) {
	archiveFailuresTotal.WithLabelValues(operation).Inc()
}
