package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/instantwaste/formscan/internal/pipeline"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Scan processing metrics
	scanRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_scan_requests_total",
			Help: "Total number of scan requests",
		},
		[]string{"mode", "status"}, // mode: sync, async
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formscan_scan_duration_seconds",
			Help:    "Form scan duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"mode"},
	)

	scanRowsExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formscan_scan_rows_extracted",
			Help:    "Number of item rows extracted per scan",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 50, 100},
		},
	)

	scanCellsRecovered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formscan_scan_cells_recovered",
			Help:    "Number of cells filled by retry passes per scan",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: requests_per_minute, uploads_per_day, data_per_day
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formscan_upload_size_bytes",
			Help:    "Size of uploaded form images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formscan_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// recordScan updates the per-scan metrics after a successful pipeline run.
func recordScan(mode string, result *pipeline.ScanResult, seconds float64) {
	scanRequestsTotal.WithLabelValues(mode, "success").Inc()
	scanDuration.WithLabelValues(mode).Observe(seconds)
	rows := 0
	for _, t := range result.Tables {
		rows += len(t.Rows)
	}
	scanRowsExtracted.Observe(float64(rows))
	scanCellsRecovered.Observe(float64(result.RecoveredCells))
}
