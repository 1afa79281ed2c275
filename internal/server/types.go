// Package server exposes the scan pipeline over HTTP: synchronous and
// asynchronous scan endpoints, session polling, a WebSocket progress feed
// and the item vocabulary.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/instantwaste/formscan/internal/ocr"
	"github.com/instantwaste/formscan/internal/pipeline"
	"github.com/instantwaste/formscan/internal/session"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    *pipeline.Pipeline
	sessions    *session.Manager
	rateLimiter *RateLimiter
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	tempDir     string
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	SessionTTL     time.Duration
	TempDir        string
	PipelineConfig pipeline.Config

	// Engine overrides the default OCR backend; tests inject stubs here.
	Engine ocr.Engine

	// Rate limiting; zero values disable the corresponding limit.
	RequestsPerMinute int
	MaxUploadsPerDay  int
	MaxDataPerDay     int64
}

// Response types for API endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int    `json:"sessions"`
	Time     string `json:"time"`
}

type ScanResponse struct {
	Success bool                 `json:"success"`
	Result  *pipeline.ScanResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type AsyncScanResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type ProgressResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	Percent   int    `json:"percent"`
	Error     string `json:"error,omitempty"`
}

type ItemsResponse struct {
	CompletedWaste []string `json:"completedWaste"`
	RawWaste       []string `json:"rawWaste"`
}

type SubmitResponse struct {
	Accepted bool     `json:"accepted"`
	Rows     int      `json:"rows"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewServer creates a scan server, building the pipeline from the provided
// config.
func NewServer(config Config) (*Server, error) {
	builder := pipeline.NewBuilder().WithConfig(config.PipelineConfig)
	if config.Engine != nil {
		builder = builder.WithEngine(config.Engine)
	}
	pl, err := builder.Build()
	if err != nil {
		return nil, err
	}

	ttl := config.SessionTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	var limiter *RateLimiter
	if config.RequestsPerMinute > 0 || config.MaxUploadsPerDay > 0 || config.MaxDataPerDay > 0 {
		limiter = NewRateLimiter(config.RequestsPerMinute, config.MaxUploadsPerDay, config.MaxDataPerDay)
	}

	return &Server{
		pipeline:    pl,
		sessions:    session.NewManager(ttl),
		rateLimiter: limiter,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		tempDir:     config.TempDir,
	}, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	s.sessions.Close()
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/items", s.corsMiddleware(s.itemsHandler))
	mux.HandleFunc("/scan", s.corsMiddleware(s.rateLimitMiddleware(s.scanHandler)))
	mux.HandleFunc("/scan/async", s.corsMiddleware(s.rateLimitMiddleware(s.scanAsyncHandler)))
	mux.HandleFunc("/scan/progress", s.corsMiddleware(s.progressHandler))
	mux.HandleFunc("/scan/result", s.corsMiddleware(s.resultHandler))
	mux.HandleFunc("/scan/submit", s.corsMiddleware(s.submitHandler))
	mux.HandleFunc("/ws/progress", s.progressWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}
