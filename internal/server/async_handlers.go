package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/instantwaste/formscan/internal/session"
)

// scanAsyncHandler accepts a form image, queues it for processing and
// returns a session ID immediately. The upload is spooled to a temp file so
// the request can complete before OCR starts; the worker removes the file on
// every exit path.
func (s *Server) scanAsyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, ok := s.spoolUpload(w, r)
	if !ok {
		return
	}

	sess := s.sessions.Create()
	go s.processAsync(sess.ID, path)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	response := AsyncScanResponse{SessionID: sess.ID, Status: string(sess.Status)}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode async scan response", "error", err)
	}
}

// processAsync runs one queued scan to completion, reporting pipeline
// checkpoints into the session as it goes.
func (s *Server) processAsync(id, path string) {
	defer func() {
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove spooled upload", "path", path, "error", err)
		}
	}()

	ctx := context.Background()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	pl := s.pipeline.WithProgress(func(stage string, percent int) {
		s.sessions.UpdateProgress(id, stage, percent)
	})

	start := time.Now()
	result, err := pl.ProcessFile(ctx, path)
	if err != nil {
		scanRequestsTotal.WithLabelValues("async", "error").Inc()
		slog.Error("async scan failed", "session", id, "error", err)
		s.sessions.Fail(id, err.Error())
		return
	}
	recordScan("async", result, time.Since(start).Seconds())
	s.sessions.Complete(id, result)
}

// progressHandler reports the state of an async scan session.
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("session")
	if id == "" {
		s.writeErrorResponse(w, "Missing session parameter", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		s.writeErrorResponse(w, "Unknown or expired session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(progressOf(sess)); err != nil {
		slog.Error("failed to encode progress response", "error", err)
	}
}

// resultHandler delivers a finished scan result. Picking a result up removes
// the session; a second request returns 404.
func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("session")
	if id == "" {
		s.writeErrorResponse(w, "Missing session parameter", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.TakeResult(id)
	if !ok {
		s.writeErrorResponse(w, "Unknown or expired session", http.StatusNotFound)
		return
	}

	switch sess.Status {
	case session.StatusComplete:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ScanResponse{Success: true, Result: sess.Result}); err != nil {
			slog.Error("failed to encode result response", "error", err)
		}
	case session.StatusFailed:
		s.writeErrorResponse(w, fmt.Sprintf("Scan failed: %s", sess.Error), http.StatusInternalServerError)
	default:
		// Still running; the session survives for a later pickup, but the
		// result surface only answers once the scan is terminal.
		s.writeErrorResponse(w, "Result not ready", http.StatusNotFound)
	}
}

func progressOf(sess session.Session) ProgressResponse {
	return ProgressResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Stage:     sess.Stage,
		Percent:   sess.Percent,
		Error:     sess.Error,
	}
}

// spoolUpload writes the multipart "image" upload to a temp file and returns
// its path. On failure it writes the error response itself.
func (s *Server) spoolUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	maxBytes := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return "", false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return "", false
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxBytes {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return "", false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".img"
	}
	tmp, err := os.CreateTemp(s.tempDir, "formscan-*"+ext)
	if err != nil {
		s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		return "", false
	}
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		return "", false
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		return "", false
	}
	return tmp.Name(), true
}
