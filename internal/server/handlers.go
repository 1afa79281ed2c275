package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"

	"github.com/instantwaste/formscan/internal/pipeline"
	"github.com/instantwaste/formscan/internal/version"
	"github.com/instantwaste/formscan/internal/vocab"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Sessions: s.sessions.Len(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// itemsHandler returns the item vocabulary the matcher works against, so
// clients can render pick lists and validate corrections locally.
func (s *Server) itemsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	v := s.pipeline.Vocabulary()
	response := ItemsResponse{
		CompletedWaste: v.Items(vocab.CompletedWaste),
		RawWaste:       v.Items(vocab.RawWaste),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode items response", "error", err)
	}
}

// scanHandler processes a form image synchronously and returns the full
// scan result.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	img, ok := s.readUploadedImage(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	result, err := s.pipeline.ProcessImage(ctx, img)
	if err != nil {
		scanRequestsTotal.WithLabelValues("sync", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Scan processing failed: %v", err), http.StatusInternalServerError)
		return
	}
	recordScan("sync", result, time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ScanResponse{Success: true, Result: result}); err != nil {
		slog.Error("failed to encode scan response", "error", err)
	}
}

// submitHandler accepts a reviewed and corrected scan result from a client.
// The full validation rules run again over the edited values; the review
// flags themselves are cleared by the act of submission.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var result pipeline.ScanResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		s.writeErrorResponse(w, "Invalid scan result payload", http.StatusBadRequest)
		return
	}

	validation := result.Revalidate()
	rows := 0
	for _, t := range result.Tables {
		rows += len(t.Rows)
	}

	response := SubmitResponse{
		Accepted: validation.Valid,
		Rows:     rows,
		Errors:   validation.Errors,
		Warnings: validation.Warnings,
	}
	w.Header().Set("Content-Type", "application/json")
	if !response.Accepted {
		w.WriteHeader(http.StatusUnprocessableEntity)
	} else {
		slog.Info("scan submission accepted", "rows", rows, "tables", len(result.Tables))
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode submit response", "error", err)
	}
}

// readUploadedImage pulls the multipart "image" upload out of the request
// and decodes it. On failure it writes the error response itself.
func (s *Server) readUploadedImage(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	maxBytes := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxBytes {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, false
	}
	return img, true
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ScanResponse{Success: false, Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
