// Package batch scans many form images through one pipeline with a worker
// pool, for end-of-week catch-up runs over a folder of phone photos.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/instantwaste/formscan/internal/pipeline"
)

// Config controls a batch run.
type Config struct {
	// Workers is the number of images scanned concurrently. Zero means one
	// worker per CPU.
	Workers int

	// Recursive expands directory arguments into their whole subtree.
	Recursive bool

	// IncludePatterns and ExcludePatterns filter discovered files by base
	// name glob. Excludes win.
	IncludePatterns []string
	ExcludePatterns []string
}

// DefaultConfig returns the standard batch settings.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU()}
}

// FileResult is the outcome for one image. Exactly one of Result and Err is
// set; a failed file never aborts the rest of the batch.
type FileResult struct {
	Path   string               `json:"path"`
	Result *pipeline.ScanResult `json:"result,omitempty"`
	Err    string               `json:"error,omitempty"`
}

// Result is the outcome of a whole batch run.
type Result struct {
	Files    []FileResult  `json:"files"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"-"`
}

// Summary renders a one-line description of the run for logs and CLI output.
func (r *Result) Summary() string {
	return fmt.Sprintf("scanned %d files (%d failed) in %s",
		len(r.Files), r.Failed, r.Duration.Round(time.Millisecond))
}

type job struct {
	index int
	path  string
}

// Process discovers the form images behind paths and scans them all. Results
// come back in discovery order regardless of which worker finished first.
func Process(ctx context.Context, pl *pipeline.Pipeline, paths []string, cfg Config) (*Result, error) {
	files, err := Discover(paths, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("discover form images: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no form images found")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	start := time.Now()
	results := make([]FileResult, len(files))
	jobs := make(chan job)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = scanOne(ctx, pl, j.path)
			}
		}()
	}

	for i, path := range files {
		select {
		case jobs <- job{index: i, path: path}:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	out := &Result{Files: results, Duration: time.Since(start)}
	for _, fr := range results {
		if fr.Err != "" {
			out.Failed++
		}
	}
	slog.Info("batch scan complete", "files", len(files), "failed", out.Failed, "workers", workers)
	return out, nil
}

func scanOne(ctx context.Context, pl *pipeline.Pipeline, path string) FileResult {
	res, err := pl.ProcessFile(ctx, path)
	if err != nil {
		slog.Warn("batch file failed", "path", path, "error", err)
		return FileResult{Path: path, Err: err.Error()}
	}
	return FileResult{Path: path, Result: res}
}
