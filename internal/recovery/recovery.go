// Package recovery runs the retry passes that fill cells the first OCR read
// missed: a masked re-read over the quantity columns, and an optional third
// pass over isolated cell boxes.
package recovery

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/instantwaste/formscan/internal/enhance"
	"github.com/instantwaste/formscan/internal/match"
	"github.com/instantwaste/formscan/internal/ocr"
	"github.com/instantwaste/formscan/internal/reconcile"
	"github.com/instantwaste/formscan/internal/segment"
)

// TableRows pairs a segmented table with its reconciled rows.
type TableRows struct {
	Table *segment.Table
	Rows  []*reconcile.Row
}

// Config controls the retry passes.
type Config struct {
	// MaskedPassScale is the upscale factor for the second pass.
	MaskedPassScale float64

	// CellPassScale is the upscale factor for the third pass.
	CellPassScale float64

	// EnableCellPass switches the per-cell third pass on. It roughly
	// doubles processing time, so it stays off unless asked for.
	EnableCellPass bool

	// SharpenOnly skips the column masking on the second pass and
	// re-reads the whole sharpened page. Useful when the masking crops
	// too aggressively on skewed photos.
	SharpenOnly bool
}

// DefaultConfig returns the production retry settings.
func DefaultConfig() Config {
	return Config{
		MaskedPassScale: 2.0,
		CellPassScale:   2.5,
		EnableCellPass:  false,
	}
}

// Orchestrator drives the retry passes against a single OCR engine. Retry
// failures never fail the scan; whatever the first pass produced stands.
type Orchestrator struct {
	engine  ocr.Engine
	matcher *match.Matcher
	cfg     Config
}

func New(engine ocr.Engine, matcher *match.Matcher, cfg Config) *Orchestrator {
	return &Orchestrator{engine: engine, matcher: matcher, cfg: cfg}
}

// Recover fills empty cells in place. It returns the total number of cells
// recovered across all passes.
func (o *Orchestrator) Recover(ctx context.Context, img image.Image, results []*TableRows) int {
	if !hasEmptyCells(results) {
		return 0
	}
	filled := o.maskedPass(ctx, img, results)
	if o.cfg.EnableCellPass && hasEmptyCells(results) {
		filled += o.cellPass(ctx, img, results)
	}
	return filled
}

// maskedPass whites out everything but the quantity columns (or, with
// SharpenOnly, keeps the whole page), upscales the result and re-reads it,
// attaching recovered numbers under the looser masked-pass thresholds.
func (o *Orchestrator) maskedPass(ctx context.Context, img image.Image, results []*TableRows) int {
	tables := make([]*segment.Table, len(results))
	for i, tr := range results {
		tables[i] = tr.Table
	}
	masked := img
	if !o.cfg.SharpenOnly {
		regions := enhance.QuantityRegions(tables, img.Bounds())
		if len(regions) == 0 {
			return 0
		}
		masked = enhance.MaskKeepRegions(img, regions)
	}
	masked = enhance.Upscale(masked, o.cfg.MaskedPassScale)
	masked = enhance.Sharpen(masked)

	fragments, err := o.engine.Recognize(ctx, masked)
	if err != nil {
		slog.Warn("masked retry pass failed", "error", err)
		return 0
	}
	numbers := numericAtScale(fragments, o.cfg.MaskedPassScale)

	rec := reconcile.New(o.matcher, reconcile.MaskedPassThresholds())
	filled := 0
	for _, tr := range results {
		filled += rec.AttachValues(tr.Table, tr.Rows, numbers, autoFilledIssue)
	}
	if filled > 0 {
		slog.Info("masked pass recovered cells", "count", filled)
	}
	return filled
}

// cellPass isolates each still-empty table's expected cell boxes and reads
// them at the highest upscale, with the tightest thresholds.
func (o *Orchestrator) cellPass(ctx context.Context, img image.Image, results []*TableRows) int {
	rec := reconcile.New(o.matcher, reconcile.CellPassThresholds())
	filled := 0
	for _, tr := range results {
		if !tableHasEmptyCells(tr) {
			continue
		}
		anchors := make([]int, len(tr.Rows))
		for i, row := range tr.Rows {
			anchors[i] = row.AnchorY
		}
		regions := enhance.CellRegions(tr.Table, anchors)
		if len(regions) == 0 {
			continue
		}

		masked := enhance.MaskKeepRegions(img, regions)
		masked = enhance.Upscale(masked, o.cfg.CellPassScale)
		masked = enhance.PrepareRetry(masked)

		fragments, err := o.engine.Recognize(ctx, masked)
		if err != nil {
			slog.Warn("cell retry pass failed", "table", tr.Table.Name, "error", err)
			continue
		}
		numbers := numericAtScale(fragments, o.cfg.CellPassScale)
		filled += rec.AttachValues(tr.Table, tr.Rows, numbers, autoFilledIssue)
	}
	if filled > 0 {
		slog.Info("cell pass recovered cells", "count", filled)
	}
	return filled
}

func autoFilledIssue(dist int) string {
	return fmt.Sprintf("Auto-filled (distance: %dpx)", dist)
}

// numericAtScale maps retry-pass fragments back to the original coordinate
// space and keeps only values that are, or correct to, plain numbers.
func numericAtScale(fragments []ocr.Fragment, scale float64) []ocr.Fragment {
	var out []ocr.Fragment
	for _, f := range fragments {
		f = f.Rescale(scale)
		if f.IsNumeric() {
			out = append(out, f)
			continue
		}
		if corrected, ok := reconcile.CorrectMisreads(f.Text); ok {
			f.Text = corrected
			out = append(out, f)
		}
	}
	return out
}

func hasEmptyCells(results []*TableRows) bool {
	for _, tr := range results {
		if tableHasEmptyCells(tr) {
			return true
		}
	}
	return false
}

// tableHasEmptyCells reports whether any quantity cell of any row is still
// unfilled.
func tableHasEmptyCells(tr *TableRows) bool {
	for _, row := range tr.Rows {
		for name, field := range row.Fields {
			if name == segment.ColumnSize {
				continue
			}
			if field.Empty() {
				return true
			}
		}
	}
	return false
}
