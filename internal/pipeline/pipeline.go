// Package pipeline wires the scan stages together: OCR, table segmentation,
// row reconciliation, retry recovery and validation.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"github.com/instantwaste/formscan/internal/match"
	"github.com/instantwaste/formscan/internal/ocr"
	"github.com/instantwaste/formscan/internal/reconcile"
	"github.com/instantwaste/formscan/internal/recovery"
	"github.com/instantwaste/formscan/internal/segment"
	"github.com/instantwaste/formscan/internal/validate"
	"github.com/instantwaste/formscan/internal/vocab"
)

// Stage names reported through the progress callback, in order.
const (
	StageOCR       = "ocr"
	StageSegment   = "segment"
	StageReconcile = "reconcile"
	StageRecover   = "recover"
	StageValidate  = "validate"
	StageComplete  = "complete"
)

// ProgressFunc receives stage checkpoints while a scan runs. Implementations
// must be fast; the pipeline calls them inline.
type ProgressFunc func(stage string, percent int)

// Config carries the tunables for one pipeline instance.
type Config struct {
	Layout     segment.Layout
	Thresholds reconcile.Thresholds
	Recovery   recovery.Config
	VocabPath  string
}

// DefaultConfig returns the standard form settings.
func DefaultConfig() Config {
	return Config{
		Layout:     segment.DefaultLayout(),
		Thresholds: reconcile.DefaultThresholds(),
		Recovery:   recovery.DefaultConfig(),
	}
}

// Pipeline is a reusable scan processor. Safe for concurrent use once built.
type Pipeline struct {
	engine   ocr.Engine
	matcher  *match.Matcher
	vocab    *vocab.Vocabulary
	cfg      Config
	progress ProgressFunc
}

// Builder assembles a Pipeline step by step.
type Builder struct {
	engine   ocr.Engine
	vocab    *vocab.Vocabulary
	cfg      Config
	progress ProgressFunc
}

func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WithEngine injects the OCR engine. Without it Build falls back to the
// compiled-in default backend.
func (b *Builder) WithEngine(e ocr.Engine) *Builder {
	b.engine = e
	return b
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithVocabulary injects an already-loaded item vocabulary, overriding the
// config's VocabPath.
func (b *Builder) WithVocabulary(v *vocab.Vocabulary) *Builder {
	b.vocab = v
	return b
}

func (b *Builder) WithProgress(fn ProgressFunc) *Builder {
	b.progress = fn
	return b
}

func (b *Builder) Build() (*Pipeline, error) {
	engine := b.engine
	if engine == nil {
		var err error
		engine, err = ocr.NewEngine()
		if err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
	}
	v := b.vocab
	if v == nil {
		var err error
		v, err = vocab.Load(b.cfg.VocabPath)
		if err != nil {
			return nil, fmt.Errorf("build pipeline: load vocabulary: %w", err)
		}
	}
	return &Pipeline{
		engine:   engine,
		matcher:  match.NewMatcher(v),
		vocab:    v,
		cfg:      b.cfg,
		progress: b.progress,
	}, nil
}

// Vocabulary returns the loaded item vocabulary.
func (p *Pipeline) Vocabulary() *vocab.Vocabulary { return p.vocab }

// WithProgress returns a shallow copy of the pipeline that reports progress
// through fn. The copy shares the engine and matcher.
func (p *Pipeline) WithProgress(fn ProgressFunc) *Pipeline {
	clone := *p
	clone.progress = fn
	return &clone
}

// ProcessFile opens an image file and runs the full scan on it. Phone photos
// are auto-oriented from their EXIF data before processing.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*ScanResult, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return p.ProcessImage(ctx, img)
}

// ProcessImage runs the full scan: OCR, segmentation, reconciliation, retry
// recovery and validation. The returned result is complete even when the
// validation carries errors; callers decide what an invalid scan means.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (*ScanResult, error) {
	start := time.Now()

	p.report(StageOCR, 10)
	fragments, err := p.engine.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	slog.Debug("ocr complete", "fragments", len(fragments))

	p.report(StageSegment, 35)
	tables := segment.Segment(fragments, p.cfg.Layout)
	if len(tables) == 0 {
		slog.Warn("no tables detected in image")
	}

	p.report(StageReconcile, 55)
	rec := reconcile.New(p.matcher, p.cfg.Thresholds)
	results := make([]*recovery.TableRows, 0, len(tables))
	for _, t := range tables {
		results = append(results, &recovery.TableRows{Table: t, Rows: rec.Reconcile(t)})
	}

	p.report(StageRecover, 75)
	orch := recovery.New(p.engine, p.matcher, p.cfg.Recovery)
	recovered := orch.Recover(ctx, img, results)

	p.report(StageValidate, 90)
	validation := validate.Check(results)

	wireTables := toWire(results)
	total, review, empty := tallyFields(wireTables)
	result := &ScanResult{
		TotalFields:         total,
		FieldsNeedingReview: review,
		EmptyFields:         empty,
		Tables:              wireTables,
		Review:              buildReview(wireTables),
		Validation:          validation,
		RecoveredCells:      recovered,
		DurationMillis:      time.Since(start).Milliseconds(),
	}

	p.report(StageComplete, 100)
	slog.Info("scan complete", "summary", result.Summary(), "duration", time.Since(start))
	return result, nil
}

func (p *Pipeline) report(stage string, percent int) {
	if p.progress != nil {
		p.progress(stage, percent)
	}
}
