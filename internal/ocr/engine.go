// Package ocr defines the text-acquisition boundary of the pipeline: an
// Engine turns an image into positioned text fragments. The engine itself is
// an external collaborator; this package only carries the contract plus an
// optional Tesseract-backed implementation behind the ocr_tesseract build tag.
package ocr

import (
	"context"
	"image"
)

// Engine performs one OCR pass over an image.
//
// Recognize may fail with transport or quota errors; callers decide whether a
// failed pass is fatal (the first pass) or merely skipped (recovery passes).
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]Fragment, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img image.Image) ([]Fragment, error)

func (fn EngineFunc) Recognize(ctx context.Context, img image.Image) ([]Fragment, error) {
	return fn(ctx, img)
}

// NewEngine returns the default engine backend. Which backend is linked in is
// decided at build time; see gosseract_backend.go and no_backend.go.
func NewEngine() (Engine, error) { return newDefaultEngine() }
