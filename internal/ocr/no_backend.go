//go:build !ocr_tesseract

package ocr

import "errors"

// ErrNoBackend is returned when no OCR backend was linked into the binary.
var ErrNoBackend = errors.New("ocr: no engine backend linked; build with -tags=ocr_tesseract or inject an Engine")

func newDefaultEngine() (Engine, error) { return nil, ErrNoBackend }
