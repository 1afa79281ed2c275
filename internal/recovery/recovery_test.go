package recovery

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantwaste/formscan/internal/match"
	"github.com/instantwaste/formscan/internal/ocr"
	"github.com/instantwaste/formscan/internal/reconcile"
	"github.com/instantwaste/formscan/internal/segment"
	"github.com/instantwaste/formscan/internal/vocab"
)

func testMatcher(t *testing.T) *match.Matcher {
	t.Helper()
	v, err := vocab.Load("")
	require.NoError(t, err)
	return match.NewMatcher(v)
}

// oneRowResult builds a five-column table with a single anchored row and no
// values, the shape a first pass leaves behind on a faint scan.
func oneRowResult(t *testing.T, m *match.Matcher) []*TableRows {
	t.Helper()
	frags := []ocr.Fragment{
		{Text: "ITEM", X: 1100, Y: 100, Width: 60, Height: 20},
		{Text: "SIZE", X: 1300, Y: 100, Width: 60, Height: 20},
		{Text: "OPEN", X: 1450, Y: 100, Width: 60, Height: 20},
		{Text: "SWING", X: 1600, Y: 100, Width: 60, Height: 20},
		{Text: "CLOSE", X: 1750, Y: 100, Width: 60, Height: 20},
		{Text: "Biscuit", X: 1100, Y: 200, Width: 80, Height: 20},
	}
	tables := segment.Segment(frags, segment.DefaultLayout())
	require.Len(t, tables, 1)

	rec := reconcile.New(m, reconcile.DefaultThresholds())
	rows := rec.Reconcile(tables[0])
	require.Len(t, rows, 1)
	return []*TableRows{{Table: tables[0], Rows: rows}}
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 2000, 600))
}

func TestRecover_MaskedPassFillsEmptyCell(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	calls := 0
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		calls++
		// Coordinates in the 2x upscaled space; they map back to the
		// OPEN column on the anchor's own line.
		return []ocr.Fragment{{Text: "6", X: 2920, Y: 400, Width: 40, Height: 20}}, nil
	})

	o := New(engine, m, DefaultConfig())
	filled := o.Recover(context.Background(), testImage(), results)
	assert.Equal(t, 1, filled)
	assert.Equal(t, 1, calls)

	field := results[0].Rows[0].Field(segment.ColumnOpen)
	require.NotNil(t, field)
	assert.Equal(t, "6", field.Value)
	assert.False(t, field.NeedsReview)
	assert.Empty(t, field.Issue)
}

func TestRecover_DistantFillCarriesAnnotation(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		// Maps back to the OPEN column 70px below the anchor, past the
		// review threshold but inside the reject ceiling.
		return []ocr.Fragment{{Text: "6", X: 2920, Y: 550, Width: 40, Height: 20}}, nil
	})

	o := New(engine, m, DefaultConfig())
	filled := o.Recover(context.Background(), testImage(), results)
	assert.Equal(t, 1, filled)

	field := results[0].Rows[0].Field(segment.ColumnOpen)
	assert.Equal(t, "6", field.Value)
	assert.True(t, field.NeedsReview)
	assert.Equal(t, "Auto-filled (distance: 70px)", field.Issue)
}

func TestRecover_MisreadCorrectedInRetry(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		return []ocr.Fragment{{Text: "S", X: 2920, Y: 400, Width: 40, Height: 20}}, nil
	})

	o := New(engine, m, DefaultConfig())
	filled := o.Recover(context.Background(), testImage(), results)
	assert.Equal(t, 1, filled)
	assert.Equal(t, "5", results[0].Rows[0].Field(segment.ColumnOpen).Value)
}

func TestRecover_SkipsWhenNoEmptyCells(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)
	for _, name := range []segment.ColumnName{segment.ColumnOpen, segment.ColumnSwing, segment.ColumnClose} {
		results[0].Rows[0].Field(name).FillIfEmpty("1", false, "")
	}

	calls := 0
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		calls++
		return nil, nil
	})

	o := New(engine, m, DefaultConfig())
	filled := o.Recover(context.Background(), testImage(), results)
	assert.Zero(t, filled)
	assert.Zero(t, calls, "no retry read when every cell is filled")
}

func TestRecover_EngineErrorLeavesResultsIntact(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		return nil, errors.New("engine crashed")
	})

	o := New(engine, m, DefaultConfig())
	filled := o.Recover(context.Background(), testImage(), results)
	assert.Zero(t, filled)
	assert.True(t, results[0].Rows[0].Field(segment.ColumnOpen).Empty())
}

func TestRecover_CellPassRunsAfterMaskedPass(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	calls := 0
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		calls++
		if calls == 1 {
			// Masked pass finds nothing.
			return nil, nil
		}
		// Cell pass coordinates in the 2.5x upscaled space; they map
		// back to the swing column on the anchor's row.
		return []ocr.Fragment{{Text: "7", X: 4025, Y: 500, Width: 75, Height: 50}}, nil
	})

	cfg := DefaultConfig()
	cfg.EnableCellPass = true
	o := New(engine, m, cfg)

	filled := o.Recover(context.Background(), testImage(), results)
	assert.Equal(t, 1, filled)
	assert.Equal(t, 2, calls)

	field := results[0].Rows[0].Field(segment.ColumnSwing)
	assert.Equal(t, "7", field.Value)
	assert.False(t, field.NeedsReview)
	assert.Empty(t, field.Issue)
}

func TestRecover_SharpenOnlySkipsMasking(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	var seen image.Image
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		seen = img
		return []ocr.Fragment{{Text: "6", X: 2920, Y: 400, Width: 40, Height: 20}}, nil
	})

	cfg := DefaultConfig()
	cfg.SharpenOnly = true
	o := New(engine, m, cfg)

	filled := o.Recover(context.Background(), testImage(), results)
	assert.Equal(t, 1, filled)
	assert.Equal(t, "6", results[0].Rows[0].Field(segment.ColumnOpen).Value)

	require.NotNil(t, seen)
	// The page corner lies outside every quantity column. Masking would
	// have painted it white; the sharpen-only retry keeps it dark.
	r, _, _, _ := seen.At(10, 10).RGBA()
	assert.Less(t, r>>8, uint32(128))
}

func TestRecover_CellPassDisabledByDefault(t *testing.T) {
	m := testMatcher(t)
	results := oneRowResult(t, m)

	calls := 0
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		calls++
		return nil, nil
	})

	o := New(engine, m, DefaultConfig())
	o.Recover(context.Background(), testImage(), results)
	assert.Equal(t, 1, calls, "only the masked pass runs by default")
}
