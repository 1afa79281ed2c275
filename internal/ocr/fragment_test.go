package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFragment_Centers(t *testing.T) {
	f := Fragment{Text: "12", X: 100, Y: 200, Width: 40, Height: 20}
	assert.Equal(t, 120, f.CenterX())
	assert.Equal(t, 210, f.CenterY())
}

func TestFragment_IsNumeric(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain integer", "42", true},
		{"zero", "0", true},
		{"padded", " 7 ", true},
		{"word", "Bacon", false},
		{"mixed", "4a", false},
		{"negative", "-3", false},
		{"decimal", "1.5", false},
		{"ratio", "10:1", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Fragment{Text: tt.text}
			assert.Equal(t, tt.want, f.IsNumeric())
		})
	}
}

func TestFragment_Rescale(t *testing.T) {
	f := Fragment{Text: "5", X: 200, Y: 400, Width: 60, Height: 30}

	scaled := f.Rescale(2.0)
	assert.Equal(t, Fragment{Text: "5", X: 100, Y: 200, Width: 30, Height: 15}, scaled)

	// Identity and nonsense scales leave the fragment untouched.
	assert.Equal(t, f, f.Rescale(1.0))
	assert.Equal(t, f, f.Rescale(0))
	assert.Equal(t, f, f.Rescale(-2))
}

func TestFragment_RescaleRoundTrip(t *testing.T) {
	// Upscaling coordinates and mapping them back must land within a pixel.
	for _, scale := range []float64{2.0, 2.5, 3.0} {
		f := Fragment{Text: "9", X: 123, Y: 457, Width: 31, Height: 17}
		up := Fragment{
			Text:   f.Text,
			X:      int(float64(f.X) * scale),
			Y:      int(float64(f.Y) * scale),
			Width:  int(float64(f.Width) * scale),
			Height: int(float64(f.Height) * scale),
		}
		back := up.Rescale(scale)
		assert.InDelta(t, f.X, back.X, 1)
		assert.InDelta(t, f.Y, back.Y, 1)
	}
}

func TestFilterNumeric(t *testing.T) {
	frags := []Fragment{
		{Text: "12"},
		{Text: "Bacon"},
		{Text: "3"},
		{Text: "10:1"},
	}
	got := FilterNumeric(frags)
	assert.Len(t, got, 2)
	assert.Equal(t, "12", got[0].Text)
	assert.Equal(t, "3", got[1].Text)
}
