package ocr

import (
	"fmt"
	"regexp"
	"strings"
)

// Fragment is one OCR-recognized word with its bounding box in image pixel
// coordinates. X and Y are the top-left corner. Fragments are value types;
// once an OCR pass has produced them they are never mutated.
type Fragment struct {
	Text   string `json:"text"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CenterX returns the horizontal center of the fragment's bounding box.
func (f Fragment) CenterX() int { return f.X + f.Width/2 }

// CenterY returns the vertical center of the fragment's bounding box.
func (f Fragment) CenterY() int { return f.Y + f.Height/2 }

var numericRe = regexp.MustCompile(`^\d+$`)

// IsNumeric reports whether the fragment text is a bare unsigned integer.
func (f Fragment) IsNumeric() bool { return numericRe.MatchString(strings.TrimSpace(f.Text)) }

func (f Fragment) String() string {
	return fmt.Sprintf("'%s' at (%d,%d) [%dx%d]", f.Text, f.X, f.Y, f.Width, f.Height)
}

// Rescale divides the fragment coordinates by scale, mapping a fragment
// recognized on an upscaled image back into original-image pixel space.
// The transform must be a pure uniform scale; crops or padding would shift
// every fragment by an offset this cannot recover.
func (f Fragment) Rescale(scale float64) Fragment {
	if scale <= 0 || scale == 1.0 {
		return f
	}
	return Fragment{
		Text:   f.Text,
		X:      int(float64(f.X) / scale),
		Y:      int(float64(f.Y) / scale),
		Width:  int(float64(f.Width) / scale),
		Height: int(float64(f.Height) / scale),
	}
}

// FilterNumeric returns only the fragments whose text is a bare integer.
func FilterNumeric(frags []Fragment) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if f.IsNumeric() {
			out = append(out, f)
		}
	}
	return out
}
