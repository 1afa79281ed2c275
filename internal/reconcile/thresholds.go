package reconcile

// Thresholds tune how far a numeric fragment may sit from its targets before
// the attachment is refused or flagged. All distances are pixels in the
// original image's coordinate space.
type Thresholds struct {
	// ColumnCeiling bounds the horizontal distance to the nearest quantity
	// header; fragments farther than this from every header are not
	// assigned to any column.
	ColumnCeiling int

	// RejectCeiling bounds the vertical distance to the nearest row
	// anchor; beyond it the fragment is dropped as stray ink.
	RejectCeiling int

	// ReviewThreshold is the vertical anchor distance past which a fill
	// is accepted but flagged for manual review.
	ReviewThreshold int
}

// DefaultThresholds are the first-pass values, tuned for clean scans.
func DefaultThresholds() Thresholds {
	return Thresholds{ColumnCeiling: 200, RejectCeiling: 110, ReviewThreshold: 65}
}

// MaskedPassThresholds loosen the reject ceiling for the second pass, which
// re-reads a masked and upscaled image and so sees slightly displaced boxes.
func MaskedPassThresholds() Thresholds {
	return Thresholds{ColumnCeiling: 150, RejectCeiling: 120, ReviewThreshold: 65}
}

// CellPassThresholds are the tightest set, for the third pass over isolated
// cell regions where anything far from an anchor is noise.
func CellPassThresholds() Thresholds {
	return Thresholds{ColumnCeiling: 150, RejectCeiling: 80, ReviewThreshold: 50}
}
