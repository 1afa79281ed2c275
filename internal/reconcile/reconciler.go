package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/instantwaste/formscan/internal/match"
	"github.com/instantwaste/formscan/internal/ocr"
	"github.com/instantwaste/formscan/internal/segment"
	"github.com/instantwaste/formscan/internal/vocab"
)

// Fragments within this distance of the running cluster average belong to
// the same row band.
const rowBandHeight = 25

// subHeaderTokens are the printed section labels and size markers that appear
// inside the item column. They must never anchor a row.
var subHeaderTokens = map[string]struct{}{
	"4:1": {}, "10:1": {}, "3:1": {},
	"reg": {}, "lbs": {}, "oz": {}, "ea": {}, "ct": {},
	"each": {}, "bag": {}, "box": {},
	"buns": {}, "sauces": {}, "breakfast bread": {}, "meat and chicken": {},
	"salad and toppings": {}, "prep table": {}, "potato product": {},
	"eggs": {}, "cheeses": {}, "seasonings": {}, "breakfast meat": {},
	"shake and sundae": {}, "miscellaneous": {}, "smoothie machine": {},
	"breakfast sauces": {}, "mccafe and coffee": {}, "pop": {},
	"potato": {}, "meat": {}, "breakfast": {}, "bread": {},
}

// Reconciler builds rows for one table category using a shared item matcher
// and a threshold set for the current recovery pass.
type Reconciler struct {
	matcher    *match.Matcher
	thresholds Thresholds
}

func New(m *match.Matcher, th Thresholds) *Reconciler {
	return &Reconciler{matcher: m, thresholds: th}
}

// Reconcile assembles the table's rows. Text fragments near the ITEM column
// that match the vocabulary become row anchors; every numeric fragment is
// then routed to the nearest anchor's nearest quantity column, subject to
// the reconciler's thresholds. Rows come back sorted top to bottom.
func (r *Reconciler) Reconcile(t *segment.Table) []*Row {
	category := vocab.RawWaste
	if t.IsCompletedWaste() {
		category = vocab.CompletedWaste
	}

	var texts, numbers []ocr.Fragment
	for _, f := range t.Data {
		if f.IsNumeric() {
			numbers = append(numbers, f)
			continue
		}
		if corrected, ok := CorrectMisreads(f.Text); ok {
			f.Text = corrected
			numbers = append(numbers, f)
			continue
		}
		texts = append(texts, f)
	}

	rows := r.discoverAnchors(t, texts, category)
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AnchorY < rows[j].AnchorY })

	r.attachSizes(t, rows, texts)
	r.attachValues(t, rows, numbers)
	return rows
}

// AttachValues routes the given numeric fragments into existing rows without
// re-anchoring. Recovery passes use it to fill cells the first pass missed;
// a non-nil issuef replaces the standard issue text on fills far enough from
// their anchor to need review.
func (r *Reconciler) AttachValues(t *segment.Table, rows []*Row, numbers []ocr.Fragment, issuef func(dist int) string) int {
	filled := 0
	for _, f := range numbers {
		if r.attachOne(t, rows, f, issuef) {
			filled++
		}
	}
	return filled
}

// discoverAnchors clusters text fragments into row bands, joins each band
// left to right and matches the joined text against the item vocabulary. A
// fragment joins the current band while its y stays within 25px of the band's
// running average, so a multi-word name with slight baseline drift still
// forms one cluster. Only fragments inside the ITEM column may anchor.
func (r *Reconciler) discoverAnchors(t *segment.Table, texts []ocr.Fragment, category vocab.Category) []*Row {
	itemCol, hasItemCol := t.Columns[segment.ColumnItem]

	var candidates []ocr.Fragment
	for _, f := range texts {
		if hasItemCol && !itemCol.Contains(f.CenterX()) {
			continue
		}
		candidates = append(candidates, f)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Y < candidates[j].Y })

	columns := rowColumns(t)
	var rows []*Row
	var cluster []ocr.Fragment
	sumY := 0
	flush := func() {
		if len(cluster) == 0 {
			return
		}
		if row := r.clusterToRow(cluster, category, columns); row != nil {
			rows = append(rows, row)
		}
		cluster = nil
		sumY = 0
	}
	for _, f := range candidates {
		if len(cluster) > 0 && absInt(f.Y-sumY/len(cluster)) > rowBandHeight {
			flush()
		}
		cluster = append(cluster, f)
		sumY += f.Y
	}
	flush()
	return rows
}

func (r *Reconciler) clusterToRow(cluster []ocr.Fragment, category vocab.Category, columns []segment.ColumnName) *Row {
	sorted := make([]ocr.Fragment, len(cluster))
	copy(sorted, cluster)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	parts := make([]string, len(sorted))
	sumY := 0
	for i, f := range sorted {
		parts[i] = f.Text
		sumY += f.CenterY()
	}
	joined := strings.TrimSpace(strings.Join(parts, " "))
	if _, sub := subHeaderTokens[strings.ToLower(joined)]; sub {
		return nil
	}

	name, ok := r.matcher.Match(joined, category)
	if !ok {
		slog.Debug("unmatched item text", "text", joined)
		return nil
	}
	return newRow(name, sumY/len(sorted), columns)
}

// rowColumns lists the value-bearing columns a row of this table carries.
func rowColumns(t *segment.Table) []segment.ColumnName {
	var cols []segment.ColumnName
	for name := range t.Columns {
		if name == segment.ColumnItem {
			continue
		}
		cols = append(cols, name)
	}
	if len(cols) == 0 {
		// Headers beyond ITEM went undetected; fall back to the full
		// column set for the table type.
		for _, name := range segment.QuantityColumns {
			cols = append(cols, name)
		}
		cols = append(cols, segment.ColumnSize)
	}
	return cols
}

// attachSizes fills SIZE cells from text fragments inside the SIZE column.
// Each row takes at most one size; later fragments never overwrite.
func (r *Reconciler) attachSizes(t *segment.Table, rows []*Row, texts []ocr.Fragment) {
	sizeCol, ok := t.Columns[segment.ColumnSize]
	if !ok {
		return
	}
	for _, f := range texts {
		if !sizeCol.Contains(f.CenterX()) {
			continue
		}
		row := closestRow(rows, f.CenterY())
		if row == nil || absInt(f.CenterY()-row.AnchorY) > r.thresholds.RejectCeiling {
			continue
		}
		if field := row.Field(segment.ColumnSize); field != nil {
			field.FillIfEmpty(f.Text, false, "")
		}
	}
}

func (r *Reconciler) attachValues(t *segment.Table, rows []*Row, numbers []ocr.Fragment) {
	for _, f := range numbers {
		r.attachOne(t, rows, f, nil)
	}
}

// attachOne places a single numeric fragment. The column comes from header
// proximity on x; the row is the anchor nearest on y, with no search window.
// The fill is then gated on the anchor distance: beyond the reject ceiling
// the fragment is dropped, beyond the review threshold it fills flagged.
// Completed-waste tables take counts from the right half only; the left half
// is item-name territory and numbers there are stray marks. Returns whether
// a cell was filled.
func (r *Reconciler) attachOne(t *segment.Table, rows []*Row, f ocr.Fragment, issuef func(dist int) string) bool {
	cx := f.CenterX()

	var col segment.ColumnName
	if t.IsCompletedWaste() {
		if cx <= t.Midpoint() {
			return false
		}
		col = segment.ColumnCount
	} else {
		var headerDist int
		col, headerDist = t.ClosestQuantityColumn(cx)
		if col == "" || headerDist > r.thresholds.ColumnCeiling {
			return false
		}
	}

	row := closestRow(rows, f.CenterY())
	if row == nil {
		return false
	}
	dist := absInt(f.CenterY() - row.AnchorY)
	if dist > r.thresholds.RejectCeiling {
		slog.Debug("value rejected by anchor distance", "text", f.Text, "column", col, "distance", dist)
		return false
	}
	field := row.Field(col)
	if field == nil {
		return false
	}

	needsReview := dist > r.thresholds.ReviewThreshold
	fieldIssue := ""
	if needsReview {
		if issuef != nil {
			fieldIssue = issuef(dist)
		} else {
			fieldIssue = fmt.Sprintf("Distance: %dpx", dist)
		}
	}
	return field.FillIfEmpty(f.Text, needsReview, fieldIssue)
}

// closestRow returns the row whose anchor is vertically nearest to y. The
// nearest anchor always wins; distance gating happens at the fill.
func closestRow(rows []*Row, y int) *Row {
	var best *Row
	bestDist := 0
	for _, row := range rows {
		if d := absInt(y - row.AnchorY); best == nil || d < bestDist {
			best = row
			bestDist = d
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
