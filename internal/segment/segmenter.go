package segment

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/instantwaste/formscan/internal/ocr"
)

const (
	// tablePadding widens a table's bounds past its outermost headers so
	// handwriting that drifts outside the header span is still captured.
	tablePadding = 50

	// Column ranges narrower than these are widened to the floor; crowded
	// headers otherwise produce slivers that no handwriting can land in.
	minColumnWidth5Col = 80
	minColumnWidth3Col = 100

	// The last column extends past its header by a fixed margin rather
	// than to the padded table edge, which would swallow the neighbour's
	// left rows.
	closeColumnMargin = 100
	countColumnMargin = 80
)

var headerVocabulary = map[ColumnName]struct{}{
	ColumnItem:  {},
	ColumnSize:  {},
	ColumnOpen:  {},
	ColumnSwing: {},
	ColumnClose: {},
	ColumnCount: {},
}

// IsHeader reports whether the fragment's text is one of the known column
// headers, ignoring case and surrounding whitespace.
func IsHeader(f ocr.Fragment) bool {
	_, ok := headerVocabulary[ColumnName(strings.ToUpper(strings.TrimSpace(f.Text)))]
	return ok
}

func headerName(f ocr.Fragment) ColumnName {
	return ColumnName(strings.ToUpper(strings.TrimSpace(f.Text)))
}

// Segment reconstructs the form's tables from raw OCR fragments. Header
// fragments are clustered into tables, each table is classified and given
// column boundaries, and every remaining fragment is assigned to the table
// whose x-range contains it.
func Segment(fragments []ocr.Fragment, layout Layout) []*Table {
	var headers, data []ocr.Fragment
	for _, f := range fragments {
		if IsHeader(f) {
			headers = append(headers, f)
		} else {
			data = append(data, f)
		}
	}
	if len(headers) == 0 {
		return nil
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].X < headers[j].X })

	clusters := clusterHeaders(headers)
	if len(clusters) < layout.ExpectedTables() {
		clusters = repairClusters(clusters)
	}

	tables := make([]*Table, 0, len(clusters))
	for i, c := range clusters {
		tables = append(tables, buildTable(i, c, layout))
	}
	resolveOverlaps(tables)

	dropped := assignData(tables, data)
	if dropped > 0 {
		slog.Debug("fragments outside every table", "count", dropped)
	}
	return tables
}

// clusterHeaders walks the x-sorted headers and starts a new cluster at each
// ITEM header, the leftmost column of every table.
func clusterHeaders(headers []ocr.Fragment) [][]ocr.Fragment {
	var clusters [][]ocr.Fragment
	var current []ocr.Fragment
	for _, h := range headers {
		if headerName(h) == ColumnItem && len(current) > 0 {
			clusters = append(clusters, current)
			current = nil
		}
		current = append(current, h)
	}
	if len(current) > 0 {
		clusters = append(clusters, current)
	}
	return clusters
}

// repairClusters splits clusters that the ITEM rule failed to separate, which
// happens when OCR misses an ITEM header and two tables' remaining headers
// merge. A new sub-cluster starts wherever a column name repeats, since no
// single table carries the same header twice.
func repairClusters(clusters [][]ocr.Fragment) [][]ocr.Fragment {
	var out [][]ocr.Fragment
	for _, c := range clusters {
		seen := map[ColumnName]struct{}{}
		var current []ocr.Fragment
		for _, h := range c {
			name := headerName(h)
			if _, dup := seen[name]; dup {
				out = append(out, current)
				current = nil
				seen = map[ColumnName]struct{}{}
			}
			current = append(current, h)
			seen[name] = struct{}{}
		}
		if len(current) > 0 {
			out = append(out, current)
		}
	}
	return out
}

func buildTable(index int, cluster []ocr.Fragment, layout Layout) *Table {
	xMin := cluster[0].X
	xMax := cluster[0].X + cluster[0].Width
	yMin := cluster[0].Y
	for _, h := range cluster[1:] {
		if h.X < xMin {
			xMin = h.X
		}
		if end := h.X + h.Width; end > xMax {
			xMax = end
		}
		if h.Y < yMin {
			yMin = h.Y
		}
	}

	t := &Table{
		XStart:  xMin - tablePadding,
		XEnd:    xMax + tablePadding,
		YStart:  yMin,
		Headers: cluster,
		Columns: map[ColumnName]ColumnBoundary{},
	}
	t.Type = classify(t, index, layout)
	t.Name = fmt.Sprintf("Table_%d_%s", index+1, t.Type)

	// Anchor the right edge to the final quantity header instead of the
	// padded header span; the padded edge routinely reaches into the next
	// table's ITEM column.
	switch t.Type {
	case RawWaste5Col:
		if b, ok := headerFor(cluster, ColumnClose); ok {
			t.XEnd = b.X + closeColumnMargin
		}
	case RawWaste3Col, CompletedWaste2Col:
		if b, ok := headerFor(cluster, ColumnCount); ok {
			t.XEnd = b.X + countColumnMargin
		}
	}

	t.computeColumnBoundaries()
	return t
}

func headerFor(cluster []ocr.Fragment, name ColumnName) (ocr.Fragment, bool) {
	for _, h := range cluster {
		if headerName(h) == name {
			return h, true
		}
	}
	return ocr.Fragment{}, false
}

// classify determines the table type from the headers actually detected: the
// full OPEN/SWING/CLOSE triple makes a five-column table, SIZE and COUNT
// without any day-part header make a three-column table, and a lone ITEM
// header is a completed-waste table. Ambiguous header sets fall back to the
// layout's expectation for this position.
func classify(t *Table, index int, layout Layout) TableType {
	has := map[ColumnName]bool{}
	for _, h := range t.Headers {
		has[headerName(h)] = true
	}
	dayPart := has[ColumnOpen] || has[ColumnSwing] || has[ColumnClose]
	switch {
	case has[ColumnOpen] && has[ColumnSwing] && has[ColumnClose]:
		return RawWaste5Col
	case has[ColumnSize] && has[ColumnCount] && !dayPart:
		return RawWaste3Col
	case len(has) == 1 && has[ColumnItem]:
		return CompletedWaste2Col
	}
	if index < len(layout.Tables) {
		return layout.Tables[index]
	}
	return TypeUnknown
}

// computeColumnBoundaries partitions [XStart, XEnd] into one half-open range
// per detected header. Adjacent ranges share their endpoint, so every x in
// the table belongs to exactly one column. Must be re-run after any change
// to the table bounds.
func (t *Table) computeColumnBoundaries() {
	sorted := make([]ocr.Fragment, len(t.Headers))
	copy(sorted, t.Headers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	minWidth := 0
	switch t.Type {
	case RawWaste5Col:
		minWidth = minColumnWidth5Col
	case RawWaste3Col:
		minWidth = minColumnWidth3Col
	}

	t.Columns = make(map[ColumnName]ColumnBoundary, len(sorted))
	prev := t.XStart
	for i, h := range sorted {
		var end int
		if i == len(sorted)-1 {
			end = t.XEnd
		} else {
			end = (h.X + h.Width + sorted[i+1].X) / 2
			if end < prev+minWidth {
				end = prev + minWidth
			}
			if end > t.XEnd {
				end = t.XEnd
			}
		}
		if end < prev {
			end = prev
		}
		t.Columns[headerName(h)] = ColumnBoundary{
			Name:    headerName(h),
			HeaderX: h.X,
			XStart:  prev,
			XEnd:    end,
		}
		prev = end
	}
}

// resolveOverlaps trims adjacent tables that the padding made overlap,
// cutting at the midpoint between the facing headers and recomputing both
// tables' column boundaries.
func resolveOverlaps(tables []*Table) {
	sort.Slice(tables, func(i, j int) bool { return tables[i].XStart < tables[j].XStart })
	for i := 0; i < len(tables)-1; i++ {
		left, right := tables[i], tables[i+1]
		if left.XEnd <= right.XStart {
			continue
		}
		leftEdge := 0
		for _, h := range left.Headers {
			if end := h.X + h.Width; end > leftEdge {
				leftEdge = end
			}
		}
		rightEdge := right.Headers[0].X
		for _, h := range right.Headers {
			if h.X < rightEdge {
				rightEdge = h.X
			}
		}
		mid := (leftEdge + rightEdge) / 2
		left.XEnd = mid
		right.XStart = mid
		left.computeColumnBoundaries()
		right.computeColumnBoundaries()
	}
}

// assignData routes each non-header fragment to the table whose x-range
// contains its center and which lies below the table's header row. Returns
// the number of fragments no table claimed.
func assignData(tables []*Table, data []ocr.Fragment) int {
	dropped := 0
	for _, f := range data {
		cx := f.CenterX()
		var target *Table
		for _, t := range tables {
			if f.Y <= t.YStart {
				continue
			}
			if cx < t.XStart || cx >= t.XEnd {
				continue
			}
			if target == nil || abs(cx-t.Midpoint()) < abs(cx-target.Midpoint()) {
				target = t
			}
		}
		if target == nil {
			dropped++
			continue
		}
		target.Data = append(target.Data, f)
	}
	for _, t := range tables {
		sort.Slice(t.Data, func(i, j int) bool {
			if t.Data[i].Y != t.Data[j].Y {
				return t.Data[i].Y < t.Data[j].Y
			}
			return t.Data[i].X < t.Data[j].X
		})
	}
	return dropped
}
