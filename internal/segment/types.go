// Package segment reconstructs the table structure of a waste form from the
// unordered fragments of an OCR pass: it finds column headers, clusters them
// into distinct tables, classifies each table and computes pixel-range column
// boundaries.
package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/instantwaste/formscan/internal/ocr"
)

// ColumnName identifies one of the fixed form columns.
type ColumnName string

const (
	ColumnItem  ColumnName = "ITEM"
	ColumnSize  ColumnName = "SIZE"
	ColumnOpen  ColumnName = "OPEN"
	ColumnSwing ColumnName = "SWING"
	ColumnClose ColumnName = "CLOSE"
	ColumnCount ColumnName = "COUNT"
)

// QuantityColumns are the columns whose cells hold handwritten counts.
var QuantityColumns = []ColumnName{ColumnOpen, ColumnSwing, ColumnClose, ColumnCount}

// IsQuantity reports whether the column holds numeric cell values.
func (c ColumnName) IsQuantity() bool {
	switch c {
	case ColumnOpen, ColumnSwing, ColumnClose, ColumnCount:
		return true
	default:
		return false
	}
}

// TableType classifies a detected table by its header set.
type TableType string

const (
	RawWaste5Col       TableType = "RAW_WASTE_5COL"
	RawWaste3Col       TableType = "RAW_WASTE_3COL"
	CompletedWaste2Col TableType = "COMPLETED_WASTE_2COL"
	TypeUnknown        TableType = "UNKNOWN"
)

// ColumnBoundary is the pixel range a column occupies within its table,
// together with the x-position of the header that anchors it.
type ColumnBoundary struct {
	Name    ColumnName
	HeaderX int
	XStart  int
	XEnd    int
}

// Contains reports whether x falls inside the column's half-open range.
func (b ColumnBoundary) Contains(x int) bool { return x >= b.XStart && x < b.XEnd }

func (b ColumnBoundary) String() string {
	return fmt.Sprintf("%s: header@%d, range[%d-%d]", b.Name, b.HeaderX, b.XStart, b.XEnd)
}

// Table is one detected grid on the page. Column boundaries partition
// [XStart, XEnd]; they are recomputed whenever the table bounds change.
type Table struct {
	Name    string
	Type    TableType
	XStart  int
	XEnd    int
	YStart  int
	Headers []ocr.Fragment
	Columns map[ColumnName]ColumnBoundary
	Data    []ocr.Fragment
}

// HeaderNames returns the header texts ordered left to right.
func (t *Table) HeaderNames() []ColumnName {
	sorted := make([]ocr.Fragment, len(t.Headers))
	copy(sorted, t.Headers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })
	names := make([]ColumnName, len(sorted))
	for i, h := range sorted {
		names[i] = ColumnName(strings.ToUpper(strings.TrimSpace(h.Text)))
	}
	return names
}

// IsCompletedWaste reports whether the table records finished menu items
// rather than raw ingredients.
func (t *Table) IsCompletedWaste() bool { return t.Type == CompletedWaste2Col }

// ClosestColumn returns the column whose header is nearest to x, with the
// distance to it. Exact ties prefer the leftmost column so the outcome does
// not depend on map iteration order.
func (t *Table) ClosestColumn(x int) (ColumnName, int) {
	best := ColumnName("")
	bestDist := -1
	bestHeaderX := 0
	for name, b := range t.Columns {
		d := abs(x - b.HeaderX)
		if bestDist < 0 || d < bestDist || (d == bestDist && b.HeaderX < bestHeaderX) {
			best = name
			bestDist = d
			bestHeaderX = b.HeaderX
		}
	}
	return best, bestDist
}

// ClosestQuantityColumn is ClosestColumn restricted to quantity columns.
func (t *Table) ClosestQuantityColumn(x int) (ColumnName, int) {
	best := ColumnName("")
	bestDist := -1
	bestHeaderX := 0
	for _, name := range QuantityColumns {
		b, ok := t.Columns[name]
		if !ok {
			continue
		}
		d := abs(x - b.HeaderX)
		if bestDist < 0 || d < bestDist || (d == bestDist && b.HeaderX < bestHeaderX) {
			best = name
			bestDist = d
			bestHeaderX = b.HeaderX
		}
	}
	return best, bestDist
}

// Midpoint returns the horizontal midpoint of the table's x-range.
func (t *Table) Midpoint() int { return (t.XStart + t.XEnd) / 2 }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
