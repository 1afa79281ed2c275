// Package reconcile turns a segmented table's loose fragments into rows: it
// anchors rows on matched item names, then attaches each numeric fragment to
// the nearest anchor's nearest quantity column under distance thresholds.
package reconcile

import (
	"github.com/instantwaste/formscan/internal/segment"
)

// Field is a single reconciled cell value. A field flagged for review
// carries the issue text explaining why.
type Field struct {
	Value       string
	NeedsReview bool
	Issue       string
}

// Empty reports whether the field holds no value yet.
func (f *Field) Empty() bool { return f.Value == "" }

// FillIfEmpty sets the field only when it is still empty and reports whether
// it did. Values already present are never overwritten; the first pass to
// claim a cell wins.
func (f *Field) FillIfEmpty(value string, needsReview bool, issue string) bool {
	if !f.Empty() {
		return false
	}
	f.Value = value
	f.NeedsReview = needsReview
	f.Issue = issue
	return true
}

// Row is one reconciled table row, anchored at the vertical position of its
// matched item name.
type Row struct {
	ItemName string
	AnchorY  int
	Fields   map[segment.ColumnName]*Field
}

func newRow(itemName string, anchorY int, columns []segment.ColumnName) *Row {
	r := &Row{
		ItemName: itemName,
		AnchorY:  anchorY,
		Fields:   make(map[segment.ColumnName]*Field, len(columns)),
	}
	for _, c := range columns {
		r.Fields[c] = &Field{}
	}
	return r
}

// Field returns the cell for the given column, or nil when the row's table
// does not carry that column.
func (r *Row) Field(name segment.ColumnName) *Field { return r.Fields[name] }

// HasValues reports whether any cell of the row holds a value.
func (r *Row) HasValues() bool {
	for _, f := range r.Fields {
		if !f.Empty() {
			return true
		}
	}
	return false
}
