package segment

// Layout describes the tables a form is expected to carry, ordered left to
// right. It drives cluster repair when the OCR pass merges adjacent tables,
// and lets callers describe form variants without touching the segmenter.
type Layout struct {
	Tables []TableType
}

// DefaultLayout is the standard restaurant waste form: two completed-waste
// tables on the left, one five-column raw-waste table in the middle and two
// three-column raw-waste tables on the right.
func DefaultLayout() Layout {
	return Layout{
		Tables: []TableType{
			CompletedWaste2Col,
			CompletedWaste2Col,
			RawWaste5Col,
			RawWaste3Col,
			RawWaste3Col,
		},
	}
}

// ExpectedTables returns the number of tables the layout describes.
func (l Layout) ExpectedTables() int { return len(l.Tables) }

// expectedColumns returns the header set a table of the given type carries.
func expectedColumns(t TableType) []ColumnName {
	switch t {
	case RawWaste5Col:
		return []ColumnName{ColumnItem, ColumnSize, ColumnOpen, ColumnSwing, ColumnClose}
	case RawWaste3Col:
		return []ColumnName{ColumnItem, ColumnSize, ColumnCount}
	case CompletedWaste2Col:
		return []ColumnName{ColumnItem, ColumnCount}
	default:
		return nil
	}
}
