package pipeline

import (
	"fmt"

	"github.com/instantwaste/formscan/internal/reconcile"
	"github.com/instantwaste/formscan/internal/recovery"
	"github.com/instantwaste/formscan/internal/segment"
	"github.com/instantwaste/formscan/internal/validate"
)

// FieldData is one cell of the scan output. IsEmpty is derived from the
// value at serialization time; clients filter on it without null checks.
type FieldData struct {
	Value       string `json:"value"`
	IsEmpty     bool   `json:"isEmpty"`
	NeedsReview bool   `json:"needsReview,omitempty"`
	Issue       string `json:"issue,omitempty"`
}

// WasteRow is one item line. Which cells are present depends on the table
// type: five-column raw waste carries size and the three day-part counts,
// three-column raw waste carries size and count, completed waste carries
// count only.
type WasteRow struct {
	ItemName string     `json:"itemName"`
	Size     *FieldData `json:"size,omitempty"`
	Open     *FieldData `json:"open,omitempty"`
	Swing    *FieldData `json:"swing,omitempty"`
	Close    *FieldData `json:"close,omitempty"`
	Count    *FieldData `json:"count,omitempty"`
}

// WasteTable is one reconstructed table of the form.
type WasteTable struct {
	Name string     `json:"name"`
	Type string     `json:"type"`
	Rows []WasteRow `json:"rows"`
}

// ReviewItem points a human at one cell that needs checking.
type ReviewItem struct {
	Table    string `json:"table"`
	ItemName string `json:"itemName"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Issue    string `json:"issue"`
}

// ScanResult is the full output of one form scan. The three field counts
// summarize every cell the tables carry.
type ScanResult struct {
	TotalFields         int             `json:"totalFields"`
	FieldsNeedingReview int             `json:"fieldsNeedingReview"`
	EmptyFields         int             `json:"emptyFields"`
	Tables              []WasteTable    `json:"tables"`
	Review              []ReviewItem    `json:"review,omitempty"`
	Validation          validate.Result `json:"validation"`
	RecoveredCells      int             `json:"recoveredCells"`
	DurationMillis      int64           `json:"durationMillis"`
}

// toWire converts the reconciled domain structures into the output shape,
// projecting each row onto the cells its table type carries.
func toWire(results []*recovery.TableRows) []WasteTable {
	tables := make([]WasteTable, 0, len(results))
	for _, tr := range results {
		wt := WasteTable{
			Name: tr.Table.Name,
			Type: string(tr.Table.Type),
			Rows: make([]WasteRow, 0, len(tr.Rows)),
		}
		for _, row := range tr.Rows {
			wr := WasteRow{ItemName: row.ItemName}
			switch tr.Table.Type {
			case segment.RawWaste5Col:
				wr.Size = fieldData(row, segment.ColumnSize)
				wr.Open = fieldData(row, segment.ColumnOpen)
				wr.Swing = fieldData(row, segment.ColumnSwing)
				wr.Close = fieldData(row, segment.ColumnClose)
			case segment.RawWaste3Col:
				wr.Size = fieldData(row, segment.ColumnSize)
				wr.Count = fieldData(row, segment.ColumnCount)
			default:
				wr.Count = fieldData(row, segment.ColumnCount)
			}
			wt.Rows = append(wt.Rows, wr)
		}
		tables = append(tables, wt)
	}
	return tables
}

func fieldData(row *reconcile.Row, name segment.ColumnName) *FieldData {
	f := row.Field(name)
	if f == nil {
		return &FieldData{IsEmpty: true}
	}
	return &FieldData{Value: f.Value, IsEmpty: f.Empty(), NeedsReview: f.NeedsReview, Issue: f.Issue}
}

// tallyFields counts the cells across all tables for the result summary.
func tallyFields(tables []WasteTable) (total, review, empty int) {
	for _, t := range tables {
		for _, row := range t.Rows {
			for _, f := range []*FieldData{row.Size, row.Open, row.Swing, row.Close, row.Count} {
				if f == nil {
					continue
				}
				total++
				if f.IsEmpty {
					empty++
				}
				if f.NeedsReview {
					review++
				}
			}
		}
	}
	return total, review, empty
}

// Revalidate reruns the validation rules over the result, typically after a
// client has edited values during review.
func (r *ScanResult) Revalidate() validate.Result {
	return validate.Check(fromWire(r.Tables))
}

// fromWire rebuilds the domain row structures from wire tables so the
// validator can run over client edits.
func fromWire(tables []WasteTable) []*recovery.TableRows {
	out := make([]*recovery.TableRows, 0, len(tables))
	for _, t := range tables {
		tr := &recovery.TableRows{
			Table: &segment.Table{Name: t.Name, Type: segment.TableType(t.Type)},
		}
		for _, row := range t.Rows {
			dr := &reconcile.Row{
				ItemName: row.ItemName,
				Fields:   map[segment.ColumnName]*reconcile.Field{},
			}
			set := func(name segment.ColumnName, f *FieldData) {
				if f == nil {
					return
				}
				dr.Fields[name] = &reconcile.Field{
					Value:       f.Value,
					NeedsReview: f.NeedsReview,
					Issue:       f.Issue,
				}
			}
			set(segment.ColumnSize, row.Size)
			set(segment.ColumnOpen, row.Open)
			set(segment.ColumnSwing, row.Swing)
			set(segment.ColumnClose, row.Close)
			set(segment.ColumnCount, row.Count)
			tr.Rows = append(tr.Rows, dr)
		}
		out = append(out, tr)
	}
	return out
}

// buildReview collects every cell flagged for review into a flat list, in
// table and row order, so a reviewer can walk the form top to bottom.
func buildReview(tables []WasteTable) []ReviewItem {
	var items []ReviewItem
	for _, t := range tables {
		for _, row := range t.Rows {
			cells := []struct {
				column string
				field  *FieldData
			}{
				{"SIZE", row.Size},
				{"OPEN", row.Open},
				{"SWING", row.Swing},
				{"CLOSE", row.Close},
				{"COUNT", row.Count},
			}
			for _, c := range cells {
				if c.field == nil || !c.field.NeedsReview {
					continue
				}
				items = append(items, ReviewItem{
					Table:    t.Name,
					ItemName: row.ItemName,
					Column:   c.column,
					Value:    c.field.Value,
					Issue:    c.field.Issue,
				})
			}
		}
	}
	return items
}

// Summary renders a one-line description of the scan for logs.
func (r *ScanResult) Summary() string {
	rows := 0
	for _, t := range r.Tables {
		rows += len(t.Rows)
	}
	return fmt.Sprintf("tables=%d rows=%d review=%d recovered=%d",
		len(r.Tables), rows, len(r.Review), r.RecoveredCells)
}
