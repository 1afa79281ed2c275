// Package validate checks a reconciled scan for values a human must look at
// before the numbers enter the waste ledger.
package validate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/instantwaste/formscan/internal/recovery"
	"github.com/instantwaste/formscan/internal/segment"
)

// Result accumulates everything wrong or suspicious about a scan. Errors
// make the scan invalid; warnings do not.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

var numericValue = regexp.MustCompile(`^\d+$`)

const (
	// Counts above this are almost certainly misreads; no station wastes
	// a thousand of anything in one day.
	maxPlausibleCount = 999

	// A scan that filled fewer than this share of its cells usually means
	// the photo was unusable, not that the form was empty.
	minFillRatio = 0.05
)

// Check runs every rule against the reconciled tables and returns the
// accumulated result. It never stops at the first problem.
func Check(results []*recovery.TableRows) Result {
	res := Result{}

	totalRows := 0
	totalCells := 0
	filledCells := 0
	anyValue := false

	for _, tr := range results {
		for _, row := range tr.Rows {
			totalRows++
			for name, field := range row.Fields {
				if name == segment.ColumnSize {
					continue
				}
				totalCells++
				if field.Empty() {
					continue
				}
				filledCells++
				anyValue = true

				if !numericValue.MatchString(field.Value) {
					res.addError("%s: item %q, column %s: value %q is not a number",
						tr.Table.Name, row.ItemName, name, field.Value)
					continue
				}
				if n, err := strconv.Atoi(field.Value); err == nil && n > maxPlausibleCount {
					res.addWarning("%s: item %q, column %s: count %d is implausibly large",
						tr.Table.Name, row.ItemName, name, n)
				}
			}
		}
	}

	switch {
	case totalRows == 0:
		res.addWarning("no items recognized; the image may be unreadable or not a waste form")
	case !anyValue:
		res.addWarning("items recognized but no waste counts found")
	case totalCells > 0 && float64(filledCells)/float64(totalCells) < minFillRatio:
		res.addWarning("fewer than 5%% of cells filled; check image quality")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
