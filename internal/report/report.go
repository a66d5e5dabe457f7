// Package report builds tabular expense reports and their CSV export.
package report

import (
	"encoding/csv"
	"errors"
	"io"

	"expenseflow/internal/core"
)

// ErrNoData signals an export with nothing to write. Callers surface it
// instead of producing an empty file.
var ErrNoData = errors.New("no data to export")

// Header is the fixed CSV column order.
var Header = []string{"Date", "Category", "Amount", "Assigned To", "Description", "Status"}

// Row is one rendered report line. Amount is dot-decimal and AssignedTo
// is the member's display name, not the stored ID.
type Row struct {
	Date        string
	Category    string
	Amount      string
	AssignedTo  string
	Description string
	Status      string
}

// Rows renders the expenses matching filter into display rows. Assignee
// names are resolved through members; an expense whose member has been
// removed falls back to the raw ID.
func Rows(members []core.TeamMember, expenses []core.Expense, filter string) ([]Row, error) {
	filtered, err := core.FilterByStatus(expenses, filter)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	rows := make([]Row, 0, len(filtered))
	for _, e := range filtered {
		name, ok := names[e.AssignedTo]
		if !ok {
			name = e.AssignedTo
		}
		rows = append(rows, Row{
			Date:        e.Date.String(),
			Category:    e.Category,
			Amount:      e.Amount.String(),
			AssignedTo:  name,
			Description: e.Description,
			Status:      string(e.Status),
		})
	}
	return rows, nil
}

// WriteCSV writes the header and rows to w. Every field passes through
// the csv encoder, so commas, quotes and newlines in any column survive
// a round trip. Returns ErrNoData when rows is empty.
func WriteCSV(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return ErrNoData
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.Date, r.Category, r.Amount, r.AssignedTo, r.Description, r.Status}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
