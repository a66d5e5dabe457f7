// Package sheets defines the outbound port for the external expense
// ledger.
package sheets

import "context"

// LedgerEntry is one approved expense flattened for the ledger. All
// values are already rendered as display strings.
type LedgerEntry struct {
	ExpenseID   string
	Date        string
	Category    string
	Amount      string
	AssignedTo  string
	Description string
}

// LedgerAppender appends approved expenses to the external ledger and
// returns a reference to the written row.
type LedgerAppender interface {
	Append(ctx context.Context, entry LedgerEntry) (rowRef string, err error)
}
