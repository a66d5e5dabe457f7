// Package memory holds an in-process ledger used in tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"expenseflow/internal/sheets"
)

type Ledger struct {
	mu       sync.Mutex
	entries  []sheets.LedgerEntry
	failWith error
}

var _ sheets.LedgerAppender = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(ctx context.Context, entry sheets.LedgerEntry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != nil {
		return "", l.failWith
	}
	l.entries = append(l.entries, entry)
	return fmt.Sprintf("memory!A%d", len(l.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (l *Ledger) Entries() []sheets.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]sheets.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// FailWith makes every following Append return err; nil restores
// normal behavior.
func (l *Ledger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = err
}
