package memory

import (
	"context"
	"errors"
	"testing"

	"expenseflow/internal/sheets"
)

func TestAppendAndEntries(t *testing.T) {
	ledger := New()
	ctx := context.Background()

	ref, err := ledger.Append(ctx, sheets.LedgerEntry{ExpenseID: "e1", Amount: "10.00"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "memory!A1" {
		t.Errorf("ref = %q, want memory!A1", ref)
	}

	if _, err := ledger.Append(ctx, sheets.LedgerEntry{ExpenseID: "e2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries := ledger.Entries()
	if len(entries) != 2 || entries[0].ExpenseID != "e1" || entries[1].ExpenseID != "e2" {
		t.Errorf("Entries = %+v", entries)
	}
}

func TestFailWith(t *testing.T) {
	ledger := New()
	boom := errors.New("sheet unavailable")
	ledger.FailWith(boom)

	if _, err := ledger.Append(context.Background(), sheets.LedgerEntry{ExpenseID: "e1"}); !errors.Is(err, boom) {
		t.Fatalf("Append = %v, want injected error", err)
	}
	if len(ledger.Entries()) != 0 {
		t.Error("failed append must not record an entry")
	}

	ledger.FailWith(nil)
	if _, err := ledger.Append(context.Background(), sheets.LedgerEntry{ExpenseID: "e1"}); err != nil {
		t.Fatalf("Append after reset: %v", err)
	}
}
