package core

import (
	"errors"
	"testing"
)

func sampleExpenses() []Expense {
	return []Expense{
		{ID: "e1", Date: NewDate(2025, 1, 10), Status: StatusPending, Description: "first"},
		{ID: "e2", Date: NewDate(2025, 1, 12), Status: StatusApproved, Description: "second"},
		{ID: "e3", Date: NewDate(2025, 1, 12), Status: StatusPending, Description: "third"},
		{ID: "e4", Date: NewDate(2025, 1, 11), Status: StatusCancelled, Description: "fourth"},
		{ID: "e5", Date: NewDate(2025, 1, 12), Status: StatusPending, Description: "fifth"},
	}
}

func ids(expenses []Expense) []string {
	out := make([]string, len(expenses))
	for i, e := range expenses {
		out[i] = e.ID
	}
	return out
}

func TestFilterByStatus(t *testing.T) {
	all := sampleExpenses()

	tests := []struct {
		name    string
		filter  string
		wantIDs []string
		wantErr bool
	}{
		{name: "all", filter: "all", wantIDs: []string{"e1", "e2", "e3", "e4", "e5"}},
		{name: "empty filter means all", filter: "", wantIDs: []string{"e1", "e2", "e3", "e4", "e5"}},
		{name: "pending", filter: "pending", wantIDs: []string{"e1", "e3", "e5"}},
		{name: "approved", filter: "approved", wantIDs: []string{"e2"}},
		{name: "cancelled", filter: "cancelled", wantIDs: []string{"e4"}},
		{name: "unknown filter", filter: "archived", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterByStatus(all, tt.filter)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("FilterByStatus(%q) err = %v, want *ValidationError", tt.filter, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FilterByStatus(%q): %v", tt.filter, err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.wantIDs) {
				t.Fatalf("got %v, want %v", gotIDs, tt.wantIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.wantIDs[i] {
					t.Fatalf("got %v, want %v", gotIDs, tt.wantIDs)
				}
			}
		})
	}
}

func TestFilterByStatusCopies(t *testing.T) {
	all := sampleExpenses()
	got, err := FilterByStatus(all, FilterAll)
	if err != nil {
		t.Fatalf("FilterByStatus: %v", err)
	}
	got[0].ID = "mutated"
	if all[0].ID != "e1" {
		t.Error("filter result must not alias the input slice")
	}
}

func TestPendingViewOrdering(t *testing.T) {
	got := PendingView(sampleExpenses())

	// Newest first; e3 and e5 share a date and must keep insertion order.
	want := []string{"e3", "e5", "e1"}
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("PendingView = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("PendingView = %v, want %v", gotIDs, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleExpenses(), 4)

	if s.Total != 5 {
		t.Errorf("Total = %d, want 5", s.Total)
	}
	if s.PendingCount != 3 || s.ApprovedCount != 1 || s.CancelledCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/1/1", s.PendingCount, s.ApprovedCount, s.CancelledCount)
	}
	if s.TeamMembers != 4 {
		t.Errorf("TeamMembers = %d, want 4", s.TeamMembers)
	}
	if s.Total != s.PendingCount+s.ApprovedCount+s.CancelledCount {
		t.Error("status buckets must sum to Total")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 0)
	if s.Total != 0 || s.PendingCount != 0 || s.ApprovedCount != 0 || s.CancelledCount != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero counts", s)
	}
}
