package core

import "sort"

// FilterAll selects every expense regardless of status.
const FilterAll = "all"

// ValidFilter reports whether filter is "all", empty, or a known status.
func ValidFilter(filter string) bool {
	if filter == "" || filter == FilterAll {
		return true
	}
	return Status(filter).Valid()
}

// FilterByStatus returns the expenses matching filter, preserving input
// order. Empty filter behaves like FilterAll.
func FilterByStatus(expenses []Expense, filter string) ([]Expense, error) {
	if !ValidFilter(filter) {
		return nil, invalidField("filter", "must be all, pending, approved or cancelled")
	}
	if filter == "" || filter == FilterAll {
		out := make([]Expense, len(expenses))
		copy(out, expenses)
		return out, nil
	}
	want := Status(filter)
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.Status == want {
			out = append(out, e)
		}
	}
	return out, nil
}

// SortByDateDesc orders expenses newest first. Expenses sharing a date
// keep their relative input order, so equal-dated records stay in
// insertion order.
func SortByDateDesc(expenses []Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date.After(expenses[j].Date.Time)
	})
}

// PendingView returns the approval queue: pending expenses, newest first.
func PendingView(expenses []Expense) []Expense {
	out, _ := FilterByStatus(expenses, string(StatusPending))
	SortByDateDesc(out)
	return out
}

// Summary is the dashboard aggregate over all expenses.
type Summary struct {
	Total          int
	ApprovedCount  int
	CancelledCount int
	PendingCount   int
	TeamMembers    int
}

// Summarize counts expenses per status. Total always equals the sum of
// the three status buckets.
func Summarize(expenses []Expense, teamMembers int) Summary {
	s := Summary{Total: len(expenses), TeamMembers: teamMembers}
	for _, e := range expenses {
		switch e.Status {
		case StatusApproved:
			s.ApprovedCount++
		case StatusCancelled:
			s.CancelledCount++
		default:
			s.PendingCount++
		}
	}
	return s
}
