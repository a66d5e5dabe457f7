package http

import (
	"bytes"
	"net/http"

	"expenseflow/internal/core"
)

type summaryResponse struct {
	Total           int `json:"total"`
	ApprovedCount   int `json:"approvedCount"`
	CancelledCount  int `json:"cancelledCount"`
	PendingCount    int `json:"pendingCount"`
	TeamMemberCount int `json:"teamMemberCount"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.workflow.Summary(r.Context())
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Total:           summary.Total,
		ApprovedCount:   summary.ApprovedCount,
		CancelledCount:  summary.CancelledCount,
		PendingCount:    summary.PendingCount,
		TeamMemberCount: summary.TeamMembers,
	})
}

type reportRowResponse struct {
	Date        string `json:"date"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	AssignedTo  string `json:"assignedTo"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func reportFilter(r *http.Request) string {
	if filter := r.URL.Query().Get("filter"); filter != "" {
		return filter
	}
	return core.FilterAll
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.workflow.Report(r.Context(), reportFilter(r))
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	out := make([]reportRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, reportRowResponse{
			Date:        row.Date,
			Category:    row.Category,
			Amount:      row.Amount,
			AssignedTo:  row.AssignedTo,
			Description: row.Description,
			Status:      row.Status,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	// Build the file first so an empty report can still answer 404
	// instead of a half-written download.
	var buf bytes.Buffer
	if err := s.workflow.ExportCSV(r.Context(), &buf, reportFilter(r)); err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="expense-report.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
