package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"expenseflow/internal/core"
)

type expenseRequest struct {
	Amount      json.Number `json:"amount"`
	Date        string      `json:"date"`
	Category    string      `json:"category"`
	AssignedTo  string      `json:"assignedTo"`
	Description string      `json:"description"`
}

type expenseResponse struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Date        string    `json:"date"`
	Category    string    `json:"category"`
	AssignedTo  string    `json:"assignedTo"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Amount:      e.Amount.Float(),
		Date:        e.Date.String(),
		Category:    e.Category,
		AssignedTo:  e.AssignedTo,
		Description: e.Description,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := core.ParseMoney(req.Amount.String())
	if err != nil {
		s.writeDomainError(r, w, &core.ValidationError{Field: "amount", Reason: "must be a positive number"})
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	expense, err := s.workflow.CreateExpense(r.Context(), core.Expense{
		Amount:      amount,
		Date:        date,
		Category:    strings.TrimSpace(req.Category),
		AssignedTo:  strings.TrimSpace(req.AssignedTo),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")

	expenses, err := s.workflow.ListExpenses(r.Context(), filter)
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleTransitionExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.workflow.Transition(r.Context(), id, core.Status(req.Status))
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.workflow.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}
