package http

import (
	"net/http"
	"strings"
	"time"

	"expenseflow/internal/core"
)

type teamMemberRequest struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Phone string `json:"phone"`
}

type teamMemberResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

func toTeamMemberResponse(m core.TeamMember) teamMemberResponse {
	return teamMemberResponse{
		ID:        m.ID,
		Name:      m.Name,
		Age:       m.Age,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
	}
}

func (s *Server) handleCreateTeamMember(w http.ResponseWriter, r *http.Request) {
	var req teamMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := s.workflow.CreateTeamMember(r.Context(), core.TeamMember{
		Name:  strings.TrimSpace(req.Name),
		Age:   req.Age,
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTeamMemberResponse(member))
}

func (s *Server) handleListTeam(w http.ResponseWriter, r *http.Request) {
	members, err := s.workflow.ListTeamMembers(r.Context())
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	out := make([]teamMemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toTeamMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}
