package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"expenseflow/internal/core"
	"expenseflow/internal/log"
	"expenseflow/internal/report"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeDomainError maps the error taxonomy onto HTTP statuses:
// validation 400, missing 404, rejected transitions and conflicts 409,
// everything unexpected a generic 500.
func (s *Server) writeDomainError(r *http.Request, w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "expense is not pending")
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting update")
	case errors.Is(err, report.ErrNoData):
		writeError(w, http.StatusNotFound, "no data to export")
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			log.FieldError, err,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
