package http

import (
	"errors"
	"net/http"
	"strings"

	"expenseflow/internal/auth"
	"expenseflow/internal/core"
	"expenseflow/internal/log"
	"expenseflow/internal/storage"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := auth.ValidateUsername(req.Username); err != nil {
		s.writeDomainError(r, w, err)
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		s.writeDomainError(r, w, err)
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	_, err = s.accounts.CreateUser(r.Context(), storage.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if errors.Is(err, core.ErrConflict) {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "user signed up", log.FieldUsername, req.Username)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Signup successful"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.accounts.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.issuer.Generate(user.Username)
	if err != nil {
		s.writeDomainError(r, w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "user logged in", log.FieldUsername, user.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username})
}
