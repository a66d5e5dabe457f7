// Package http exposes the expense workflow as a JSON REST API.
package http

import (
	"context"
	"io"
	"net/http"
	"sync"

	"expenseflow/internal/auth"
	"expenseflow/internal/core"
	"expenseflow/internal/log"
	"expenseflow/internal/middleware/ratelimit"
	"expenseflow/internal/middleware/security"
	"expenseflow/internal/middleware/trace"
	"expenseflow/internal/report"
	"expenseflow/internal/storage"
)

// Workflow is the application surface the handlers call into.
type Workflow interface {
	CreateTeamMember(ctx context.Context, m core.TeamMember) (core.TeamMember, error)
	ListTeamMembers(ctx context.Context) ([]core.TeamMember, error)
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	Transition(ctx context.Context, id string, to core.Status) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context, filter string) ([]core.Expense, error)
	Summary(ctx context.Context) (core.Summary, error)
	Report(ctx context.Context, filter string) ([]report.Row, error)
	ExportCSV(ctx context.Context, w io.Writer, filter string) error
}

// Accounts is the user store for signup and login.
type Accounts interface {
	CreateUser(ctx context.Context, u storage.User) (storage.User, error)
	GetUserByUsername(ctx context.Context, username string) (storage.User, error)
}

// Pinger reports storage health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr      string
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server

	workflow Workflow
	accounts Accounts
	issuer   *auth.TokenIssuer
	pinger   Pinger
	logger   *log.Logger

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and the middleware chain, returning a
// ready-to-run server.
func NewServer(cfg Config, workflow Workflow, accounts Accounts, issuer *auth.TokenIssuer, pinger Pinger, logger *log.Logger) *Server {
	s := &Server{
		workflow:    workflow,
		accounts:    accounts,
		issuer:      issuer,
		pinger:      pinger,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.HandleFunc("GET /api/team", s.handleListTeam)
	mux.Handle("POST /api/team", issuer.Middleware(http.HandlerFunc(s.handleCreateTeamMember)))

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.Handle("POST /api/expenses", issuer.Middleware(http.HandlerFunc(s.handleCreateExpense)))
	mux.Handle("PUT /api/expenses/{id}", issuer.Middleware(http.HandlerFunc(s.handleTransitionExpense)))
	mux.Handle("DELETE /api/expenses/{id}", issuer.Middleware(http.HandlerFunc(s.handleDeleteExpense)))

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/reports", s.handleReport)
	mux.HandleFunc("GET /api/reports/export", s.handleExportCSV)

	var handler http.Handler = mux
	handler = s.limitMutations(handler)
	handler = trace.NewMiddleware(logger, extractClientIP).Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}
	return s
}

// limitMutations applies the per-IP limiter to state-changing methods
// only; reads stay unthrottled.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(extractClientIP, s.handleRateLimited)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			limited.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "rate limit exceeded",
		log.FieldClientIP, extractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// Shutdown stops background goroutines before draining connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
