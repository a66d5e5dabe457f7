package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expenseflow/internal/auth"
	"expenseflow/internal/core"
	"expenseflow/internal/log"
	"expenseflow/internal/middleware/ratelimit"
	"expenseflow/internal/services"
	"expenseflow/internal/storage"
)

type memStore struct {
	members  []core.TeamMember
	expenses []core.Expense
	nextID   int
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreateTeamMember(_ context.Context, member core.TeamMember) (core.TeamMember, error) {
	member.ID = m.id("member")
	member.CreatedAt = time.Now().UTC()
	m.members = append(m.members, member)
	return member, nil
}

func (m *memStore) GetTeamMember(_ context.Context, id string) (core.TeamMember, error) {
	for _, member := range m.members {
		if member.ID == id {
			return member, nil
		}
	}
	return core.TeamMember{}, core.ErrNotFound
}

func (m *memStore) ListTeamMembers(_ context.Context) ([]core.TeamMember, error) {
	return append([]core.TeamMember(nil), m.members...), nil
}

func (m *memStore) CountTeamMembers(_ context.Context) (int, error) {
	return len(m.members), nil
}

func (m *memStore) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	e.ID = m.id("expense")
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	m.expenses = append(m.expenses, e)
	return e, nil
}

func (m *memStore) GetExpense(_ context.Context, id string) (core.Expense, error) {
	for _, e := range m.expenses {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, core.ErrNotFound
}

func (m *memStore) ListExpenses(_ context.Context, filter string) ([]core.Expense, error) {
	return core.FilterByStatus(m.expenses, filter)
}

func (m *memStore) UpdateExpenseStatus(_ context.Context, id string, to core.Status) (core.Expense, error) {
	for i, e := range m.expenses {
		if e.ID != id {
			continue
		}
		if e.Status != core.StatusPending {
			return core.Expense{}, core.ErrInvalidTransition
		}
		m.expenses[i].Status = to
		m.expenses[i].UpdatedAt = time.Now().UTC()
		return m.expenses[i], nil
	}
	return core.Expense{}, core.ErrNotFound
}

func (m *memStore) DeleteExpense(_ context.Context, id string) error {
	for i, e := range m.expenses {
		if e.ID == id {
			m.expenses = append(m.expenses[:i], m.expenses[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

type memAccounts struct {
	users map[string]storage.User
}

func (a *memAccounts) CreateUser(_ context.Context, u storage.User) (storage.User, error) {
	if _, ok := a.users[u.Username]; ok {
		return storage.User{}, core.ErrConflict
	}
	u.ID = fmt.Sprintf("user-%d", len(a.users)+1)
	a.users[u.Username] = u
	return u, nil
}

func (a *memAccounts) GetUserByUsername(_ context.Context, username string) (storage.User, error) {
	u, ok := a.users[username]
	if !ok {
		return storage.User{}, core.ErrNotFound
	}
	return u, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return fmt.Errorf("db closed") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testEnv struct {
	store  *memStore
	issuer *auth.TokenIssuer
	srv    *httptest.Server
}

func newTestEnv(t *testing.T, pinger Pinger) *testEnv {
	t.Helper()

	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	store := &memStore{}
	workflow := services.NewWorkflowService(store, nil, logger)
	issuer := auth.NewTokenIssuer("test-secret-0123456789", time.Hour)
	accounts := &memAccounts{users: make(map[string]storage.User)}

	server := NewServer(Config{
		Addr:      ":0",
		RateLimit: ratelimit.Config{RequestsPerWindow: 1000, Window: time.Minute},
	}, workflow, accounts, issuer, pinger, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = server.Shutdown(context.Background())
	})

	return &testEnv{store: store, issuer: issuer, srv: ts}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.issuer.Generate("tester1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) seedMember(t *testing.T, name string) string {
	t.Helper()
	member, err := e.store.CreateTeamMember(context.Background(), core.TeamMember{
		Name: name, Age: 30, Phone: "0123456789",
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member.ID
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, okPinger{})

	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/readyz", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyzUnavailableStorage(t *testing.T) {
	env := newTestEnv(t, failingPinger{})

	resp := env.do(t, http.MethodGet, "/readyz", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t, okPinger{})

	signup := map[string]string{
		"username": "frank12",
		"email":    "frank@example.com",
		"password": "pass1wd!",
	}

	resp := env.do(t, http.MethodPost, "/api/signup", "", signup)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/signup", "", signup)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "frank12", "password": "pass1wd!",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	login := decodeBody[loginResponse](t, resp)
	if login.Token == "" {
		t.Error("login returned empty token")
	}
	if login.Username != "frank12" {
		t.Errorf("login username = %q, want frank12", login.Username)
	}

	resp = env.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "frank12", "password": "wrong9z!",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t, okPinger{})

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short username", map[string]string{"username": "ab1", "email": "a@b.com", "password": "pass1wd!"}},
		{"username without digit", map[string]string{"username": "abcdefg", "email": "a@b.com", "password": "pass1wd!"}},
		{"password without special", map[string]string{"username": "frank12", "email": "a@b.com", "password": "passw1d"}},
		{"bad email", map[string]string{"username": "frank12", "email": "not-an-email", "password": "pass1wd!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/signup", "", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	env := newTestEnv(t, okPinger{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/team"},
		{http.MethodPost, "/api/expenses"},
		{http.MethodPut, "/api/expenses/expense-1"},
		{http.MethodDelete, "/api/expenses/expense-1"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, "", map[string]string{})
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestCreateTeamMember(t *testing.T) {
	env := newTestEnv(t, okPinger{})
	token := env.token(t)

	resp := env.do(t, http.MethodPost, "/api/team", token, map[string]any{
		"name": "Alice", "age": 34, "phone": "0123456789",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[teamMemberResponse](t, resp)
	if created.ID == "" {
		t.Error("created member has empty id")
	}

	resp = env.do(t, http.MethodPost, "/api/team", token, map[string]any{
		"name": "Kid", "age": 12, "phone": "0123456789",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("underage status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/team", "", nil)
	members := decodeBody[[]teamMemberResponse](t, resp)
	if len(members) != 1 {
		t.Errorf("listed %d members, want 1", len(members))
	}
}

func TestExpenseLifecycle(t *testing.T) {
	env := newTestEnv(t, okPinger{})
	token := env.token(t)
	memberID := env.seedMember(t, "Alice")

	resp := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
		"amount":      "42.50",
		"date":        "2025-03-01",
		"category":    "travel",
		"assignedTo":  memberID,
		"description": "train tickets",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[expenseResponse](t, resp)
	if created.Status != string(core.StatusPending) {
		t.Errorf("new expense status = %q, want pending", created.Status)
	}
	if created.Amount != 42.5 {
		t.Errorf("amount = %v, want 42.5", created.Amount)
	}

	resp = env.do(t, http.MethodPut, "/api/expenses/"+created.ID, token, map[string]string{
		"status": "approved",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", resp.StatusCode)
	}
	approved := decodeBody[expenseResponse](t, resp)
	if approved.Status != string(core.StatusApproved) {
		t.Errorf("status after approve = %q, want approved", approved.Status)
	}

	resp = env.do(t, http.MethodPut, "/api/expenses/"+created.ID, token, map[string]string{
		"status": "cancelled",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second transition status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/api/expenses/missing", token, map[string]string{
		"status": "approved",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing expense status = %d, want 404", resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/api/expenses/"+created.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	env := newTestEnv(t, okPinger{})
	token := env.token(t)
	memberID := env.seedMember(t, "Alice")

	base := func() map[string]any {
		return map[string]any{
			"amount":      "10.00",
			"date":        "2025-03-01",
			"category":    "meals",
			"assignedTo":  memberID,
			"description": "team lunch",
		}
	}

	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"zero amount", func(m map[string]any) { m["amount"] = "0" }},
		{"negative amount", func(m map[string]any) { m["amount"] = "-5" }},
		{"bad date", func(m map[string]any) { m["date"] = "2025-02-30" }},
		{"empty category", func(m map[string]any) { m["category"] = "" }},
		{"short description", func(m map[string]any) { m["description"] = "ab" }},
		{"unknown assignee", func(m map[string]any) { m["assignedTo"] = "member-99" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)
			resp := env.do(t, http.MethodPost, "/api/expenses", token, body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	if len(env.store.expenses) != 0 {
		t.Errorf("store has %d expenses after rejected requests, want 0", len(env.store.expenses))
	}
}

func TestListExpensesFilter(t *testing.T) {
	env := newTestEnv(t, okPinger{})
	token := env.token(t)
	memberID := env.seedMember(t, "Alice")

	for i, status := range []string{"approved", "pending", "cancelled", "pending"} {
		resp := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
			"amount":      "10.00",
			"date":        fmt.Sprintf("2025-03-0%d", i+1),
			"category":    "meals",
			"assignedTo":  memberID,
			"description": "expense for filter test",
		})
		created := decodeBody[expenseResponse](t, resp)
		if status != "pending" {
			resp = env.do(t, http.MethodPut, "/api/expenses/"+created.ID, token, map[string]string{"status": status})
			resp.Body.Close()
		}
	}

	resp := env.do(t, http.MethodGet, "/api/expenses?status=pending", "", nil)
	pending := decodeBody[[]expenseResponse](t, resp)
	if len(pending) != 2 {
		t.Errorf("pending count = %d, want 2", len(pending))
	}

	resp = env.do(t, http.MethodGet, "/api/expenses", "", nil)
	all := decodeBody[[]expenseResponse](t, resp)
	if len(all) != 4 {
		t.Errorf("all count = %d, want 4", len(all))
	}

	resp = env.do(t, http.MethodGet, "/api/expenses?status=bogus", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d, want 400", resp.StatusCode)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, okPinger{})
	token := env.token(t)
	memberID := env.seedMember(t, "Alice")

	for _, status := range []string{"approved", "approved", "cancelled", "pending"} {
		resp := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
			"amount":      "10.00",
			"date":        "2025-03-01",
			"category":    "meals",
			"assignedTo":  memberID,
			"description": "expense for summary",
		})
		created := decodeBody[expenseResponse](t, resp)
		if status != "pending" {
			resp = env.do(t, http.MethodPut, "/api/expenses/"+created.ID, token, map[string]string{"status": status})
			resp.Body.Close()
		}
	}

	resp := env.do(t, http.MethodGet, "/api/summary", "", nil)
	summary := decodeBody[summaryResponse](t, resp)

	if summary.Total != 4 {
		t.Errorf("total = %d, want 4", summary.Total)
	}
	if summary.ApprovedCount != 2 || summary.CancelledCount != 1 || summary.PendingCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1",
			summary.ApprovedCount, summary.CancelledCount, summary.PendingCount)
	}
	if summary.TeamMemberCount != 1 {
		t.Errorf("team members = %d, want 1", summary.TeamMemberCount)
	}
}

func TestReportAndExport(t *testing.T) {
	env := newTestEnv(t, okPinger{})
	token := env.token(t)
	memberID := env.seedMember(t, "Alice")

	resp := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
		"amount":      "99.99",
		"date":        "2025-03-01",
		"category":    "software",
		"assignedTo":  memberID,
		"description": "editor license, one seat",
	})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/reports", "", nil)
	rows := decodeBody[[]reportRowResponse](t, resp)
	if len(rows) != 1 {
		t.Fatalf("report rows = %d, want 1", len(rows))
	}
	if rows[0].AssignedTo != "Alice" {
		t.Errorf("assignedTo = %q, want member name Alice", rows[0].AssignedTo)
	}
	if rows[0].Amount != "99.99" {
		t.Errorf("amount = %q, want 99.99", rows[0].Amount)
	}

	resp = env.do(t, http.MethodGet, "/api/reports/export", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("csv rows = %d, want header plus one", len(records))
	}
}

func TestExportNoData(t *testing.T) {
	env := newTestEnv(t, okPinger{})

	resp := env.do(t, http.MethodGet, "/api/reports/export", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty export status = %d, want 404", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/reports/export?filter=cancelled", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty filtered export status = %d, want 404", resp.StatusCode)
	}
}

func TestMutationRateLimit(t *testing.T) {
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	store := &memStore{}
	workflow := services.NewWorkflowService(store, nil, logger)
	issuer := auth.NewTokenIssuer("test-secret-0123456789", time.Hour)
	accounts := &memAccounts{users: make(map[string]storage.User)}

	server := NewServer(Config{
		RateLimit: ratelimit.Config{RequestsPerWindow: 2, Window: time.Minute},
	}, workflow, accounts, issuer, okPinger{}, logger)
	ts := httptest.NewServer(server.Handler)
	defer ts.Close()
	defer server.Shutdown(context.Background())

	// Pin the client IP so connection reuse cannot skew the counts.
	send := func(method, path string) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}

	for i := 0; i < 2; i++ {
		resp := send(http.MethodPost, "/api/login")
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}

	resp := send(http.MethodPost, "/api/login")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("limited response missing Retry-After header")
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("limited response Content-Type = %q, want application/json", ct)
	}
	resp.Body.Close()

	getResp := send(http.MethodGet, "/api/expenses")
	getResp.Body.Close()
	if getResp.StatusCode == http.StatusTooManyRequests {
		t.Error("GET requests must not be rate limited")
	}
}
