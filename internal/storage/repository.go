// Package storage persists users, team members and expenses in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"expenseflow/internal/core"
	"expenseflow/internal/log"
)

// Export lifecycle of an approved expense on its way to the ledger.
const (
	ExportStateNone    = "none"
	ExportStatePending = "pending"
	ExportStateSynced  = "synced"
	ExportStateError   = "error"
)

// User is an API account. Only the bcrypt hash of the password is stored.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Repository struct {
	db     *sql.DB
	logger *log.Logger
}

// NewRepository opens (creating if needed) the database at dbPath and
// runs pending migrations.
func NewRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser stores a new account. A taken username yields ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, core.ErrConflict
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	r.logger.InfoContext(ctx, "user created",
		log.FieldOperation, log.OpCreate,
		log.FieldUsername, u.Username)
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at
		 FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, core.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// CreateTeamMember stores a member and assigns its ID.
func (r *Repository) CreateTeamMember(ctx context.Context, m core.TeamMember) (core.TeamMember, error) {
	m.ID = uuid.NewString()
	m.CreatedAt = now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO team_members (id, name, age, phone, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Age, m.Phone, formatTime(m.CreatedAt))
	if err != nil {
		return core.TeamMember{}, fmt.Errorf("insert team member: %w", err)
	}

	r.logger.InfoContext(ctx, "team member created",
		log.FieldOperation, log.OpCreate,
		log.FieldMemberID, m.ID)
	return m, nil
}

func (r *Repository) GetTeamMember(ctx context.Context, id string) (core.TeamMember, error) {
	var m core.TeamMember
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, age, phone, created_at
		 FROM team_members WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Age, &m.Phone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TeamMember{}, core.ErrNotFound
	}
	if err != nil {
		return core.TeamMember{}, fmt.Errorf("get team member: %w", err)
	}
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

func (r *Repository) ListTeamMembers(ctx context.Context) ([]core.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, age, phone, created_at
		 FROM team_members ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var members []core.TeamMember
	for rows.Next() {
		var m core.TeamMember
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Name, &m.Age, &m.Phone, &createdAt); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) CountTeamMembers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count team members: %w", err)
	}
	return n, nil
}

const expenseColumns = `id, amount_cents, date, category, assigned_to, description, status, created_at, updated_at`

func scanExpense(scan func(dest ...any) error) (core.Expense, error) {
	var e core.Expense
	var date, createdAt, updatedAt string
	err := scan(&e.ID, &e.Amount.Cents, &date, &e.Category, &e.AssignedTo,
		&e.Description, &e.Status, &createdAt, &updatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	e.Date = d
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// CreateExpense stores an expense and assigns its ID.
func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = now()
	e.UpdatedAt = e.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, amount_cents, date, category, assigned_to, description, status, created_at, updated_at, export_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Amount.Cents, e.Date.String(), e.Category, e.AssignedTo,
		e.Description, string(e.Status), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
		ExportStateNone)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	r.logger.InfoContext(ctx, "expense created",
		log.FieldOperation, log.OpCreate,
		log.FieldExpenseID, e.ID,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldCategory, e.Category)
	return e, nil
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns expenses matching filter ("" or "all" selects
// everything). The pending view comes back newest first with equal dates
// kept in insertion order; other views keep plain insertion order.
func (r *Repository) ListExpenses(ctx context.Context, filter string) ([]core.Expense, error) {
	if !core.ValidFilter(filter) {
		return nil, &core.ValidationError{Field: "filter", Reason: "unknown status filter"}
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	var args []any
	switch filter {
	case "", core.FilterAll:
		query += ` ORDER BY rowid ASC`
	case string(core.StatusPending):
		query += ` WHERE status = ? ORDER BY date DESC, rowid ASC`
		args = append(args, filter)
	default:
		query += ` WHERE status = ? ORDER BY rowid ASC`
		args = append(args, filter)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// UpdateExpenseStatus moves a pending expense into a terminal state using
// a compare-and-swap on the current status. When the expense exists but
// is no longer pending the update affects zero rows and the caller gets
// ErrInvalidTransition; a missing expense yields ErrNotFound. Approval
// also queues the expense for ledger export.
func (r *Repository) UpdateExpenseStatus(ctx context.Context, id string, to core.Status) (core.Expense, error) {
	if err := core.CheckTransition(core.StatusPending, to); err != nil {
		return core.Expense{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses
		 SET status = ?,
		     updated_at = ?,
		     export_state = CASE WHEN ? = 'approved' THEN 'pending' ELSE export_state END
		 WHERE id = ? AND status = 'pending'`,
		string(to), formatTime(now()), string(to), id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.Expense{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race or never existed; a follow-up read tells which.
		if _, err := r.GetExpense(ctx, id); err != nil {
			return core.Expense{}, err
		}
		return core.Expense{}, core.ErrInvalidTransition
	}

	r.logger.InfoContext(ctx, "expense status updated",
		log.FieldOperation, log.OpTransition,
		log.FieldExpenseID, id,
		log.FieldStatus, string(to))
	return r.GetExpense(ctx, id)
}

func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}

	r.logger.InfoContext(ctx, "expense deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldExpenseID, id)
	return nil
}

// ListPendingExports returns approved expenses still waiting for ledger
// export, oldest first. Expenses whose last append failed are included
// so the sweep retries them.
func (r *Repository) ListPendingExports(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE status = 'approved' AND export_state IN ('pending', 'error')
		 ORDER BY rowid ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// MarkExported records a successful ledger append for the expense.
func (r *Repository) MarkExported(ctx context.Context, id, sheetsRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses
		 SET export_state = ?, export_error = '', sheets_ref = ?, exported_at = ?
		 WHERE id = ?`,
		ExportStateSynced, sheetsRef, formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// MarkExportError records a failed ledger append. The expense stays in
// the error state until a later scan retries it.
func (r *Repository) MarkExportError(ctx context.Context, id, msg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_state = ?, export_error = ? WHERE id = ?`,
		ExportStateError, msg, id)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ExportState reports the export bookkeeping for one expense.
func (r *Repository) ExportState(ctx context.Context, id string) (state, errMsg, ref string, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT export_state, export_error, sheets_ref FROM expenses WHERE id = ?`, id).
		Scan(&state, &errMsg, &ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", "", core.ErrNotFound
	}
	if err != nil {
		return "", "", "", fmt.Errorf("export state: %w", err)
	}
	return state, errMsg, ref, nil
}

// Ping reports whether the database connection is healthy.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
