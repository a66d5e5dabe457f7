// Package services hosts the expense approval workflow on top of
// storage, the message broker and the report renderer.
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"expenseflow/internal/amqp"
	"expenseflow/internal/cache"
	"expenseflow/internal/core"
	"expenseflow/internal/log"
	"expenseflow/internal/report"
)

// Store is the persistence surface the workflow needs.
type Store interface {
	CreateTeamMember(ctx context.Context, m core.TeamMember) (core.TeamMember, error)
	GetTeamMember(ctx context.Context, id string) (core.TeamMember, error)
	ListTeamMembers(ctx context.Context) ([]core.TeamMember, error)
	CountTeamMembers(ctx context.Context) (int, error)

	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, filter string) ([]core.Expense, error)
	UpdateExpenseStatus(ctx context.Context, id string, to core.Status) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// ExportPublisher announces approved expenses to the export worker.
type ExportPublisher interface {
	PublishExpenseExport(ctx context.Context, msg *amqp.ExpenseExportMessage) error
}

const summaryCacheKey = "summary"

type WorkflowService struct {
	store        Store
	publisher    ExportPublisher
	logger       *log.Logger
	summaryCache *cache.LRUCache[core.Summary]
}

// NewWorkflowService wires the workflow. publisher may be nil when no
// broker is configured; export then relies on the worker's periodic
// scan alone.
func NewWorkflowService(store Store, publisher ExportPublisher, logger *log.Logger) *WorkflowService {
	return &WorkflowService{
		store:        store,
		publisher:    publisher,
		logger:       logger.WithComponent(log.ComponentWorkflow),
		summaryCache: cache.NewLRUCache[core.Summary](4, 30*time.Second),
	}
}

// SummaryCache exposes the cache for expiry sweeps.
func (s *WorkflowService) SummaryCache() *cache.LRUCache[core.Summary] {
	return s.summaryCache
}

// CreateTeamMember validates and stores a new member.
func (s *WorkflowService) CreateTeamMember(ctx context.Context, m core.TeamMember) (core.TeamMember, error) {
	if err := m.Validate(); err != nil {
		return core.TeamMember{}, err
	}
	created, err := s.store.CreateTeamMember(ctx, m)
	if err != nil {
		return core.TeamMember{}, err
	}
	s.summaryCache.Clear()
	return created, nil
}

func (s *WorkflowService) ListTeamMembers(ctx context.Context) ([]core.TeamMember, error) {
	return s.store.ListTeamMembers(ctx)
}

// CreateExpense validates the record, checks the assignee exists and
// stores the expense as pending. Whatever status the caller supplied is
// ignored.
func (s *WorkflowService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Status = core.StatusPending
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := s.store.GetTeamMember(ctx, e.AssignedTo); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Expense{}, &core.ValidationError{Field: "assignedTo", Reason: "unknown team member"}
		}
		return core.Expense{}, err
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}
	s.summaryCache.Clear()
	return created, nil
}

// Transition moves a pending expense into a terminal state. Approval
// additionally announces the expense to the export worker; a broker
// failure is logged but never fails the transition.
func (s *WorkflowService) Transition(ctx context.Context, id string, to core.Status) (core.Expense, error) {
	if err := core.CheckTransition(core.StatusPending, to); err != nil {
		return core.Expense{}, err
	}

	updated, err := s.store.UpdateExpenseStatus(ctx, id, to)
	if err != nil {
		return core.Expense{}, err
	}
	s.summaryCache.Clear()

	if to == core.StatusApproved && s.publisher != nil {
		msg := amqp.NewExpenseExportMessage(updated.ID, updated.Status)
		if err := s.publisher.PublishExpenseExport(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "export publish failed, periodic scan will pick it up",
				log.FieldError, err,
				log.FieldExpenseID, updated.ID)
		}
	}
	return updated, nil
}

func (s *WorkflowService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.summaryCache.Clear()
	return nil
}

func (s *WorkflowService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

func (s *WorkflowService) ListExpenses(ctx context.Context, filter string) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, filter)
}

// Summary returns the dashboard aggregate, cached briefly between
// mutations.
func (s *WorkflowService) Summary(ctx context.Context) (core.Summary, error) {
	if cached, ok := s.summaryCache.Get(summaryCacheKey); ok {
		return cached, nil
	}

	expenses, err := s.store.ListExpenses(ctx, core.FilterAll)
	if err != nil {
		return core.Summary{}, err
	}
	members, err := s.store.CountTeamMembers(ctx)
	if err != nil {
		return core.Summary{}, err
	}

	summary := core.Summarize(expenses, members)
	s.summaryCache.Set(summaryCacheKey, summary)
	return summary, nil
}

// Report renders the expenses matching filter into display rows.
func (s *WorkflowService) Report(ctx context.Context, filter string) ([]report.Row, error) {
	expenses, err := s.store.ListExpenses(ctx, filter)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListTeamMembers(ctx)
	if err != nil {
		return nil, err
	}
	// Expenses are already filtered; render all of them.
	return report.Rows(members, expenses, core.FilterAll)
}

// ExportCSV writes the filtered report to w. An empty report returns
// report.ErrNoData without writing.
func (s *WorkflowService) ExportCSV(ctx context.Context, w io.Writer, filter string) error {
	rows, err := s.Report(ctx, filter)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, rows)
}
