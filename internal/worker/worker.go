// Package worker drains approved expenses into the external ledger. It
// listens on the export queue and additionally sweeps storage for
// expenses whose announcement never arrived.
package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"expenseflow/internal/amqp"
	"expenseflow/internal/core"
	"expenseflow/internal/log"
	"expenseflow/internal/sheets"
)

// Store is the persistence surface the worker needs.
type Store interface {
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	GetTeamMember(ctx context.Context, id string) (core.TeamMember, error)
	ListPendingExports(ctx context.Context, limit int) ([]core.Expense, error)
	MarkExported(ctx context.Context, id, sheetsRef string) error
	MarkExportError(ctx context.Context, id, msg string) error
}

// Consumer delivers export announcements from the broker.
type Consumer interface {
	ConsumeExpenseExports(ctx context.Context, handler func(*amqp.ExpenseExportMessage) error) error
}

type Config struct {
	BatchSize    int
	ScanInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    10,
		ScanInterval: 30 * time.Second,
	}
}

type Worker struct {
	store    Store
	ledger   sheets.LedgerAppender
	consumer Consumer
	logger   *log.Logger

	batchSize    int
	scanInterval time.Duration
}

// NewWorker wires the export worker. consumer may be nil when no broker
// is configured; the periodic scan then carries exports alone.
func NewWorker(config Config, store Store, ledger sheets.LedgerAppender, consumer Consumer, logger *log.Logger) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultConfig().ScanInterval
	}
	return &Worker{
		store:        store,
		ledger:       ledger,
		consumer:     consumer,
		logger:       logger.WithComponent(log.ComponentWorker),
		batchSize:    config.BatchSize,
		scanInterval: config.ScanInterval,
	}
}

// Run blocks until ctx is cancelled, consuming the export queue and
// periodically sweeping storage for missed exports.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeExpenseExports(ctx, func(msg *amqp.ExpenseExportMessage) error {
				return w.handleMessage(ctx, msg)
			})
		})
	}

	g.Go(func() error {
		return w.runScanLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) runScanLoop(ctx context.Context) error {
	// Catch up on anything that accumulated while the worker was down.
	w.scan(ctx)

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan exports one batch of expenses still waiting on the ledger. Errors
// are recorded per expense and never stop the sweep.
func (w *Worker) scan(ctx context.Context) {
	expenses, err := w.store.ListPendingExports(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "listing pending exports failed", log.FieldError, err)
		return
	}
	if len(expenses) == 0 {
		return
	}

	w.logger.InfoContext(ctx, "exporting pending expenses", log.FieldCount, len(expenses))
	for _, e := range expenses {
		if err := w.exportExpense(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "export failed",
				log.FieldError, err,
				log.FieldExpenseID, e.ID)
		}
	}
}

// handleMessage processes one queue delivery. A missing expense is
// dropped rather than requeued; it was deleted after approval.
func (w *Worker) handleMessage(ctx context.Context, msg *amqp.ExpenseExportMessage) error {
	expense, err := w.store.GetExpense(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "expense gone before export, dropping message",
			log.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return err
	}
	return w.exportExpense(ctx, expense)
}

func (w *Worker) exportExpense(ctx context.Context, e core.Expense) error {
	if e.Status != core.StatusApproved {
		w.logger.DebugContext(ctx, "skipping export of non-approved expense",
			log.FieldExpenseID, e.ID,
			log.FieldStatus, string(e.Status))
		return nil
	}

	assignedTo := e.AssignedTo
	if member, err := w.store.GetTeamMember(ctx, e.AssignedTo); err == nil {
		assignedTo = member.Name
	}

	ref, err := w.ledger.Append(ctx, sheets.LedgerEntry{
		ExpenseID:   e.ID,
		Date:        e.Date.String(),
		Category:    e.Category,
		Amount:      e.Amount.String(),
		AssignedTo:  assignedTo,
		Description: e.Description,
	})
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, e.ID, err.Error()); markErr != nil {
			w.logger.ErrorContext(ctx, "recording export error failed",
				log.FieldError, markErr,
				log.FieldExpenseID, e.ID)
		}
		return err
	}

	if err := w.store.MarkExported(ctx, e.ID, ref); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "expense exported",
		log.FieldExpenseID, e.ID,
		log.FieldSheetsRef, ref)
	return nil
}
