package services

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

// ExpenseService owns expense CRUD, receipt linkage and reporting for a
// single owner partition at a time. Every per-expense operation checks the
// caller's ownership before touching the store.
type ExpenseService struct {
	store      ExpenseStore
	categories CategoryLister
	clock      clock.Clock
	metrics    *metrics.Collector
	logger     *applog.Logger
}

func NewExpenseService(store ExpenseStore, categories CategoryLister, clk clock.Clock, m *metrics.Collector, logger *applog.Logger) *ExpenseService {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExpenseService{
		store:      store,
		categories: categories,
		clock:      clk,
		metrics:    m,
		logger:     logger.WithComponent(applog.ComponentExpense),
	}
}

// AddExpense stores a new expense dated now. The category must be part of
// the cached category set; a cold cache rejects every category.
func (s *ExpenseService) AddExpense(ctx context.Context, p core.Principal, ownerID string, in core.NewExpense) (_ *core.Expense, err error) {
	defer func() { s.metrics.ExpenseOp(applog.OpCreate, err) }()

	if err := core.Authorize(p, ownerID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	cats := s.categories.Categories()
	if core.FindCategory(cats, in.CategoryID) == nil {
		s.logger.WarnContext(ctx, "Rejected unknown category",
			applog.FieldOwnerID, ownerID,
			applog.FieldCategoryID, in.CategoryID,
			applog.FieldCategoryCount, len(cats))
		return nil, core.ErrInvalidCategory
	}

	e := core.Expense{
		ID:          core.NewID(),
		OwnerID:     ownerID,
		Date:        s.clock.Now().UTC(),
		Amount:      in.Amount,
		Description: in.Description,
		CategoryID:  in.CategoryID,
	}
	if _, err := s.store.Create(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "Failed to create expense",
			applog.NewFields().WithExpense(ownerID, e.ID, e.Amount.Cents, e.CategoryID).WithError(err).ToSlice()...)
		return nil, storageErr(err)
	}

	e.ResolveCategory(cats)
	s.logger.InfoContext(ctx, "Expense created",
		applog.NewFields().WithExpense(ownerID, e.ID, e.Amount.Cents, e.CategoryID).ToSlice()...)
	return &e, nil
}

// UpdateExpense applies patch to the stored expense. The write is
// conditional on the etag read, so a concurrent update yields ErrConflict.
func (s *ExpenseService) UpdateExpense(ctx context.Context, p core.Principal, ownerID, id string, patch core.ExpensePatch) (_ *core.Expense, err error) {
	defer func() { s.metrics.ExpenseOp(applog.OpUpdate, err) }()

	if err := core.Authorize(p, ownerID); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	cats := s.categories.Categories()
	if catID, ok := patch.CategoryID.Get(); ok && core.FindCategory(cats, catID) == nil {
		return nil, core.ErrInvalidCategory
	}

	e, etag, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, s.logStoreErr(ctx, "Failed to read expense for update", ownerID, id, err)
	}
	if patch.IsEmpty() {
		e.ResolveCategory(cats)
		return &e, nil
	}

	patch.Apply(&e)
	if _, err := s.store.Replace(ctx, e, etag); err != nil {
		return nil, s.logStoreErr(ctx, "Failed to update expense", ownerID, id, err)
	}

	e.ResolveCategory(cats)
	s.logger.InfoContext(ctx, "Expense updated",
		applog.NewFields().WithExpense(ownerID, e.ID, e.Amount.Cents, e.CategoryID).ToSlice()...)
	return &e, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, p core.Principal, ownerID, id string) (err error) {
	defer func() { s.metrics.ExpenseOp(applog.OpDelete, err) }()

	if err := core.Authorize(p, ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ownerID, id); err != nil {
		return s.logStoreErr(ctx, "Failed to delete expense", ownerID, id, err)
	}
	s.logger.InfoContext(ctx, "Expense deleted", applog.FieldOwnerID, ownerID, applog.FieldExpenseID, id)
	return nil
}

// GetExpense returns nil without error when the expense does not exist.
func (s *ExpenseService) GetExpense(ctx context.Context, p core.Principal, ownerID, id string) (*core.Expense, error) {
	if err := core.Authorize(p, ownerID); err != nil {
		return nil, err
	}
	e, _, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		mapped := storageErr(err)
		if errors.Is(mapped, core.ErrNotFound) {
			return nil, nil
		}
		return nil, s.logStoreErr(ctx, "Failed to read expense", ownerID, id, err)
	}
	e.ResolveCategory(s.categories.Categories())
	return &e, nil
}

// ListExpenses returns the owner's expenses, newest first, each with its
// category resolved from the cache.
func (s *ExpenseService) ListExpenses(ctx context.Context, p core.Principal, ownerID string) (_ []core.Expense, err error) {
	defer func() { s.metrics.ExpenseOp(applog.OpList, err) }()

	if err := core.Authorize(p, ownerID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list expenses", applog.FieldOwnerID, ownerID, applog.FieldError, err)
		return nil, storageErr(err)
	}
	cats := s.categories.Categories()
	for i := range expenses {
		expenses[i].ResolveCategory(cats)
	}
	return expenses, nil
}

// GetCategories returns the cached categories; empty while the cache is cold.
func (s *ExpenseService) GetCategories() []core.Category {
	return s.categories.Categories()
}

// SetReceiptID links receiptID to the expense, or unlinks it when nil.
func (s *ExpenseService) SetReceiptID(ctx context.Context, p core.Principal, ownerID, id string, receiptID *string) error {
	if err := core.Authorize(p, ownerID); err != nil {
		return err
	}
	e, etag, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return s.logStoreErr(ctx, "Failed to read expense for receipt link", ownerID, id, err)
	}
	e.ReceiptID = receiptID
	if _, err := s.store.Replace(ctx, e, etag); err != nil {
		return s.logStoreErr(ctx, "Failed to link receipt", ownerID, id, err)
	}
	return nil
}

// GenerateReport aggregates the owner's expenses dated within [start, end].
// On failure the returned report has Successful set to false and the error
// describes the cause.
func (s *ExpenseService) GenerateReport(ctx context.Context, p core.Principal, ownerID string, start, end time.Time) (core.Report, error) {
	var err error
	defer func() { s.metrics.ExpenseOp(applog.OpReport, err) }()

	if err = core.Authorize(p, ownerID); err != nil {
		return core.FailedReport(start, end, err), err
	}
	if start.After(end) {
		err = core.ErrInvalidRange
		return core.FailedReport(start, end, err), err
	}

	expenses, storeErr := s.store.ListInRange(ctx, ownerID, start, end)
	if storeErr != nil {
		s.logger.ErrorContext(ctx, "Failed to load expenses for report",
			applog.FieldOwnerID, ownerID,
			applog.FieldStartDate, start,
			applog.FieldEndDate, end,
			applog.FieldError, storeErr)
		err = storageErr(storeErr)
		return core.FailedReport(start, end, err), err
	}

	cats := s.categories.Categories()
	for i := range expenses {
		expenses[i].ResolveCategory(cats)
	}
	report := core.BuildReport(start, end, expenses, cats)
	s.logger.DebugContext(ctx, "Report generated",
		applog.FieldOwnerID, ownerID,
		"expense_count", report.ExpenseCount,
		"total_cents", report.TotalAmount.Cents)
	return report, nil
}

func (s *ExpenseService) logStoreErr(ctx context.Context, msg, ownerID, id string, err error) error {
	mapped := storageErr(err)
	switch {
	case errors.Is(mapped, core.ErrNotFound):
		s.logger.DebugContext(ctx, "Expense not found", applog.FieldOwnerID, ownerID, applog.FieldExpenseID, id)
	case errors.Is(mapped, core.ErrConflict):
		s.logger.WarnContext(ctx, msg, applog.FieldOwnerID, ownerID, applog.FieldExpenseID, id, applog.FieldError, err)
	default:
		s.logger.ErrorContext(ctx, msg, applog.FieldOwnerID, ownerID, applog.FieldExpenseID, id, applog.FieldError, err)
	}
	return mapped
}
