package storage

import (
	"context"
	"fmt"
	"time"

	"trackitall/internal/core"
)

// ExpensesContainer is the container holding expense documents.
const ExpensesContainer = "expenses"

// expenseDocument is the persisted shape of an expense. The resolved
// category is derived at read time and never stored.
type expenseDocument struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Date        time.Time `json:"date"`
	// DateMillis is the sort and range key.
	DateMillis  int64     `json:"dateMillis"`
	AmountCents int64     `json:"amountCents"`
	Description string    `json:"description"`
	CategoryID  int       `json:"categoryId"`
	ReceiptID   *string   `json:"receiptId,omitempty"`
}

func toDocument(e core.Expense) expenseDocument {
	date := e.Date.UTC()
	return expenseDocument{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Date:        date,
		DateMillis:  date.UnixMilli(),
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		CategoryID:  e.CategoryID,
		ReceiptID:   e.ReceiptID,
	}
}

func (d expenseDocument) toExpense() core.Expense {
	return core.Expense{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Date:        d.Date,
		Amount:      core.Money{Cents: d.AmountCents},
		Description: d.Description,
		CategoryID:  d.CategoryID,
		ReceiptID:   d.ReceiptID,
	}
}

// ExpenseRepository stores expenses partitioned by owner id.
type ExpenseRepository struct {
	container *Container
}

func NewExpenseRepository(db *DB) *ExpenseRepository {
	return &ExpenseRepository{container: NewContainer(db, ExpensesContainer)}
}

// Create persists a new expense and returns its etag.
func (r *ExpenseRepository) Create(ctx context.Context, e core.Expense) (string, error) {
	etag, err := r.container.Create(ctx, e.OwnerID, e.ID, toDocument(e))
	if err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}
	return etag, nil
}

// Get returns the expense and its etag, or ErrNotFound.
func (r *ExpenseRepository) Get(ctx context.Context, ownerID, id string) (core.Expense, string, error) {
	doc, err := r.container.Read(ctx, id, ownerID)
	if err != nil {
		return core.Expense{}, "", fmt.Errorf("get expense: %w", err)
	}
	var d expenseDocument
	if err := doc.Decode(&d); err != nil {
		return core.Expense{}, "", err
	}
	return d.toExpense(), doc.ETag, nil
}

// Replace overwrites the expense when ifMatch equals the stored etag.
func (r *ExpenseRepository) Replace(ctx context.Context, e core.Expense, ifMatch string) (string, error) {
	etag, err := r.container.Replace(ctx, e.ID, e.OwnerID, toDocument(e), ifMatch)
	if err != nil {
		return "", fmt.Errorf("replace expense: %w", err)
	}
	return etag, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, ownerID, id string) error {
	if err := r.container.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's expenses, newest first.
func (r *ExpenseRepository) ListByOwner(ctx context.Context, ownerID string) ([]core.Expense, error) {
	return r.query(ctx, Query{
		PartitionKey: ownerID,
		OrderBy:      "$.dateMillis",
		Descending:   true,
	})
}

// ListInRange returns the owner's expenses dated within [start, end].
func (r *ExpenseRepository) ListInRange(ctx context.Context, ownerID string, start, end time.Time) ([]core.Expense, error) {
	return r.query(ctx, Query{
		PartitionKey: ownerID,
		Filters: []Filter{
			{Path: "$.dateMillis", Op: ">=", Value: start.UTC().UnixMilli()},
			{Path: "$.dateMillis", Op: "<=", Value: end.UTC().UnixMilli()},
		},
		OrderBy: "$.dateMillis",
	})
}

func (r *ExpenseRepository) query(ctx context.Context, q Query) ([]core.Expense, error) {
	docs, err := r.container.QueryAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	expenses := make([]core.Expense, 0, len(docs))
	for _, doc := range docs {
		var d expenseDocument
		if err := doc.Decode(&d); err != nil {
			return nil, err
		}
		expenses = append(expenses, d.toExpense())
	}
	return expenses, nil
}
