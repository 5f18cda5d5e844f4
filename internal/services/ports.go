package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"trackitall/internal/core"
	"trackitall/internal/storage"
)

// ExpenseStore persists expenses partitioned by owner. Get and Replace
// carry the record etag for conditional writes.
type ExpenseStore interface {
	Create(ctx context.Context, e core.Expense) (string, error)
	Get(ctx context.Context, ownerID, id string) (core.Expense, string, error)
	Replace(ctx context.Context, e core.Expense, ifMatch string) (string, error)
	Delete(ctx context.Context, ownerID, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]core.Expense, error)
	ListInRange(ctx context.Context, ownerID string, start, end time.Time) ([]core.Expense, error)
}

// BlobStore holds receipt files.
type BlobStore interface {
	Upload(ctx context.Context, name string, r io.Reader, contentType string) error
	DeleteIfExists(ctx context.Context, name string) (bool, error)
	Exists(ctx context.Context, name string) (bool, error)
	SignedReadURL(ctx context.Context, name string, validity time.Duration) (string, error)
}

// QueueSender publishes an opaque message body to a named queue.
type QueueSender interface {
	Send(ctx context.Context, queue string, body []byte) error
}

// OnboardingStore tracks which users already received the welcome email.
type OnboardingStore interface {
	IsOnboarded(ctx context.Context, objectID string) (bool, error)
	MarkOnboarded(ctx context.Context, objectID, email string) error
}

// CategoryLister returns the currently cached categories, possibly empty.
type CategoryLister interface {
	Categories() []core.Category
}

// storageErr maps a store error onto the core error kinds. Driver errors
// are flattened so callers only see ErrStorageUnavailable.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return core.ErrNotFound
	case errors.Is(err, storage.ErrPreconditionFailed):
		return core.ErrConflict
	default:
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
}

func blobErr(err error) error {
	return fmt.Errorf("%w: %v", core.ErrBlobUnavailable, err)
}
