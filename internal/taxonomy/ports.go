// Package taxonomy defines the secondary stores expense categories are loaded from.
package taxonomy

import (
	"context"

	"trackitall/internal/core"
)

// CategoryReader loads the whole category set from a secondary store.
type CategoryReader interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
}
