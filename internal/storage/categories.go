package storage

import (
	"context"
	"fmt"

	"trackitall/internal/core"
)

// CategoryRepository reads the category table.
type CategoryRepository struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListCategories returns every category ordered by id.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// UpsertCategory inserts or renames a category.
func (r *CategoryRepository) UpsertCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("upsert category %d: %w", c.ID, err)
	}
	return nil
}
