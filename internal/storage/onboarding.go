package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// OnboardingRepository records which users already received the welcome email.
type OnboardingRepository struct {
	db *DB
}

func NewOnboardingRepository(db *DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

func (r *OnboardingRepository) IsOnboarded(ctx context.Context, objectID string) (bool, error) {
	var one int
	err := r.db.db.QueryRowContext(ctx,
		`SELECT 1 FROM onboarded_users WHERE object_id = ?`, objectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check onboarding for %s: %w", objectID, err)
	}
	return true, nil
}

// MarkOnboarded is idempotent.
func (r *OnboardingRepository) MarkOnboarded(ctx context.Context, objectID, email string) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO onboarded_users (object_id, email) VALUES (?, ?)
		 ON CONFLICT (object_id) DO NOTHING`,
		objectID, email)
	if err != nil {
		return fmt.Errorf("mark %s onboarded: %w", objectID, err)
	}
	return nil
}
