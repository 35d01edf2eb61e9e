package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const selectUserSQL = `SELECT id, COALESCE(email, ''), plan, trial_ends_at, deleted_at, created_at, updated_at
FROM users WHERE id = $1`

// Conflicts on id or on the lower(email) index both mean the user exists.
const insertUserSQL = `INSERT INTO users (id, email, plan, trial_ends_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`

const markUserDeletedSQL = `UPDATE users SET deleted_at = COALESCE(deleted_at, $2), updated_at = $2 WHERE id = $1`

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (scraping.User, error) {
	var u scraping.User
	err := s.pool.QueryRow(ctx, selectUserSQL, userID).Scan(
		&u.ID, &u.Email, &u.Plan, &u.TrialEndsAt, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraping.User{}, scraping.ErrNotFound
		}
		return scraping.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user. An existing id or email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user scraping.User) error {
	tag, err := s.pool.Exec(ctx, insertUserSQL,
		user.ID,
		nullString(user.Email),
		user.Plan,
		user.TrialEndsAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", user.ID, scraping.ErrConflict)
	}
	return nil
}

// MarkUserDeleted soft-deletes a user. The first deletion time is kept.
func (s *Store) MarkUserDeleted(ctx context.Context, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, markUserDeletedSQL, userID, at)
	if err != nil {
		return fmt.Errorf("mark user deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraping.ErrNotFound
	}
	return nil
}
