package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// GetUser fetches a user by ID.
func (s *Store) GetUser(_ context.Context, userID string) (scraping.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return scraping.User{}, scraping.ErrNotFound
	}
	return u, nil
}

// CreateUser inserts a user. IDs and emails (case-insensitive) are unique.
func (s *Store) CreateUser(_ context.Context, user scraping.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, scraping.ErrConflict)
	}
	if user.Email != "" {
		for _, existing := range s.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return fmt.Errorf("email %s: %w", user.Email, scraping.ErrConflict)
			}
		}
	}
	s.users[user.ID] = user
	return nil
}

// MarkUserDeleted soft-deletes a user.
func (s *Store) MarkUserDeleted(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return scraping.ErrNotFound
	}
	if u.DeletedAt == nil {
		u.DeletedAt = pointerTime(at)
	}
	u.UpdatedAt = at
	s.users[userID] = u
	return nil
}
