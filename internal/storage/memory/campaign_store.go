package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// CreateCampaign stores a new campaign.
func (s *Store) CreateCampaign(_ context.Context, campaign scraping.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.campaigns[campaign.ID]; exists {
		return fmt.Errorf("campaign %s: %w", campaign.ID, scraping.ErrConflict)
	}
	s.campaigns[campaign.ID] = campaign
	return nil
}

// GetCampaign fetches a campaign by ID.
func (s *Store) GetCampaign(_ context.Context, campaignID string) (scraping.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return scraping.Campaign{}, scraping.ErrNotFound
	}
	return c, nil
}

// ListCampaigns returns a user's campaigns, newest first.
func (s *Store) ListCampaigns(_ context.Context, userID string) ([]scraping.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraping.Campaign, 0)
	for _, c := range s.campaigns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateCampaignSearchType records the search style of the campaign's jobs.
func (s *Store) UpdateCampaignSearchType(_ context.Context, campaignID string, searchType scraping.SearchType, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return scraping.ErrNotFound
	}
	c.SearchType = searchType
	c.UpdatedAt = at
	s.campaigns[campaignID] = c
	return nil
}

// CountCampaigns counts every campaign the user has created, archived included.
func (s *Store) CountCampaigns(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.campaigns {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

// CountCreatorsSince sums creators delivered to jobs the user created at or after since.
func (s *Store) CountCreatorsSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id, job := range s.jobs {
		if job.UserID != userID || job.CreatedAt.Before(since) {
			continue
		}
		for _, r := range s.results[id] {
			n += len(r.Creators)
		}
	}
	return n, nil
}
