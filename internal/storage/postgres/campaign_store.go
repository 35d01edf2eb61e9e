package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const campaignColumns = `id, user_id, name, COALESCE(description, ''), COALESCE(search_type, ''), status, created_at, updated_at`

const insertCampaignSQL = `INSERT INTO campaigns (id, user_id, name, description, search_type, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const selectCampaignSQL = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

const listCampaignsSQL = `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

const updateCampaignSearchTypeSQL = `UPDATE campaigns SET search_type = $2, updated_at = $3 WHERE id = $1`

const countCampaignsSQL = `SELECT COUNT(*) FROM campaigns WHERE user_id = $1`

const countCreatorsSinceSQL = `SELECT COALESCE(SUM(jsonb_array_length(r.creators)), 0)
FROM scraping_results r
JOIN scraping_jobs j ON j.id = r.job_id
WHERE j.user_id = $1 AND j.created_at >= $2`

// CreateCampaign inserts a campaign row.
func (s *Store) CreateCampaign(ctx context.Context, campaign scraping.Campaign) error {
	_, err := s.pool.Exec(ctx, insertCampaignSQL,
		campaign.ID,
		campaign.UserID,
		campaign.Name,
		nullString(campaign.Description),
		nullString(string(campaign.SearchType)),
		string(campaign.Status),
		campaign.CreatedAt,
		campaign.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("campaign %s: %w", campaign.ID, scraping.ErrConflict)
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetCampaign fetches a campaign by ID.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (scraping.Campaign, error) {
	c, err := scanCampaign(s.pool.QueryRow(ctx, selectCampaignSQL, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraping.Campaign{}, scraping.ErrNotFound
		}
		return scraping.Campaign{}, fmt.Errorf("select campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns a user's campaigns, newest first.
func (s *Store) ListCampaigns(ctx context.Context, userID string) ([]scraping.Campaign, error) {
	rows, err := s.pool.Query(ctx, listCampaignsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()
	out := make([]scraping.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return out, nil
}

// UpdateCampaignSearchType records the search style of the campaign's jobs.
func (s *Store) UpdateCampaignSearchType(ctx context.Context, campaignID string, searchType scraping.SearchType, at time.Time) error {
	tag, err := s.pool.Exec(ctx, updateCampaignSearchTypeSQL, campaignID, string(searchType), at)
	if err != nil {
		return fmt.Errorf("update campaign search type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraping.ErrNotFound
	}
	return nil
}

// CountCampaigns counts every campaign the user has created, archived included.
func (s *Store) CountCampaigns(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, countCampaignsSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

// CountCreatorsSince sums creators delivered to jobs the user created at or after since.
func (s *Store) CountCreatorsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, countCreatorsSinceSQL, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count creators: %w", err)
	}
	return n, nil
}

func scanCampaign(row pgx.Row) (scraping.Campaign, error) {
	var (
		c          scraping.Campaign
		searchType string
		status     string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &searchType, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return scraping.Campaign{}, err
	}
	c.SearchType = scraping.SearchType(searchType)
	c.Status = scraping.CampaignStatus(status)
	return c, nil
}
