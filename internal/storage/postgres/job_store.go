package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const jobColumns = `id, user_id, COALESCE(campaign_id, ''), platform, keywords, COALESCE(target_username, ''),
	target_results, status, processed_results, progress, COALESCE(cursor, ''), timeout_at, search_params,
	COALESCE(error, ''), created_at, updated_at, started_at, completed_at`

const insertJobSQL = `INSERT INTO scraping_jobs (
	id, user_id, campaign_id, platform, keywords, target_username, target_results, status,
	processed_results, progress, timeout_at, search_params, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const selectJobSQL = `SELECT ` + jobColumns + ` FROM scraping_jobs WHERE id = $1`

const markTimedOutSQL = `UPDATE scraping_jobs
SET status = 'timeout', error = $2, completed_at = $3, updated_at = $3
WHERE id = $1 AND status IN ('pending', 'processing')
RETURNING ` + jobColumns

const updateProgressSQL = `UPDATE scraping_jobs SET
	status = COALESCE($2::text, status),
	processed_results = GREATEST(processed_results, COALESCE($3::int, processed_results)),
	progress = COALESCE($4::int, progress),
	cursor = COALESCE($5::text, cursor),
	error = COALESCE($6::text, error),
	started_at = CASE WHEN $2::text = 'processing' AND started_at IS NULL THEN $7 ELSE started_at END,
	completed_at = CASE WHEN $2::text IN ('completed', 'error', 'timeout') THEN $7 ELSE completed_at END,
	updated_at = $7
WHERE id = $1
	AND status NOT IN ('completed', 'error', 'timeout')
	AND NOT (COALESCE($2::text, '') = 'pending' AND status <> 'pending')`

const insertResultSQL = `INSERT INTO scraping_results (id, job_id, creators, created_at) VALUES ($1, $2, $3, $4)`

const countCreatorsSQL = `SELECT COALESCE(SUM(jsonb_array_length(creators)), 0) FROM scraping_results WHERE job_id = $1`

const resultPageSQL = `SELECT c.value
FROM scraping_results r
CROSS JOIN LATERAL jsonb_array_elements(r.creators) WITH ORDINALITY AS c(value, ord)
WHERE r.job_id = $1
ORDER BY r.seq, c.ord
LIMIT $2 OFFSET $3`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job scraping.Job) error {
	params, err := json.Marshal(job.SearchParams)
	if err != nil {
		return fmt.Errorf("marshal search params: %w", err)
	}
	keywords := job.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err = s.pool.Exec(ctx, insertJobSQL,
		job.ID,
		job.UserID,
		nullString(job.CampaignID),
		string(job.Platform),
		keywords,
		nullString(job.TargetUsername),
		job.TargetResults,
		string(job.Status),
		job.ProcessedResults,
		job.Progress,
		job.TimeoutAt,
		params,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("job %s: %w", job.ID, scraping.ErrConflict)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (scraping.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, selectJobSQL, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraping.Job{}, scraping.ErrNotFound
		}
		return scraping.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// MarkTimedOut flips a non-terminal job to timeout with a conditional update.
// When the update matches nothing the current row is returned unchanged.
func (s *Store) MarkTimedOut(ctx context.Context, jobID string, at time.Time, message string) (scraping.Job, bool, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, markTimedOutSQL, jobID, message, at))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return scraping.Job{}, false, fmt.Errorf("mark job timed out: %w", err)
	}
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return scraping.Job{}, false, err
	}
	return current, false, nil
}

// UpdateProgress applies a worker progress report. Terminal jobs reject updates.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, update scraping.ProgressUpdate) error {
	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}
	tag, err := s.pool.Exec(ctx, updateProgressSQL,
		jobID,
		status,
		update.ProcessedResults,
		update.Progress,
		update.Cursor,
		update.Error,
		update.At,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s: %w", jobID, current.Status, scraping.ErrConflict)
}

// AppendResult stores one batch of creators for a job.
func (s *Store) AppendResult(ctx context.Context, jobID string, creators []json.RawMessage, at time.Time) error {
	if creators == nil {
		creators = []json.RawMessage{}
	}
	payload, err := json.Marshal(creators)
	if err != nil {
		return fmt.Errorf("marshal creators: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertResultSQL, id.String(), jobID, payload, at)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return scraping.ErrNotFound
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ResultPage returns a window over the job's flattened creators in insertion
// order. Batches sharing a created_at keep the order they were appended in.
func (s *Store) ResultPage(ctx context.Context, jobID string, limit, offset int) (scraping.Page, error) {
	var total int
	if err := s.pool.QueryRow(ctx, countCreatorsSQL, jobID).Scan(&total); err != nil {
		return scraping.Page{}, fmt.Errorf("count creators: %w", err)
	}
	page := scraping.Page{
		Creators:   []json.RawMessage{},
		Pagination: scraping.NewPagination(total, limit, offset),
	}
	start, end := page.Pagination.Bounds()
	if end <= start {
		return page, nil
	}
	rows, err := s.pool.Query(ctx, resultPageSQL, jobID, end-start, start)
	if err != nil {
		return scraping.Page{}, fmt.Errorf("select creators: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return scraping.Page{}, fmt.Errorf("scan creator: %w", err)
		}
		page.Creators = append(page.Creators, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return scraping.Page{}, fmt.Errorf("iterate creators: %w", err)
	}
	return page, nil
}

func scanJob(row pgx.Row) (scraping.Job, error) {
	var (
		job      scraping.Job
		platform string
		status   string
		params   []byte
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.CampaignID,
		&platform,
		&job.Keywords,
		&job.TargetUsername,
		&job.TargetResults,
		&status,
		&job.ProcessedResults,
		&job.Progress,
		&job.Cursor,
		&job.TimeoutAt,
		&params,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return scraping.Job{}, err
	}
	job.Platform = scraping.Platform(platform)
	job.Status = scraping.JobStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.SearchParams); err != nil {
			return scraping.Job{}, fmt.Errorf("decode search params: %w", err)
		}
	}
	return job, nil
}
