package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// CreateJob stores a new job.
func (s *Store) CreateJob(_ context.Context, job scraping.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, scraping.ErrConflict)
	}
	job.Keywords = slices.Clone(job.Keywords)
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(_ context.Context, jobID string) (scraping.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.Job{}, scraping.ErrNotFound
	}
	return job, nil
}

// MarkTimedOut flips a non-terminal job to timeout.
func (s *Store) MarkTimedOut(_ context.Context, jobID string, at time.Time, message string) (scraping.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.Job{}, false, scraping.ErrNotFound
	}
	if scraping.IsTerminal(job.Status) {
		return job, false, nil
	}
	job.Status = scraping.JobStatusTimeout
	job.Error = message
	job.UpdatedAt = at
	job.CompletedAt = pointerTime(at)
	s.jobs[jobID] = job
	return job, true, nil
}

// UpdateProgress applies a worker progress report.
func (s *Store) UpdateProgress(_ context.Context, jobID string, update scraping.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.ErrNotFound
	}
	if scraping.IsTerminal(job.Status) {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, scraping.ErrConflict)
	}
	if update.Status != nil {
		if *update.Status == scraping.JobStatusPending && job.Status != scraping.JobStatusPending {
			return fmt.Errorf("job %s cannot return to pending: %w", jobID, scraping.ErrConflict)
		}
		job.Status = *update.Status
		if job.Status == scraping.JobStatusProcessing && job.StartedAt == nil {
			job.StartedAt = pointerTime(update.At)
		}
		if scraping.IsTerminal(job.Status) {
			job.CompletedAt = pointerTime(update.At)
		}
	}
	if update.ProcessedResults != nil && *update.ProcessedResults > job.ProcessedResults {
		job.ProcessedResults = *update.ProcessedResults
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.Cursor != nil {
		job.Cursor = *update.Cursor
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	job.UpdatedAt = update.At
	s.jobs[jobID] = job
	return nil
}

// AppendResult stores one batch of creators for a job.
func (s *Store) AppendResult(_ context.Context, jobID string, creators []json.RawMessage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return scraping.ErrNotFound
	}
	s.resultSeq++
	s.results[jobID] = append(s.results[jobID], scraping.Result{
		ID:        fmt.Sprintf("result-%d", s.resultSeq),
		JobID:     jobID,
		Creators:  slices.Clone(creators),
		CreatedAt: at,
	})
	return nil
}

// ResultPage returns a window over the job's flattened creators.
func (s *Store) ResultPage(_ context.Context, jobID string, limit, offset int) (scraping.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scraping.FlattenPage(s.results[jobID], limit, offset), nil
}
