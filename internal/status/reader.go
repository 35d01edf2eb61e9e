// Package status serves job status reads. A read that observes an expired
// non-terminal job moves it to timeout; no background sweeper exists.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// TimeoutMessage is stored on jobs that outlive their window.
const TimeoutMessage = "job exceeded its processing window"

// ErrInvalidWindow is returned for a negative limit or offset.
var ErrInvalidWindow = errors.New("limit and offset must be >= 0")

// Status is the caller-visible view of a job.
type Status struct {
	JobID            string
	Status           scraping.JobStatus
	Platform         scraping.Platform
	ProcessedResults int
	TargetResults    int
	Progress         int
	Results          []json.RawMessage
	Pagination       scraping.Pagination
	Error            string
	CreatedAt        time.Time
	TimeoutAt        time.Time
	CompletedAt      *time.Time
}

// Reader answers status queries.
type Reader struct {
	jobs   scraping.JobStore
	clock  scraping.Clock
	logger *zap.Logger
}

// NewReader builds a Reader.
func NewReader(jobs scraping.JobStore, clock scraping.Clock, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{jobs: jobs, clock: clock, logger: logger.Named("status")}
}

// GetJobStatus returns the job and one page of its creators. Jobs owned by
// another user are reported as scraping.ErrNotFound.
func (r *Reader) GetJobStatus(ctx context.Context, jobID, userID string, limit, offset int) (Status, error) {
	if limit < 0 || offset < 0 {
		return Status{}, ErrInvalidWindow
	}
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	if job.UserID != userID {
		return Status{}, scraping.ErrNotFound
	}

	now := r.clock.Now()
	if !scraping.IsTerminal(job.Status) && now.After(job.TimeoutAt) {
		updated, changed, err := r.jobs.MarkTimedOut(ctx, job.ID, now, TimeoutMessage)
		if err != nil {
			return Status{}, fmt.Errorf("mark timed out: %w", err)
		}
		if changed {
			metrics.ObserveJobTimeout(string(job.Platform))
			r.logger.Info("job timed out on read",
				zap.String("job_id", job.ID),
				zap.Time("timeout_at", job.TimeoutAt),
				zap.String("previous_status", string(job.Status)),
			)
		}
		// Either our flip or a worker that finished first; both keep the
		// results written so far.
		job = updated
	}

	page, err := r.jobs.ResultPage(ctx, job.ID, limit, offset)
	if err != nil {
		return Status{}, fmt.Errorf("result page: %w", err)
	}
	out := view(job)
	out.Results = page.Creators
	if out.Results == nil {
		out.Results = []json.RawMessage{}
	}
	out.Pagination = page.Pagination
	return out, nil
}

func view(job scraping.Job) Status {
	return Status{
		JobID:            job.ID,
		Status:           job.Status,
		Platform:         job.Platform,
		ProcessedResults: job.ProcessedResults,
		TargetResults:    job.TargetResults,
		Progress:         clampProgress(job.Progress),
		Error:            job.Error,
		CreatedAt:        job.CreatedAt,
		TimeoutAt:        job.TimeoutAt,
		CompletedAt:      job.CompletedAt,
	}
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}
