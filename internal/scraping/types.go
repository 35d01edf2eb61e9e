package scraping

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a job, campaign, or user does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness or state constraint.
	ErrConflict = errors.New("conflict")
)

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusTimeout    JobStatus = "timeout"
)

// IsTerminal reports whether no further transitions are allowed from status.
func IsTerminal(status JobStatus) bool {
	switch status {
	case JobStatusCompleted, JobStatusError, JobStatusTimeout:
		return true
	default:
		return false
	}
}

// SearchType distinguishes keyword searches from similar-creator searches.
type SearchType string

// Search styles a job or campaign can carry.
const (
	SearchTypeKeyword SearchType = "keyword"
	SearchTypeSimilar SearchType = "similar"
)

// Job is the persisted record of one asynchronous creator search.
type Job struct {
	ID               string       `json:"id"`
	UserID           string       `json:"userId"`
	CampaignID       string       `json:"campaignId,omitempty"`
	Platform         Platform     `json:"platform"`
	Keywords         []string     `json:"keywords,omitempty"`
	TargetUsername   string       `json:"targetUsername,omitempty"`
	// TargetResults is the requested tier after plan adjustment. When the
	// remaining quota is below the tier it holds that remainder (e.g. 800),
	// so it need not be one of the allowed tiers.
	TargetResults    int          `json:"targetResults"`
	Status           JobStatus    `json:"status"`
	ProcessedResults int          `json:"processedResults"`
	Progress         int          `json:"progress"`
	Cursor           string       `json:"cursor,omitempty"`
	TimeoutAt        time.Time    `json:"timeoutAt"`
	SearchParams     SearchParams `json:"searchParams"`
	Error            string       `json:"error,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
	StartedAt        *time.Time   `json:"startedAt,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
}

// SearchType derives the search style from the job's inputs.
func (j Job) SearchType() SearchType {
	if j.TargetUsername != "" {
		return SearchTypeSimilar
	}
	return SearchTypeKeyword
}

// SearchParams carries the worker-facing knobs stored with each job.
// Runner is always set and selects the provider pipeline.
type SearchParams struct {
	Runner     string            `json:"runner"`
	SearchType SearchType        `json:"searchType"`
	Options    map[string]string `json:"options,omitempty"`
}

// ProgressUpdate is a partial update written by the worker side.
// Nil fields are left untouched.
type ProgressUpdate struct {
	Status           *JobStatus
	ProcessedResults *int
	Progress         *int
	Cursor           *string
	Error            *string
	At               time.Time
}

// Result is one batch of creators appended by the worker.
type Result struct {
	ID        string            `json:"id"`
	JobID     string            `json:"jobId"`
	Creators  []json.RawMessage `json:"creators"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Page is a window over the flattened creators of a job.
type Page struct {
	Creators   []json.RawMessage
	Pagination Pagination
}

// CampaignStatus is the lifecycle of a campaign.
type CampaignStatus string

// Campaign statuses.
const (
	CampaignStatusDraft    CampaignStatus = "draft"
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusArchived CampaignStatus = "archived"
)

// Campaign groups the jobs a user runs for one outreach effort.
type Campaign struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	SearchType  SearchType     `json:"searchType,omitempty"`
	Status      CampaignStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// User is the local projection of an identity-provider account.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	Plan        string     `json:"plan"`
	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
