package scraping

import (
	"context"
	"encoding/json"
	"time"
)

// JobStore persists jobs and their result batches.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// MarkTimedOut moves a non-terminal job to timeout. The returned bool is
	// false when the job was already terminal, in which case the stored job is
	// returned unchanged.
	MarkTimedOut(ctx context.Context, jobID string, at time.Time, message string) (Job, bool, error)
	UpdateProgress(ctx context.Context, jobID string, update ProgressUpdate) error
	AppendResult(ctx context.Context, jobID string, creators []json.RawMessage, at time.Time) error
	ResultPage(ctx context.Context, jobID string, limit, offset int) (Page, error)
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign Campaign) error
	GetCampaign(ctx context.Context, campaignID string) (Campaign, error)
	ListCampaigns(ctx context.Context, userID string) ([]Campaign, error)
	UpdateCampaignSearchType(ctx context.Context, campaignID string, searchType SearchType, at time.Time) error
}

// UserStore persists local user rows.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (User, error)
	CreateUser(ctx context.Context, user User) error
	MarkUserDeleted(ctx context.Context, userID string, at time.Time) error
}

// UsageReader aggregates plan usage from the live tables.
type UsageReader interface {
	CountCampaigns(ctx context.Context, userID string) (int, error)
	CountCreatorsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Publisher pushes a message to an out-of-process queue and returns its id.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and campaign IDs.
type IDGenerator interface {
	NewID() (string, error)
}
