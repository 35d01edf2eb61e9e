// Package dispatcher validates job requests, applies plan limits, persists the
// job, and hands it to the out-of-process queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/plan"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const (
	defaultTimeoutWindow  = 60 * time.Minute
	defaultPublishTimeout = 5 * time.Second
	maxTargetUsername     = 64
	maxOptions            = 20
)

// ErrCampaignNotFound is returned when the campaign is missing or owned by
// someone else.
var ErrCampaignNotFound = errors.New("campaign not found")

// ErrUnauthenticated is returned when the request carries no user.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LimitError reports a plan denial.
type LimitError struct {
	Decision plan.Decision
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("plan limit reached: %s (%d/%d)", e.Decision.Reason, e.Decision.Usage.Used, e.Decision.Usage.Limit)
}

// Gate decides whether a job may be created.
type Gate interface {
	ValidateJobCreation(ctx context.Context, userID string, requested int) (plan.Decision, error)
}

// Config tunes job creation.
type Config struct {
	// CallbackURL is the worker endpoint the queue delivers to.
	CallbackURL    string
	TimeoutWindows map[scraping.Platform]time.Duration
	// Runners overrides the runner tag. Keys are "platform" or
	// "platform:searchType"; the longer key wins.
	Runners        map[string]string
	PublishTimeout time.Duration
}

// Request is a caller's job submission.
type Request struct {
	UserID         string
	CampaignID     string
	Platform       string
	Keywords       []string
	TargetUsername string
	TargetResults  int
	Options        map[string]string
}

// Result describes the created job.
type Result struct {
	JobID            string
	MessageID        string
	Engine           string
	TargetResults    int
	RequestedResults int
	Adjusted         bool
	Decision         plan.Decision
	TimeoutAt        time.Time
}

// QueueMessage is the payload the worker receives.
type QueueMessage struct {
	JobID string `json:"jobId"`
}

// Dispatcher creates scraping jobs.
type Dispatcher struct {
	jobs      scraping.JobStore
	campaigns scraping.CampaignStore
	gate      Gate
	publisher scraping.Publisher
	clock     scraping.Clock
	ids       scraping.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(
	jobs scraping.JobStore,
	campaigns scraping.CampaignStore,
	gate Gate,
	publisher scraping.Publisher,
	clock scraping.Clock,
	ids scraping.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Dispatcher{
		jobs:      jobs,
		campaigns: campaigns,
		gate:      gate,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger.Named("dispatcher"),
	}
}

// CreateJob validates the request, applies the plan gate, inserts a pending
// job, and publishes it. A publish failure leaves the job pending and is not
// reported to the caller; the status read times it out if no worker picks it up.
func (d *Dispatcher) CreateJob(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Result{}, ErrUnauthenticated
	}
	if strings.TrimSpace(req.CampaignID) == "" {
		return Result{}, &ValidationError{Field: "campaignId", Message: "is required"}
	}
	campaign, err := d.campaigns.GetCampaign(ctx, req.CampaignID)
	if errors.Is(err, scraping.ErrNotFound) || (err == nil && campaign.UserID != req.UserID) {
		return Result{}, ErrCampaignNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("get campaign: %w", err)
	}

	platform, err := scraping.ParsePlatform(req.Platform)
	if err != nil {
		return Result{}, &ValidationError{Field: "platform", Message: err.Error()}
	}
	keywords, target, err := normalizeInputs(platform, req)
	if err != nil {
		return Result{}, err
	}
	if !scraping.IsAllowedTier(platform, req.TargetResults) {
		return Result{}, &ValidationError{
			Field:   "targetResults",
			Message: fmt.Sprintf("must be one of %v", scraping.AllowedTiers(platform)),
		}
	}
	options, err := normalizeOptions(req.Options)
	if err != nil {
		return Result{}, err
	}

	decision, err := d.gate.ValidateJobCreation(ctx, req.UserID, req.TargetResults)
	if err != nil {
		return Result{}, fmt.Errorf("plan check: %w", err)
	}
	metrics.ObservePlanDecision("job", string(decision.Reason))
	if !decision.Allowed {
		return Result{}, &LimitError{Decision: decision}
	}
	effective := req.TargetResults
	if decision.AdjustedLimit != nil {
		effective = *decision.AdjustedLimit
	}

	jobID, err := d.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	job := scraping.Job{
		ID:             jobID,
		UserID:         req.UserID,
		CampaignID:     campaign.ID,
		Platform:       platform,
		Keywords:       keywords,
		TargetUsername: target,
		TargetResults:  effective,
		Status:         scraping.JobStatusPending,
		TimeoutAt:      now.Add(d.timeoutWindow(platform)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	job.SearchParams = scraping.SearchParams{
		Runner:     d.runner(platform, job.SearchType()),
		SearchType: job.SearchType(),
		Options:    options,
	}
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return Result{}, fmt.Errorf("create job: %w", err)
	}
	metrics.ObserveJobCreated(string(platform), job.SearchParams.Runner)

	logger := d.logger.With(zap.String("job_id", jobID), zap.String("platform", string(platform)))
	messageID := d.publish(ctx, logger, jobID)
	d.syncCampaignSearchType(ctx, logger, campaign, job.SearchType(), now)

	logger.Info("job created",
		zap.String("runner", job.SearchParams.Runner),
		zap.Int("target_results", effective),
		zap.Int("requested_results", req.TargetResults),
		zap.Bool("published", messageID != ""),
	)

	return Result{
		JobID:            jobID,
		MessageID:        messageID,
		Engine:           job.SearchParams.Runner,
		TargetResults:    effective,
		RequestedResults: req.TargetResults,
		Adjusted:         decision.AdjustedLimit != nil,
		Decision:         decision,
		TimeoutAt:        job.TimeoutAt,
	}, nil
}

func (d *Dispatcher) publish(ctx context.Context, logger *zap.Logger, jobID string) string {
	if d.publisher == nil {
		return ""
	}
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()
	id, err := d.publisher.Publish(pubCtx, d.cfg.CallbackURL, QueueMessage{JobID: jobID})
	if err != nil {
		metrics.ObservePublishFailure()
		logger.Error("queue publish failed; job left pending", zap.Error(err))
		return ""
	}
	return id
}

func (d *Dispatcher) syncCampaignSearchType(ctx context.Context, logger *zap.Logger, campaign scraping.Campaign, st scraping.SearchType, now time.Time) {
	if campaign.SearchType == st {
		return
	}
	if err := d.campaigns.UpdateCampaignSearchType(ctx, campaign.ID, st, now); err != nil {
		logger.Warn("update campaign search type failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
	}
}

func (d *Dispatcher) timeoutWindow(p scraping.Platform) time.Duration {
	if w, ok := d.cfg.TimeoutWindows[p]; ok && w > 0 {
		return w
	}
	if w, ok := scraping.DefaultTimeoutWindows()[p]; ok {
		return w
	}
	return defaultTimeoutWindow
}

func (d *Dispatcher) runner(p scraping.Platform, st scraping.SearchType) string {
	if r := d.cfg.Runners[string(p)+":"+string(st)]; r != "" {
		return r
	}
	if r := d.cfg.Runners[string(p)]; r != "" {
		return r
	}
	return scraping.DefaultRunner(p, st)
}

func normalizeInputs(p scraping.Platform, req Request) ([]string, string, error) {
	target := strings.TrimPrefix(strings.TrimSpace(req.TargetUsername), "@")
	keywords := scraping.SanitizeKeywords(req.Keywords)

	switch {
	case target != "" && len(req.Keywords) > 0:
		return nil, "", &ValidationError{Field: "keywords", Message: "provide keywords or targetUsername, not both"}
	case target != "":
		if p == scraping.PlatformGoogleSERP {
			return nil, "", &ValidationError{Field: "targetUsername", Message: "similar search is not supported on google-serp"}
		}
		if len(target) > maxTargetUsername || strings.ContainsAny(target, " \t\r\n/") {
			return nil, "", &ValidationError{Field: "targetUsername", Message: "is not a valid handle"}
		}
		return nil, target, nil
	case len(keywords) == 0:
		return nil, "", &ValidationError{Field: "keywords", Message: "at least one non-empty keyword is required"}
	case len(keywords) > scraping.MaxKeywords:
		return nil, "", &ValidationError{Field: "keywords", Message: fmt.Sprintf("at most %d keywords are allowed", scraping.MaxKeywords)}
	}
	return keywords, "", nil
}

func normalizeOptions(in map[string]string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if len(in) > maxOptions {
		return nil, &ValidationError{Field: "options", Message: fmt.Sprintf("at most %d options are allowed", maxOptions)}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" || k == "runner" {
			continue
		}
		out[k] = scraping.SanitizeKeyword(v)
	}
	return out, nil
}
