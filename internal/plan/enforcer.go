package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// Options configure the bypass gates. Production disables both regardless of
// the other flags.
type Options struct {
	Production    bool
	BypassEnabled bool
}

// Enforcer answers plan-limit questions from live usage aggregates.
type Enforcer struct {
	users  scraping.UserStore
	usage  scraping.UsageReader
	clock  scraping.Clock
	opts   Options
	logger *zap.Logger
}

// NewEnforcer builds an Enforcer.
func NewEnforcer(users scraping.UserStore, usage scraping.UsageReader, clock scraping.Clock, opts Options, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{users: users, usage: usage, clock: clock, opts: opts, logger: logger.Named("plan")}
}

type bypassKey struct{}

// WithBypass marks the request as asking for the development bypass. The
// enforcer still ignores it in production.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassRequested(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

func (e *Enforcer) bypassed(ctx context.Context) bool {
	if e.opts.Production {
		return false
	}
	return e.opts.BypassEnabled || bypassRequested(ctx)
}

// ResolvePlan returns the user's plan, defaulting to free for unknown users.
func (e *Enforcer) ResolvePlan(ctx context.Context, userID string) (string, error) {
	user, err := e.users.GetUser(ctx, userID)
	if errors.Is(err, scraping.ErrNotFound) {
		return Free, nil
	}
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user.DeletedAt != nil {
		return Free, nil
	}
	return Normalize(user.Plan), nil
}

// ValidateCampaignCreation checks the user may create one more campaign.
func (e *Enforcer) ValidateCampaignCreation(ctx context.Context, userID string) (Decision, error) {
	if e.bypassed(ctx) {
		e.logger.Warn("plan bypass applied", zap.String("user_id", userID), zap.String("check", "campaign"))
		return Decision{Allowed: true, Reason: ReasonBypassed, Usage: Usage{Limit: Unlimited}}, nil
	}
	planName, err := e.ResolvePlan(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	used, err := e.usage.CountCampaigns(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("count campaigns: %w", err)
	}
	d := Decide(used, LimitsFor(planName).Campaigns, 1, ReasonCampaignLimit)
	d.Plan = planName
	return d, nil
}

// ValidateJobCreation checks requested creators against this month's usage.
func (e *Enforcer) ValidateJobCreation(ctx context.Context, userID string, requested int) (Decision, error) {
	if e.bypassed(ctx) {
		e.logger.Warn("plan bypass applied", zap.String("user_id", userID), zap.String("check", "job"))
		return Decision{Allowed: true, Reason: ReasonBypassed, Usage: Usage{Limit: Unlimited}}, nil
	}
	planName, err := e.ResolvePlan(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	used, err := e.usage.CountCreatorsSince(ctx, userID, MonthStart(e.clock.Now()))
	if err != nil {
		return Decision{}, fmt.Errorf("count creators: %w", err)
	}
	d := Decide(used, LimitsFor(planName).CreatorsPerMonth, requested, ReasonCreatorLimit)
	d.Plan = planName
	return d, nil
}

// Snapshot is the usage summary shown to the user.
type Snapshot struct {
	Plan        string    `json:"plan"`
	Campaigns   Usage     `json:"campaigns"`
	Creators    Usage     `json:"creators"`
	PeriodStart time.Time `json:"periodStart"`
}

// Usage reports the user's plan and both counters.
func (e *Enforcer) Usage(ctx context.Context, userID string) (Snapshot, error) {
	planName, err := e.ResolvePlan(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	limits := LimitsFor(planName)
	start := MonthStart(e.clock.Now())
	campaigns, err := e.usage.CountCampaigns(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count campaigns: %w", err)
	}
	creators, err := e.usage.CountCreatorsSince(ctx, userID, start)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count creators: %w", err)
	}
	return Snapshot{
		Plan:        planName,
		Campaigns:   Usage{Used: campaigns, Limit: limits.Campaigns},
		Creators:    Usage{Used: creators, Limit: limits.CreatorsPerMonth},
		PeriodStart: start,
	}, nil
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
