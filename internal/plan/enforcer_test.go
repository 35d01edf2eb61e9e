package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

type fakeUsers struct {
	users map[string]scraping.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (scraping.User, error) {
	if f.err != nil {
		return scraping.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return scraping.User{}, scraping.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) CreateUser(context.Context, scraping.User) error { return nil }

func (f *fakeUsers) MarkUserDeleted(context.Context, string, time.Time) error { return nil }

type fakeUsage struct {
	campaigns int
	creators  int
	since     time.Time
}

func (f *fakeUsage) CountCampaigns(context.Context, string) (int, error) { return f.campaigns, nil }

func (f *fakeUsage) CountCreatorsSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.since = since
	return f.creators, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2026, 3, 17, 15, 4, 5, 0, time.UTC)

func newEnforcer(planName string, usage *fakeUsage, opts Options) *Enforcer {
	users := &fakeUsers{users: map[string]scraping.User{"u1": {ID: "u1", Plan: planName}}}
	return NewEnforcer(users, usage, fixedClock{now: now}, opts, nil)
}

func TestDecide(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		used, limit, requested int
		allowed                bool
		reason                 Reason
		adjusted               *int
	}{
		"within":       {used: 0, limit: 1000, requested: 500, allowed: true, reason: ReasonWithinLimit},
		"exactly fits": {used: 500, limit: 1000, requested: 500, allowed: true, reason: ReasonWithinLimit},
		"clamped":      {used: 200, limit: 1000, requested: 1000, allowed: true, reason: ReasonAdjusted, adjusted: ptr(800)},
		"at cap":       {used: 1000, limit: 1000, requested: 100, reason: ReasonCreatorLimit},
		"over cap":     {used: 1200, limit: 1000, requested: 100, reason: ReasonCreatorLimit},
		"unlimited":    {used: 1 << 30, limit: Unlimited, requested: 1000, allowed: true, reason: ReasonUnlimited},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d := Decide(tc.used, tc.limit, tc.requested, ReasonCreatorLimit)
			require.Equal(t, tc.allowed, d.Allowed)
			require.Equal(t, tc.reason, d.Reason)
			require.Equal(t, tc.adjusted, d.AdjustedLimit)
			require.Equal(t, Usage{Used: tc.used, Limit: tc.limit}, d.Usage)
		})
	}
}

func TestValidateJobCreationClampsToRemaining(t *testing.T) {
	t.Parallel()

	usage := &fakeUsage{creators: 200}
	e := newEnforcer(GlowUp, usage, Options{})

	d, err := e.ValidateJobCreation(context.Background(), "u1", 1000)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.NotNil(t, d.AdjustedLimit)
	require.Equal(t, 800, *d.AdjustedLimit)
	require.Equal(t, GlowUp, d.Plan)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), usage.since)
}

func TestValidateJobCreationDeniesAtCap(t *testing.T) {
	t.Parallel()

	e := newEnforcer(Free, &fakeUsage{creators: 100}, Options{})
	d, err := e.ValidateJobCreation(context.Background(), "u1", 100)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonCreatorLimit, d.Reason)
	require.Equal(t, Usage{Used: 100, Limit: 100}, d.Usage)
}

func TestValidateCampaignCreation(t *testing.T) {
	t.Parallel()

	e := newEnforcer(GlowUp, &fakeUsage{campaigns: 2}, Options{})
	d, err := e.ValidateCampaignCreation(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	e = newEnforcer(GlowUp, &fakeUsage{campaigns: 3}, Options{})
	d, err = e.ValidateCampaignCreation(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonCampaignLimit, d.Reason)

	e = newEnforcer(FameFlex, &fakeUsage{campaigns: 500}, Options{})
	d, err = e.ValidateCampaignCreation(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, ReasonUnlimited, d.Reason)
}

func TestUnknownUserResolvesToFree(t *testing.T) {
	t.Parallel()

	e := newEnforcer(GlowUp, &fakeUsage{campaigns: 1}, Options{})
	d, err := e.ValidateCampaignCreation(context.Background(), "someone-else")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, Free, d.Plan)
}

func TestUserStoreErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	e := NewEnforcer(&fakeUsers{err: boom}, &fakeUsage{}, fixedClock{now: now}, Options{}, nil)
	_, err := e.ValidateJobCreation(context.Background(), "u1", 100)
	require.ErrorIs(t, err, boom)
}

func TestBypass(t *testing.T) {
	t.Parallel()

	atCap := &fakeUsage{campaigns: 99, creators: 1 << 20}

	e := newEnforcer(Free, atCap, Options{BypassEnabled: true})
	d, err := e.ValidateJobCreation(context.Background(), "u1", 1000)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, ReasonBypassed, d.Reason)

	e = newEnforcer(Free, atCap, Options{})
	d, err = e.ValidateCampaignCreation(WithBypass(context.Background()), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, ReasonBypassed, d.Reason)
}

func TestBypassUnreachableInProduction(t *testing.T) {
	t.Parallel()

	e := newEnforcer(Free, &fakeUsage{creators: 100}, Options{Production: true, BypassEnabled: true})
	d, err := e.ValidateJobCreation(WithBypass(context.Background()), "u1", 100)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonCreatorLimit, d.Reason)
}

func TestUsageSnapshot(t *testing.T) {
	t.Parallel()

	e := newEnforcer(ViralSurge, &fakeUsage{campaigns: 4, creators: 2500}, Options{})
	snap, err := e.Usage(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, ViralSurge, snap.Plan)
	require.Equal(t, Usage{Used: 4, Limit: 10}, snap.Campaigns)
	require.Equal(t, Usage{Used: 2500, Limit: 10000}, snap.Creators)
	require.Equal(t, MonthStart(now), snap.PeriodStart)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, GlowUp, Normalize("Glow-Up"))
	require.Equal(t, FameFlex, Normalize(" fame_flex "))
	require.Equal(t, Free, Normalize("enterprise"))
	require.Equal(t, Free, Normalize(""))
	require.Equal(t, Limits{Campaigns: 1, CreatorsPerMonth: 100}, LimitsFor("nope"))
}

func ptr(v int) *int { return &v }
