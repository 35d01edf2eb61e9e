package scraping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Platform{
		"instagram": PlatformInstagram,
		"IG":        PlatformInstagram,
		" tiktok ":  PlatformTikTok,
		"yt":        PlatformYouTube,
		"serp":      PlatformGoogleSERP,
	} {
		got, err := ParsePlatform(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}

	_, err := ParsePlatform("myspace")
	require.Error(t, err)
}

func TestAllowedTiers(t *testing.T) {
	t.Parallel()

	for _, p := range Platforms() {
		require.Equal(t, []int{100, 500, 1000}, AllowedTiers(p))
		require.True(t, IsAllowedTier(p, 500))
		require.False(t, IsAllowedTier(p, 250))
		require.False(t, IsAllowedTier(p, 0))
	}
}

func TestAllowedTiersReturnsCopy(t *testing.T) {
	t.Parallel()

	tiers := AllowedTiers(PlatformTikTok)
	tiers[0] = 7
	require.Equal(t, 100, AllowedTiers(PlatformTikTok)[0])
}

func TestDefaultRunner(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tiktok_keyword", DefaultRunner(PlatformTikTok, SearchTypeKeyword))
	require.Equal(t, "instagram_similar", DefaultRunner(PlatformInstagram, SearchTypeSimilar))
	require.Equal(t, "google_serp", DefaultRunner(PlatformGoogleSERP, SearchTypeKeyword))
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, IsTerminal(JobStatusPending))
	require.False(t, IsTerminal(JobStatusProcessing))
	require.True(t, IsTerminal(JobStatusCompleted))
	require.True(t, IsTerminal(JobStatusError))
	require.True(t, IsTerminal(JobStatusTimeout))
}
