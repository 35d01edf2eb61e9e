package scraping

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the social network a job searches.
type Platform string

// Supported platforms.
const (
	PlatformInstagram  Platform = "instagram"
	PlatformTikTok     Platform = "tiktok"
	PlatformYouTube    Platform = "youtube"
	PlatformGoogleSERP Platform = "google-serp"
)

var platformAliases = map[string]Platform{
	"instagram":   PlatformInstagram,
	"ig":          PlatformInstagram,
	"tiktok":      PlatformTikTok,
	"youtube":     PlatformYouTube,
	"yt":          PlatformYouTube,
	"google-serp": PlatformGoogleSERP,
	"google":      PlatformGoogleSERP,
	"serp":        PlatformGoogleSERP,
}

// ParsePlatform normalizes a path segment or query value into a Platform.
func ParsePlatform(raw string) (Platform, error) {
	p, ok := platformAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unsupported platform %q", raw)
	}
	return p, nil
}

// Platforms lists every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{PlatformInstagram, PlatformTikTok, PlatformYouTube, PlatformGoogleSERP}
}

var defaultTiers = []int{100, 500, 1000}

// AllowedTiers returns the result-count tiers a caller may request for p.
func AllowedTiers(p Platform) []int {
	out := make([]int, len(defaultTiers))
	copy(out, defaultTiers)
	return out
}

// IsAllowedTier reports whether n is one of the tiers for p.
func IsAllowedTier(p Platform, n int) bool {
	for _, t := range AllowedTiers(p) {
		if t == n {
			return true
		}
	}
	return false
}

// DefaultTimeoutWindows is the time a job may stay non-terminal before a
// status read flips it to timeout.
func DefaultTimeoutWindows() map[Platform]time.Duration {
	return map[Platform]time.Duration{
		PlatformInstagram:  60 * time.Minute,
		PlatformTikTok:     60 * time.Minute,
		PlatformYouTube:    30 * time.Minute,
		PlatformGoogleSERP: 30 * time.Minute,
	}
}

// DefaultRunner picks the provider pipeline tag for a platform and search style.
func DefaultRunner(p Platform, st SearchType) string {
	if p == PlatformGoogleSERP {
		return "google_serp"
	}
	return strings.ReplaceAll(string(p), "-", "_") + "_" + string(st)
}
