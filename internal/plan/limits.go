// Package plan enforces subscription limits on campaign and job creation.
package plan

import "strings"

// Unlimited marks a cap that never denies.
const Unlimited = -1

// Plan names.
const (
	Free       = "free"
	GlowUp     = "glow_up"
	ViralSurge = "viral_surge"
	FameFlex   = "fame_flex"
)

// Limits is the per-plan cap table row.
type Limits struct {
	// Campaigns caps campaigns ever created, archived ones included.
	Campaigns int `json:"campaigns"`
	// CreatorsPerMonth caps creators delivered in the current calendar month.
	CreatorsPerMonth int `json:"creatorsPerMonth"`
}

var table = map[string]Limits{
	Free:       {Campaigns: 1, CreatorsPerMonth: 100},
	GlowUp:     {Campaigns: 3, CreatorsPerMonth: 1000},
	ViralSurge: {Campaigns: 10, CreatorsPerMonth: 10000},
	FameFlex:   {Campaigns: Unlimited, CreatorsPerMonth: Unlimited},
}

// Normalize maps a stored plan name onto a known plan, defaulting to free.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	if _, ok := table[n]; ok {
		return n
	}
	return Free
}

// LimitsFor returns the caps for a plan. Unknown plans get the free caps.
func LimitsFor(name string) Limits {
	return table[Normalize(name)]
}

// Names lists the known plans from smallest to largest.
func Names() []string {
	return []string{Free, GlowUp, ViralSurge, FameFlex}
}
