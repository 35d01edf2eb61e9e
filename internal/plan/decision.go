package plan

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonWithinLimit   Reason = "within_limit"
	ReasonUnlimited     Reason = "unlimited"
	ReasonBypassed      Reason = "bypassed"
	ReasonAdjusted      Reason = "adjusted_to_remaining"
	ReasonCampaignLimit Reason = "campaign_limit_reached"
	ReasonCreatorLimit  Reason = "creator_limit_reached"
)

// Usage reports the counter a decision was taken against.
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Decision is the outcome of a plan check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Plan    string
	Usage   Usage
	// AdjustedLimit is set when the request was allowed but clamped to the
	// remaining allowance.
	AdjustedLimit *int
}

// Decide applies the cap rule: deny once used reaches the cap, clamp a request
// that would cross it, allow otherwise. requested is 1 for campaign checks.
func Decide(used, limit, requested int, denied Reason) Decision {
	d := Decision{Usage: Usage{Used: used, Limit: limit}}
	switch {
	case limit == Unlimited:
		d.Allowed = true
		d.Reason = ReasonUnlimited
	case used >= limit:
		d.Reason = denied
	case used+requested > limit:
		remaining := limit - used
		d.Allowed = true
		d.Reason = ReasonAdjusted
		d.AdjustedLimit = &remaining
	default:
		d.Allowed = true
		d.Reason = ReasonWithinLimit
	}
	return d
}
