package model

import "time"

// ProspectStatus represents where a prospect is in the enrichment lifecycle.
type ProspectStatus string

const (
	ProspectStatusNew           ProspectStatus = "new"
	ProspectStatusNeedsReview   ProspectStatus = "needs_review"
	ProspectStatusEnriching     ProspectStatus = "enriching"
	ProspectStatusEnriched      ProspectStatus = "enriched"
	ProspectStatusReview        ProspectStatus = "review"
	ProspectStatusMissingEmails ProspectStatus = "missing_emails"
	ProspectStatusNotViable     ProspectStatus = "not_viable"
)

// Terminal reports whether no further automated attempt will be made from this status.
func (s ProspectStatus) Terminal() bool {
	switch s {
	case ProspectStatusEnriched, ProspectStatusReview, ProspectStatusMissingEmails, ProspectStatusNotViable:
		return true
	default:
		return false
	}
}

// MaxEnrichmentAttempts is the retry counter value at which enrichment is terminal.
const MaxEnrichmentAttempts = 1

// Prospect is one candidate business being evaluated for outreach.
type Prospect struct {
	ID          string         `json:"id"`
	TargetID    string         `json:"target_id"`
	Status      ProspectStatus `json:"status"`
	PriorStatus ProspectStatus `json:"prior_status,omitempty"`

	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy string     `json:"locked_by,omitempty"`

	RetryCount    int        `json:"enrichment_retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	Notes        string `json:"notes,omitempty"`
	ContactCount int    `json:"contact_count"`

	IcebreakerText        string     `json:"icebreaker_text,omitempty"`
	IcebreakerGeneratedAt *time.Time `json:"icebreaker_generated_at,omitempty"`
	IcebreakerEdited      bool       `json:"icebreaker_manually_edited"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attempted reports whether the one allowed automated attempt has been used.
func (p *Prospect) Attempted() bool {
	return p.RetryCount >= MaxEnrichmentAttempts
}

// Locked reports whether any worker currently holds the prospect's lease.
func (p *Prospect) Locked() bool {
	return p.LockedAt != nil
}

// HasIcebreaker reports whether an opener is already stored.
func (p *Prospect) HasIcebreaker() bool {
	return p.IcebreakerText != ""
}

// Finalization is the terminal write applied to a prospect after a run.
type Finalization struct {
	Status       ProspectStatus
	ContactCount int
	Note         string
}

// Target is the report record holding the domain and company profile.
type Target struct {
	ID          string `json:"id"`
	Domain      string `json:"domain"`
	CompanyName string `json:"company_name"`
	Industry    string `json:"industry"`
	FacebookURL string `json:"facebook_url"`

	MonthlyTraffic   int64  `json:"monthly_traffic"`
	TrafficTier      string `json:"traffic_tier"`
	CompanySize      string `json:"company_size"`
	EstimatedLeads   int64  `json:"estimated_leads"`
	EstimatedRevenue string `json:"estimated_revenue"`
	TrafficSource    string `json:"traffic_source,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate carries the target fields an enrichment run is allowed to overwrite.
// Empty fields are left untouched.
type ProfileUpdate struct {
	CompanyName string
	Industry    string
	FacebookURL string
}

// Empty reports whether the update would change nothing.
func (u ProfileUpdate) Empty() bool {
	return u.CompanyName == "" && u.Industry == "" && u.FacebookURL == ""
}
