// Package leadgen implements the lead-generation pipeline: keyword/district
// rotation, Google Places search and detail resolution, duplicate checks,
// enrichment and scoring, and the streaming run orchestrator.
package leadgen

import (
	"time"
)

// Priority is the outreach tier assigned by scoring.
type Priority string

// Priority tiers.
const (
	PriorityHot  Priority = "hot"
	PriorityWarm Priority = "warm"
	PriorityCold Priority = "cold"
)

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHot, PriorityWarm, PriorityCold:
		return true
	}
	return false
}

// Confidence is the scorer's confidence in its own score.
type Confidence string

// Confidence tiers.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is a known tier.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Provenance records where a lead came from.
type Provenance string

// Lead provenances.
const (
	ProvenanceGoogleMaps  Provenance = "google_maps"
	ProvenanceManualEntry Provenance = "manual_entry"
)

// LeadStatus is the lifecycle state of a persisted lead.
type LeadStatus string

// Lead lifecycle states.
const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusRejected  LeadStatus = "rejected"
	LeadStatusConverted LeadStatus = "converted"
)

// Valid reports whether s is a known lifecycle state.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusRejected, LeadStatusConverted:
		return true
	}
	return false
}

// RunStatus is the status of a RunLog row.
type RunStatus string

// Run statuses. Transitions only go forward from running.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SearchCursor remembers the last (district, keyword) pair used for an
// (owner, city, industry) tuple. Index -1 means "never used".
type SearchCursor struct {
	OwnerID           string    `json:"owner_id" db:"owner_id"`
	City              string    `json:"city" db:"city"`
	Industry          string    `json:"industry" db:"industry"`
	LastDistrictIndex int       `json:"last_district_index" db:"last_district_index"`
	LastKeywordIndex  int       `json:"last_keyword_index" db:"last_keyword_index"`
	DistrictCount     int       `json:"district_count" db:"district_count"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// NewSearchCursor returns the cursor used when no row exists yet.
func NewSearchCursor(ownerID, city, industry string) SearchCursor {
	return SearchCursor{
		OwnerID:           ownerID,
		City:              city,
		Industry:          industry,
		LastDistrictIndex: -1,
		LastKeywordIndex:  -1,
	}
}

// District is a searchable sub-area of a city.
type District struct {
	ID           int64   `json:"id" db:"id"`
	City         string  `json:"city" db:"city" yaml:"city"`
	Name         string  `json:"name" db:"name" yaml:"name"`
	Latitude     float64 `json:"latitude" db:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" db:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius_meters,omitempty" db:"radius_meters" yaml:"radius_meters"`
}

// LeadSource is an owner's configured preference for what to search and when.
type LeadSource struct {
	ID         string     `json:"id" db:"id" yaml:"id"`
	OwnerID    string     `json:"owner_id" db:"owner_id" yaml:"owner_id"`
	Industry   string     `json:"industry" db:"industry" yaml:"industry"`
	Location   string     `json:"location" db:"location" yaml:"location"`
	DayOfWeek  *int       `json:"day_of_week,omitempty" db:"day_of_week" yaml:"day_of_week"`
	Priority   int        `json:"priority" db:"priority" yaml:"priority"`
	Active     bool       `json:"active" db:"active" yaml:"active"`
	UsageCount int        `json:"usage_count" db:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Candidate is a place returned by search, not yet checked for a phone.
type Candidate struct {
	PlaceID     string `json:"place_id"`
	Name        string `json:"name"`
	Location    LatLng `json:"location"`
	Category    string `json:"category,omitempty"`
	Address     string `json:"address,omitempty"`
	Operational bool   `json:"operational"`
}

// PlaceDetails holds the contact fields resolved for a candidate.
type PlaceDetails struct {
	Phone       string  `json:"phone"`
	Website     string  `json:"website,omitempty"`
	Address     string  `json:"address,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	Location    *LatLng `json:"location,omitempty"`
}

// EnrichedLead is the persisted lead record.
type EnrichedLead struct {
	ID                  string     `json:"id" db:"id"`
	OwnerID             string     `json:"owner_id" db:"owner_id"`
	RunID               string     `json:"run_id,omitempty" db:"run_id"`
	PlaceID             string     `json:"google_place_id,omitempty" db:"google_place_id"`
	CompanyName         string     `json:"company_name" db:"company_name"`
	Phone               string     `json:"phone" db:"phone"`
	NormalizedPhone     string     `json:"normalized_phone" db:"normalized_phone"`
	Email               string     `json:"email,omitempty" db:"email"`
	Website             string     `json:"website,omitempty" db:"website"`
	Address             string     `json:"address,omitempty" db:"address"`
	City                string     `json:"city,omitempty" db:"city"`
	State               string     `json:"state,omitempty" db:"state"`
	Latitude            *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude           *float64   `json:"longitude,omitempty" db:"longitude"`
	Rating              float64    `json:"rating" db:"rating"`
	ReviewCount         int        `json:"review_count" db:"review_count"`
	Category            string     `json:"category,omitempty" db:"category"`
	PotentialNeeds      []string   `json:"potential_needs" db:"potential_needs"`
	EstimatedOrderValue float64    `json:"estimated_order_value" db:"estimated_order_value"`
	SuggestedPitch      string     `json:"suggested_pitch" db:"suggested_pitch"`
	AIInsights          string     `json:"ai_insights" db:"ai_insights"`
	LeadScore           int        `json:"lead_score" db:"lead_score"`
	Priority            Priority   `json:"priority" db:"priority"`
	Confidence          Confidence `json:"confidence" db:"confidence"`
	Source              Provenance `json:"source" db:"source"`
	Status              LeadStatus `json:"status" db:"status"`
	ContactCount        int        `json:"contact_count" db:"contact_count"`
	LastContactedAt     *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// RunLog records one invocation of the generation pipeline.
type RunLog struct {
	ID                string     `json:"id" db:"id"`
	OwnerID           string     `json:"owner_id" db:"owner_id"`
	Status            RunStatus  `json:"status" db:"status"`
	Industry          string     `json:"industry" db:"industry"`
	Location          string     `json:"location" db:"location"`
	District          string     `json:"district,omitempty" db:"district"`
	Keyword           string     `json:"keyword" db:"keyword"`
	CandidatesFound   int        `json:"candidates_found" db:"candidates_found"`
	LeadsGenerated    int        `json:"leads_generated" db:"leads_generated"`
	SkippedDuplicates int        `json:"skipped_duplicates" db:"skipped_duplicates"`
	FailedLeads       int        `json:"failed_leads" db:"failed_leads"`
	TotalProcessed    int        `json:"total_processed" db:"total_processed"`
	SearchCalls       int        `json:"places_search_calls" db:"places_search_calls"`
	DetailCalls       int        `json:"places_detail_calls" db:"places_detail_calls"`
	EnrichmentCalls   int        `json:"enrichment_calls" db:"enrichment_calls"`
	ScoringCalls      int        `json:"scoring_calls" db:"scoring_calls"`
	DurationSeconds   float64    `json:"duration_seconds" db:"duration_seconds"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	CostUSD           float64    `json:"cost_usd" db:"cost_usd"`
	Error             string     `json:"error,omitempty" db:"error"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Finish moves a running log to its terminal status and computes the derived
// duration and success rate. Calling Finish on a terminal log is a no-op.
func (r *RunLog) Finish(status RunStatus, at time.Time) {
	if r.Status != RunStatusRunning || status == RunStatusRunning {
		return
	}
	r.Status = status
	r.CompletedAt = &at
	r.DurationSeconds = at.Sub(r.StartedAt).Seconds()
	if r.TotalProcessed > 0 {
		r.SuccessRate = float64(r.LeadsGenerated) / float64(r.TotalProcessed)
	}
}

// LeadFilter narrows ListLeads.
type LeadFilter struct {
	Status LeadStatus
	Limit  int
	Offset int
}
