package leadgen

import (
	"context"
	"time"
)

// CursorStore persists rotator cursors keyed by (owner, city, industry).
type CursorStore interface {
	// GetCursor returns nil, nil when no cursor exists yet.
	GetCursor(ctx context.Context, ownerID, city, industry string) (*SearchCursor, error)
	UpsertCursor(ctx context.Context, c SearchCursor) error
}

// DistrictStore reads the per-city district catalog.
type DistrictStore interface {
	ListDistricts(ctx context.Context, city string) ([]District, error)
	UpsertDistricts(ctx context.Context, districts []District) (int64, error)
}

// SourceStore reads and updates an owner's lead-source preferences.
type SourceStore interface {
	ListLeadSources(ctx context.Context, ownerID string) ([]LeadSource, error)
	RecordSourceUsage(ctx context.Context, ownerID, sourceID string, at time.Time) error
	UpsertLeadSource(ctx context.Context, src LeadSource) error
}

// LeadLookup answers the duplicate-check queries. Every lookup is scoped to
// one owner.
type LeadLookup interface {
	LeadExistsByPlaceID(ctx context.Context, ownerID, placeID string) (bool, error)
	// LeadExistsByPhone matches either the exact normalized phone or, when
	// tail is non-empty, the trailing national digits.
	LeadExistsByPhone(ctx context.Context, ownerID, normalized, tail string) (bool, error)
	LeadExistsByName(ctx context.Context, ownerID, nameKey string) (bool, error)
}

// LeadStore persists and reads enriched leads.
type LeadStore interface {
	LeadLookup
	InsertLead(ctx context.Context, lead *EnrichedLead) error
	// GetLead returns ErrLeadNotFound when the lead does not exist for owner.
	GetLead(ctx context.Context, ownerID, id string) (*EnrichedLead, error)
	ListLeads(ctx context.Context, ownerID string, f LeadFilter) ([]EnrichedLead, error)
	UpdateLeadStatus(ctx context.Context, lead *EnrichedLead) error
}

// RunStore persists run logs.
type RunStore interface {
	CreateRunLog(ctx context.Context, run *RunLog) error
	FinishRunLog(ctx context.Context, run *RunLog) error
	ListRunLogs(ctx context.Context, ownerID string, limit int) ([]RunLog, error)
}

// Store is everything the pipeline reads and writes.
type Store interface {
	CursorStore
	DistrictStore
	SourceStore
	LeadStore
	RunStore
}
