// Package store persists cursors, districts, lead sources, leads and run
// logs in Postgres or SQLite.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

// Store is the pipeline's persistence contract plus lifecycle hooks.
type Store interface {
	leadgen.Store

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend named by cfg.Driver ("postgres" or "sqlite").
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "leadgen.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

const leadColumns = `id, owner_id, run_id, google_place_id, company_name, phone, normalized_phone,
	email, website, address, city, state, latitude, longitude, rating, review_count, category,
	potential_needs, estimated_order_value, suggested_pitch, ai_insights, lead_score, priority,
	confidence, source, status, contact_count, last_contacted_at, created_at, updated_at`

const runColumns = `id, owner_id, status, industry, location, district, keyword, candidates_found,
	leads_generated, skipped_duplicates, failed_leads, total_processed, places_search_calls,
	places_detail_calls, enrichment_calls, scoring_calls, duration_seconds, success_rate,
	cost_usd, error, started_at, completed_at`

const defaultListLimit = 50

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// leadKeys returns the folded name and phone tail stored beside a lead for
// duplicate lookups.
func leadKeys(l *leadgen.EnrichedLead) (nameKey, phoneTail string) {
	return leadgen.NameKey(l.CompanyName), leadgen.PhoneTail(l.NormalizedPhone)
}

func leadArgs(l *leadgen.EnrichedLead, needs any) []any {
	return []any{
		l.ID, l.OwnerID, l.RunID, l.PlaceID, l.CompanyName, l.Phone, l.NormalizedPhone,
		l.Email, l.Website, l.Address, l.City, l.State, l.Latitude, l.Longitude, l.Rating,
		l.ReviewCount, l.Category, needs, l.EstimatedOrderValue, l.SuggestedPitch, l.AIInsights,
		l.LeadScore, string(l.Priority), string(l.Confidence), string(l.Source), string(l.Status),
		l.ContactCount, l.LastContactedAt, l.CreatedAt, l.UpdatedAt,
	}
}

func scanLead(row scannable) (*leadgen.EnrichedLead, error) {
	var (
		l                                    leadgen.EnrichedLead
		needs                                []byte
		priority, confidence, source, status string
	)
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.RunID, &l.PlaceID, &l.CompanyName, &l.Phone, &l.NormalizedPhone,
		&l.Email, &l.Website, &l.Address, &l.City, &l.State, &l.Latitude, &l.Longitude, &l.Rating,
		&l.ReviewCount, &l.Category, &needs, &l.EstimatedOrderValue, &l.SuggestedPitch, &l.AIInsights,
		&l.LeadScore, &priority, &confidence, &source, &status,
		&l.ContactCount, &l.LastContactedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Priority = leadgen.Priority(priority)
	l.Confidence = leadgen.Confidence(confidence)
	l.Source = leadgen.Provenance(source)
	l.Status = leadgen.LeadStatus(status)
	if len(needs) > 0 {
		if err := json.Unmarshal(needs, &l.PotentialNeeds); err != nil {
			return nil, eris.Wrap(err, "unmarshal potential_needs")
		}
	}
	if l.PotentialNeeds == nil {
		l.PotentialNeeds = []string{}
	}
	return &l, nil
}

func marshalNeeds(needs []string) ([]byte, error) {
	if needs == nil {
		needs = []string{}
	}
	b, err := json.Marshal(needs)
	return b, eris.Wrap(err, "marshal potential_needs")
}

func runArgs(r *leadgen.RunLog) []any {
	return []any{
		r.ID, r.OwnerID, string(r.Status), r.Industry, r.Location, r.District, r.Keyword,
		r.CandidatesFound, r.LeadsGenerated, r.SkippedDuplicates, r.FailedLeads, r.TotalProcessed,
		r.SearchCalls, r.DetailCalls, r.EnrichmentCalls, r.ScoringCalls, r.DurationSeconds,
		r.SuccessRate, r.CostUSD, r.Error, r.StartedAt, r.CompletedAt,
	}
}

func scanRunLog(row scannable) (*leadgen.RunLog, error) {
	var (
		r      leadgen.RunLog
		status string
	)
	err := row.Scan(
		&r.ID, &r.OwnerID, &status, &r.Industry, &r.Location, &r.District, &r.Keyword,
		&r.CandidatesFound, &r.LeadsGenerated, &r.SkippedDuplicates, &r.FailedLeads, &r.TotalProcessed,
		&r.SearchCalls, &r.DetailCalls, &r.EnrichmentCalls, &r.ScoringCalls, &r.DurationSeconds,
		&r.SuccessRate, &r.CostUSD, &r.Error, &r.StartedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = leadgen.RunStatus(status)
	return &r, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
