package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS search_cursors (
	owner_id            TEXT NOT NULL,
	city                TEXT NOT NULL,
	industry            TEXT NOT NULL,
	last_district_index INTEGER NOT NULL DEFAULT -1,
	last_keyword_index  INTEGER NOT NULL DEFAULT -1,
	district_count      INTEGER NOT NULL DEFAULT 0,
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (owner_id, city, industry)
);

CREATE TABLE IF NOT EXISTS city_districts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	city          TEXT NOT NULL,
	name          TEXT NOT NULL,
	latitude      REAL NOT NULL,
	longitude     REAL NOT NULL,
	radius_meters REAL NOT NULL DEFAULT 0,
	UNIQUE (city, name)
);

CREATE TABLE IF NOT EXISTS lead_sources (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	industry     TEXT NOT NULL,
	location     TEXT NOT NULL,
	day_of_week  INTEGER,
	priority     INTEGER NOT NULL DEFAULT 0,
	active       INTEGER NOT NULL DEFAULT 1,
	usage_count  INTEGER NOT NULL DEFAULT 0,
	last_used_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_lead_sources_owner ON lead_sources(owner_id);

CREATE TABLE IF NOT EXISTS leads (
	id                    TEXT PRIMARY KEY,
	owner_id              TEXT NOT NULL,
	run_id                TEXT NOT NULL DEFAULT '',
	google_place_id       TEXT NOT NULL DEFAULT '',
	company_name          TEXT NOT NULL,
	phone                 TEXT NOT NULL,
	normalized_phone      TEXT NOT NULL,
	email                 TEXT NOT NULL DEFAULT '',
	website               TEXT NOT NULL DEFAULT '',
	address               TEXT NOT NULL DEFAULT '',
	city                  TEXT NOT NULL DEFAULT '',
	state                 TEXT NOT NULL DEFAULT '',
	latitude              REAL,
	longitude             REAL,
	rating                REAL NOT NULL DEFAULT 0,
	review_count          INTEGER NOT NULL DEFAULT 0,
	category              TEXT NOT NULL DEFAULT '',
	potential_needs       TEXT NOT NULL DEFAULT '[]',
	estimated_order_value REAL NOT NULL DEFAULT 0,
	suggested_pitch       TEXT NOT NULL DEFAULT '',
	ai_insights           TEXT NOT NULL DEFAULT '',
	lead_score            INTEGER NOT NULL DEFAULT 0,
	priority              TEXT NOT NULL DEFAULT 'cold',
	confidence            TEXT NOT NULL DEFAULT 'low',
	source                TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'new',
	contact_count         INTEGER NOT NULL DEFAULT 0,
	last_contacted_at     DATETIME,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	name_key              TEXT NOT NULL DEFAULT '',
	phone_tail            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leads_owner_place ON leads(owner_id, google_place_id);
CREATE INDEX IF NOT EXISTS idx_leads_owner_phone ON leads(owner_id, normalized_phone);
CREATE INDEX IF NOT EXISTS idx_leads_owner_phone_tail ON leads(owner_id, phone_tail);
CREATE INDEX IF NOT EXISTS idx_leads_owner_name ON leads(owner_id, name_key);
CREATE INDEX IF NOT EXISTS idx_leads_owner_created ON leads(owner_id, created_at);

CREATE TABLE IF NOT EXISTS lead_runs (
	id                  TEXT PRIMARY KEY,
	owner_id            TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'running',
	industry            TEXT NOT NULL,
	location            TEXT NOT NULL,
	district            TEXT NOT NULL DEFAULT '',
	keyword             TEXT NOT NULL DEFAULT '',
	candidates_found    INTEGER NOT NULL DEFAULT 0,
	leads_generated     INTEGER NOT NULL DEFAULT 0,
	skipped_duplicates  INTEGER NOT NULL DEFAULT 0,
	failed_leads        INTEGER NOT NULL DEFAULT 0,
	total_processed     INTEGER NOT NULL DEFAULT 0,
	places_search_calls INTEGER NOT NULL DEFAULT 0,
	places_detail_calls INTEGER NOT NULL DEFAULT 0,
	enrichment_calls    INTEGER NOT NULL DEFAULT 0,
	scoring_calls       INTEGER NOT NULL DEFAULT 0,
	duration_seconds    REAL NOT NULL DEFAULT 0,
	success_rate        REAL NOT NULL DEFAULT 0,
	cost_usd            REAL NOT NULL DEFAULT 0,
	error               TEXT NOT NULL DEFAULT '',
	started_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_lead_runs_owner_started ON lead_runs(owner_id, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Cursors

func (s *SQLiteStore) GetCursor(ctx context.Context, ownerID, city, industry string) (*leadgen.SearchCursor, error) {
	var c leadgen.SearchCursor
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, city, industry, last_district_index, last_keyword_index, district_count, updated_at
		 FROM search_cursors WHERE owner_id = ? AND city = ? AND industry = ?`,
		ownerID, city, industry,
	).Scan(&c.OwnerID, &c.City, &c.Industry, &c.LastDistrictIndex, &c.LastKeywordIndex, &c.DistrictCount, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cursor")
	}
	return &c, nil
}

func (s *SQLiteStore) UpsertCursor(ctx context.Context, c leadgen.SearchCursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_cursors (owner_id, city, industry, last_district_index, last_keyword_index, district_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, city, industry) DO UPDATE SET
			last_district_index = excluded.last_district_index,
			last_keyword_index = excluded.last_keyword_index,
			district_count = excluded.district_count,
			updated_at = excluded.updated_at`,
		c.OwnerID, c.City, c.Industry, c.LastDistrictIndex, c.LastKeywordIndex, c.DistrictCount, c.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert cursor")
}

// Districts

func (s *SQLiteStore) ListDistricts(ctx context.Context, city string) ([]leadgen.District, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, city, name, latitude, longitude, radius_meters FROM city_districts WHERE lower(city) = lower(?) ORDER BY id`,
		city,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list districts")
	}
	defer rows.Close()

	var out []leadgen.District
	for rows.Next() {
		var d leadgen.District
		if err := rows.Scan(&d.ID, &d.City, &d.Name, &d.Latitude, &d.Longitude, &d.RadiusMeters); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan district")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list districts iterate")
}

func (s *SQLiteStore) UpsertDistricts(ctx context.Context, districts []leadgen.District) (int64, error) {
	if len(districts) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert districts: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO city_districts (city, name, latitude, longitude, radius_meters) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (city, name) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_meters = excluded.radius_meters`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert districts: prepare")
	}
	defer stmt.Close()

	var n int64
	for _, d := range districts {
		res, err := stmt.ExecContext(ctx, d.City, d.Name, d.Latitude, d.Longitude, d.RadiusMeters)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert district %s/%s", d.City, d.Name)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert districts: commit")
	}
	return n, nil
}

// Lead sources

func (s *SQLiteStore) ListLeadSources(ctx context.Context, ownerID string) ([]leadgen.LeadSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, industry, location, day_of_week, priority, active, usage_count, last_used_at
		 FROM lead_sources WHERE owner_id = ? ORDER BY priority DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lead sources")
	}
	defer rows.Close()

	var out []leadgen.LeadSource
	for rows.Next() {
		var src leadgen.LeadSource
		if err := rows.Scan(&src.ID, &src.OwnerID, &src.Industry, &src.Location, &src.DayOfWeek,
			&src.Priority, &src.Active, &src.UsageCount, &src.LastUsedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead source")
		}
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lead sources iterate")
}

func (s *SQLiteStore) RecordSourceUsage(ctx context.Context, ownerID, sourceID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_sources SET usage_count = usage_count + 1, last_used_at = ? WHERE owner_id = ? AND id = ?`,
		at, ownerID, sourceID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: record source usage")
	}
	return checkRowsAffected(res, "lead source", sourceID)
}

func (s *SQLiteStore) UpsertLeadSource(ctx context.Context, src leadgen.LeadSource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_sources (id, owner_id, industry, location, day_of_week, priority, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			industry = excluded.industry,
			location = excluded.location,
			day_of_week = excluded.day_of_week,
			priority = excluded.priority,
			active = excluded.active`,
		src.ID, src.OwnerID, src.Industry, src.Location, src.DayOfWeek, src.Priority, src.Active,
	)
	return eris.Wrap(err, "sqlite: upsert lead source")
}

// Leads

func (s *SQLiteStore) LeadExistsByPlaceID(ctx context.Context, ownerID, placeID string) (bool, error) {
	return s.exists(ctx, "place",
		`SELECT EXISTS(SELECT 1 FROM leads WHERE owner_id = ? AND google_place_id = ?)`,
		ownerID, placeID)
}

func (s *SQLiteStore) LeadExistsByPhone(ctx context.Context, ownerID, normalized, tail string) (bool, error) {
	return s.exists(ctx, "phone",
		`SELECT EXISTS(SELECT 1 FROM leads WHERE owner_id = ? AND (normalized_phone = ? OR (? <> '' AND phone_tail = ?)))`,
		ownerID, normalized, tail, tail)
}

func (s *SQLiteStore) LeadExistsByName(ctx context.Context, ownerID, nameKey string) (bool, error) {
	return s.exists(ctx, "name",
		`SELECT EXISTS(SELECT 1 FROM leads WHERE owner_id = ? AND name_key = ?)`,
		ownerID, nameKey)
}

func (s *SQLiteStore) exists(ctx context.Context, by, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, eris.Wrapf(err, "sqlite: lead exists by %s", by)
	}
	return ok, nil
}

func (s *SQLiteStore) InsertLead(ctx context.Context, lead *leadgen.EnrichedLead) error {
	needs, err := marshalNeeds(lead.PotentialNeeds)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert lead")
	}
	nameKey, tail := leadKeys(lead)
	args := append(leadArgs(lead, string(needs)), nameKey, tail)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`, name_key, phone_tail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: insert lead")
}

func (s *SQLiteStore) GetLead(ctx context.Context, ownerID, id string) (*leadgen.EnrichedLead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE owner_id = ? AND id = ?`,
		ownerID, id,
	)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leadgen.ErrLeadNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead")
	}
	return lead, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, ownerID string, f leadgen.LeadFilter) ([]leadgen.EnrichedLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE owner_id = ?`
	args := []any{ownerID}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(f.Limit))

	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []leadgen.EnrichedLead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, lead *leadgen.EnrichedLead) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, contact_count = ?, last_contacted_at = ?, updated_at = ?
		 WHERE owner_id = ? AND id = ?`,
		string(lead.Status), lead.ContactCount, lead.LastContactedAt, lead.UpdatedAt, lead.OwnerID, lead.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update lead status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return leadgen.ErrLeadNotFound
	}
	return nil
}

// Run logs

func (s *SQLiteStore) CreateRunLog(ctx context.Context, run *leadgen.RunLog) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runArgs(run)...,
	)
	return eris.Wrap(err, "sqlite: create run log")
}

func (s *SQLiteStore) FinishRunLog(ctx context.Context, run *leadgen.RunLog) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET status = ?, district = ?, keyword = ?, candidates_found = ?,
			leads_generated = ?, skipped_duplicates = ?, failed_leads = ?, total_processed = ?,
			places_search_calls = ?, places_detail_calls = ?, enrichment_calls = ?, scoring_calls = ?,
			duration_seconds = ?, success_rate = ?, cost_usd = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.Status), run.District, run.Keyword, run.CandidatesFound,
		run.LeadsGenerated, run.SkippedDuplicates, run.FailedLeads, run.TotalProcessed,
		run.SearchCalls, run.DetailCalls, run.EnrichmentCalls, run.ScoringCalls,
		run.DurationSeconds, run.SuccessRate, run.CostUSD, run.Error, run.CompletedAt,
		run.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: finish run log")
	}
	return checkRowsAffected(res, "run log", run.ID)
}

func (s *SQLiteStore) ListRunLogs(ctx context.Context, ownerID string, limit int) ([]leadgen.RunLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM lead_runs WHERE owner_id = ? ORDER BY started_at DESC LIMIT ?`,
		ownerID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run logs")
	}
	defer rows.Close()

	var runs []leadgen.RunLog
	for rows.Next() {
		r, err := scanRunLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run log")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list run logs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
