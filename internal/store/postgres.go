package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgLeadExistsByPlace = `SELECT EXISTS(SELECT 1 FROM leads WHERE owner_id = $1 AND google_place_id = $2)`
	pgLeadExistsByPhone = `SELECT EXISTS(SELECT 1 FROM leads WHERE owner_id = $1 AND (normalized_phone = $2 OR ($3 <> '' AND phone_tail = $3)))`
	pgLeadExistsByName  = `SELECT EXISTS(SELECT 1 FROM leads WHERE owner_id = $1 AND name_key = $2)`
	pgInsertLead        = `INSERT INTO leads (` + leadColumns + `, name_key, phone_tail) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`
	pgGetCursor         = `SELECT owner_id, city, industry, last_district_index, last_keyword_index, district_count, updated_at FROM search_cursors WHERE owner_id = $1 AND city = $2 AND industry = $3`
	pgUpsertCursor      = `INSERT INTO search_cursors (owner_id, city, industry, last_district_index, last_keyword_index, district_count, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (owner_id, city, industry) DO UPDATE SET
	last_district_index = EXCLUDED.last_district_index,
	last_keyword_index = EXCLUDED.last_keyword_index,
	district_count = EXCLUDED.district_count,
	updated_at = EXCLUDED.updated_at`
)

// Names of the statements prepared on each new connection. Call sites pass
// the name in place of the SQL so pgx executes the prepared statement.
const (
	stmtLeadExistsPlace = "lead_exists_place"
	stmtLeadExistsPhone = "lead_exists_phone"
	stmtLeadExistsName  = "lead_exists_name"
	stmtInsertLead      = "insert_lead"
	stmtGetCursor       = "get_cursor"
	stmtUpsertCursor    = "upsert_cursor"
)

var preparedStatements = map[string]string{
	stmtLeadExistsPlace: pgLeadExistsByPlace,
	stmtLeadExistsPhone: pgLeadExistsByPhone,
	stmtLeadExistsName:  pgLeadExistsByName,
	stmtInsertLead:      pgInsertLead,
	stmtGetCursor:       pgGetCursor,
	stmtUpsertCursor:    pgUpsertCursor,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for bulk loaders such as the
// seed command.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS search_cursors (
	owner_id            TEXT NOT NULL,
	city                TEXT NOT NULL,
	industry            TEXT NOT NULL,
	last_district_index INTEGER NOT NULL DEFAULT -1,
	last_keyword_index  INTEGER NOT NULL DEFAULT -1,
	district_count      INTEGER NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, city, industry)
);

CREATE TABLE IF NOT EXISTS city_districts (
	id            BIGSERIAL PRIMARY KEY,
	city          TEXT NOT NULL,
	name          TEXT NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	longitude     DOUBLE PRECISION NOT NULL,
	radius_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (city, name)
);

CREATE INDEX IF NOT EXISTS idx_city_districts_city ON city_districts(lower(city));

CREATE TABLE IF NOT EXISTS lead_sources (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	industry     TEXT NOT NULL,
	location     TEXT NOT NULL,
	day_of_week  INTEGER,
	priority     INTEGER NOT NULL DEFAULT 0,
	active       BOOLEAN NOT NULL DEFAULT true,
	usage_count  INTEGER NOT NULL DEFAULT 0,
	last_used_at TIMESTAMPTZ
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
	latitude              DOUBLE PRECISION,
	longitude             DOUBLE PRECISION,
	rating                DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count          INTEGER NOT NULL DEFAULT 0,
	category              TEXT NOT NULL DEFAULT '',
	potential_needs       JSONB NOT NULL DEFAULT '[]',
	estimated_order_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	suggested_pitch       TEXT NOT NULL DEFAULT '',
	ai_insights           TEXT NOT NULL DEFAULT '',
	lead_score            INTEGER NOT NULL DEFAULT 0,
	priority              TEXT NOT NULL DEFAULT 'cold',
	confidence            TEXT NOT NULL DEFAULT 'low',
	source                TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'new',
	contact_count         INTEGER NOT NULL DEFAULT 0,
	last_contacted_at     TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	name_key              TEXT NOT NULL DEFAULT '',
	phone_tail            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leads_owner_place ON leads(owner_id, google_place_id) WHERE google_place_id <> '';
CREATE INDEX IF NOT EXISTS idx_leads_owner_phone ON leads(owner_id, normalized_phone);
CREATE INDEX IF NOT EXISTS idx_leads_owner_phone_tail ON leads(owner_id, phone_tail) WHERE phone_tail <> '';
CREATE INDEX IF NOT EXISTS idx_leads_owner_name ON leads(owner_id, name_key);
CREATE INDEX IF NOT EXISTS idx_leads_owner_created ON leads(owner_id, created_at DESC);

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
	duration_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_usd            DOUBLE PRECISION NOT NULL DEFAULT 0,
	error               TEXT NOT NULL DEFAULT '',
	started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_lead_runs_owner_started ON lead_runs(owner_id, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Cursors

func (s *PostgresStore) GetCursor(ctx context.Context, ownerID, city, industry string) (*leadgen.SearchCursor, error) {
	var c leadgen.SearchCursor
	err := s.pool.QueryRow(ctx, stmtGetCursor, ownerID, city, industry).Scan(
		&c.OwnerID, &c.City, &c.Industry, &c.LastDistrictIndex, &c.LastKeywordIndex, &c.DistrictCount, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cursor")
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCursor(ctx context.Context, c leadgen.SearchCursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, stmtUpsertCursor,
		c.OwnerID, c.City, c.Industry, c.LastDistrictIndex, c.LastKeywordIndex, c.DistrictCount, c.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: upsert cursor")
}

// Districts

func (s *PostgresStore) ListDistricts(ctx context.Context, city string) ([]leadgen.District, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, city, name, latitude, longitude, radius_meters FROM city_districts WHERE lower(city) = lower($1) ORDER BY id`,
		city,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list districts")
	}
	defer rows.Close()

	var out []leadgen.District
	for rows.Next() {
		var d leadgen.District
		if err := rows.Scan(&d.ID, &d.City, &d.Name, &d.Latitude, &d.Longitude, &d.RadiusMeters); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list districts iterate")
}

// UpsertDistricts bulk-loads districts, keyed by (city, name).
func (s *PostgresStore) UpsertDistricts(ctx context.Context, districts []leadgen.District) (int64, error) {
	rows := make([][]any, 0, len(districts))
	for _, d := range districts {
		rows = append(rows, []any{d.City, d.Name, d.Latitude, d.Longitude, d.RadiusMeters})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "city_districts",
		Columns:      []string{"city", "name", "latitude", "longitude", "radius_meters"},
		ConflictKeys: []string{"city", "name"},
		UpdateCols:   []string{"latitude", "longitude", "radius_meters"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert districts")
}

// Lead sources

func (s *PostgresStore) ListLeadSources(ctx context.Context, ownerID string) ([]leadgen.LeadSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, industry, location, day_of_week, priority, active, usage_count, last_used_at
		 FROM lead_sources WHERE owner_id = $1 ORDER BY priority DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lead sources")
	}
	defer rows.Close()

	var out []leadgen.LeadSource
	for rows.Next() {
		var src leadgen.LeadSource
		if err := rows.Scan(&src.ID, &src.OwnerID, &src.Industry, &src.Location, &src.DayOfWeek,
			&src.Priority, &src.Active, &src.UsageCount, &src.LastUsedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead source")
		}
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lead sources iterate")
}

func (s *PostgresStore) RecordSourceUsage(ctx context.Context, ownerID, sourceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_sources SET usage_count = usage_count + 1, last_used_at = $1 WHERE owner_id = $2 AND id = $3`,
		at, ownerID, sourceID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record source usage")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: lead source not found: %s", sourceID)
	}
	return nil
}

func (s *PostgresStore) UpsertLeadSource(ctx context.Context, src leadgen.LeadSource) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lead_sources (id, owner_id, industry, location, day_of_week, priority, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			industry = EXCLUDED.industry,
			location = EXCLUDED.location,
			day_of_week = EXCLUDED.day_of_week,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active`,
		src.ID, src.OwnerID, src.Industry, src.Location, src.DayOfWeek, src.Priority, src.Active,
	)
	return eris.Wrap(err, "postgres: upsert lead source")
}

// Leads

func (s *PostgresStore) LeadExistsByPlaceID(ctx context.Context, ownerID, placeID string) (bool, error) {
	return s.exists(ctx, "place", stmtLeadExistsPlace, ownerID, placeID)
}

func (s *PostgresStore) LeadExistsByPhone(ctx context.Context, ownerID, normalized, tail string) (bool, error) {
	return s.exists(ctx, "phone", stmtLeadExistsPhone, ownerID, normalized, tail)
}

func (s *PostgresStore) LeadExistsByName(ctx context.Context, ownerID, nameKey string) (bool, error) {
	return s.exists(ctx, "name", stmtLeadExistsName, ownerID, nameKey)
}

func (s *PostgresStore) exists(ctx context.Context, by, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, eris.Wrapf(err, "postgres: lead exists by %s", by)
	}
	return ok, nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead *leadgen.EnrichedLead) error {
	needs, err := marshalNeeds(lead.PotentialNeeds)
	if err != nil {
		return eris.Wrap(err, "postgres: insert lead")
	}
	nameKey, tail := leadKeys(lead)
	args := append(leadArgs(lead, needs), nameKey, tail)
	_, err = s.pool.Exec(ctx, stmtInsertLead, args...)
	return eris.Wrap(err, "postgres: insert lead")
}

func (s *PostgresStore) GetLead(ctx context.Context, ownerID, id string) (*leadgen.EnrichedLead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, leadgen.ErrLeadNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lead")
	}
	return lead, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, ownerID string, f leadgen.LeadFilter) ([]leadgen.EnrichedLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE owner_id = $1`
	args := []any{ownerID}
	argIdx := 2

	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(f.Limit))
	argIdx++

	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []leadgen.EnrichedLead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, lead *leadgen.EnrichedLead) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, contact_count = $2, last_contacted_at = $3, updated_at = $4
		 WHERE owner_id = $5 AND id = $6`,
		string(lead.Status), lead.ContactCount, lead.LastContactedAt, lead.UpdatedAt, lead.OwnerID, lead.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update lead status")
	}
	if tag.RowsAffected() == 0 {
		return leadgen.ErrLeadNotFound
	}
	return nil
}

// Run logs

func (s *PostgresStore) CreateRunLog(ctx context.Context, run *leadgen.RunLog) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lead_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		runArgs(run)...,
	)
	return eris.Wrap(err, "postgres: create run log")
}

func (s *PostgresStore) FinishRunLog(ctx context.Context, run *leadgen.RunLog) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET status = $1, district = $2, keyword = $3, candidates_found = $4,
			leads_generated = $5, skipped_duplicates = $6, failed_leads = $7, total_processed = $8,
			places_search_calls = $9, places_detail_calls = $10, enrichment_calls = $11, scoring_calls = $12,
			duration_seconds = $13, success_rate = $14, cost_usd = $15, error = $16, completed_at = $17
		 WHERE id = $18`,
		string(run.Status), run.District, run.Keyword, run.CandidatesFound,
		run.LeadsGenerated, run.SkippedDuplicates, run.FailedLeads, run.TotalProcessed,
		run.SearchCalls, run.DetailCalls, run.EnrichmentCalls, run.ScoringCalls,
		run.DurationSeconds, run.SuccessRate, run.CostUSD, run.Error, run.CompletedAt,
		run.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: finish run log")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run log not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListRunLogs(ctx context.Context, ownerID string, limit int) ([]leadgen.RunLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM lead_runs WHERE owner_id = $1 ORDER BY started_at DESC LIMIT $2`,
		ownerID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run logs")
	}
	defer rows.Close()

	var runs []leadgen.RunLog
	for rows.Next() {
		r, err := scanRunLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run log")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list run logs iterate")
}
