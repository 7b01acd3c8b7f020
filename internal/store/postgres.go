package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/db"
	"github.com/sells-group/prospect-enricher/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS targets (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain            TEXT NOT NULL UNIQUE,
	company_name      TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL DEFAULT '',
	facebook_url      TEXT NOT NULL DEFAULT '',
	monthly_traffic   BIGINT NOT NULL DEFAULT 0,
	traffic_tier      TEXT NOT NULL DEFAULT '',
	company_size      TEXT NOT NULL DEFAULT '',
	estimated_leads   BIGINT NOT NULL DEFAULT 0,
	estimated_revenue TEXT NOT NULL DEFAULT '0',
	traffic_source    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prospects (
	id                         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	target_id                  TEXT NOT NULL UNIQUE REFERENCES targets(id),
	status                     TEXT NOT NULL DEFAULT 'new',
	prior_status               TEXT NOT NULL DEFAULT '',
	locked_at                  TIMESTAMPTZ,
	locked_by                  TEXT NOT NULL DEFAULT '',
	enrichment_retry_count     INTEGER NOT NULL DEFAULT 0,
	last_attempt_at            TIMESTAMPTZ,
	notes                      TEXT NOT NULL DEFAULT '',
	contact_count              INTEGER NOT NULL DEFAULT 0,
	icebreaker_text            TEXT NOT NULL DEFAULT '',
	icebreaker_generated_at    TIMESTAMPTZ,
	icebreaker_manually_edited BOOLEAN NOT NULL DEFAULT FALSE,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prospect_id  TEXT NOT NULL REFERENCES prospects(id),
	target_id    TEXT NOT NULL,
	first_name   TEXT NOT NULL DEFAULT '',
	last_name    TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL,
	phone        TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	facebook_url TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (prospect_id, email)
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	processing_mode TEXT NOT NULL,
	total           INTEGER NOT NULL DEFAULT 0,
	processed       INTEGER NOT NULL DEFAULT 0,
	succeeded       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	stop_requested  BOOLEAN NOT NULL DEFAULT FALSE,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_enrichment_jobs_one_running
	ON enrichment_jobs(status) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS enrichment_job_items (
	job_id       TEXT NOT NULL REFERENCES enrichment_jobs(id),
	prospect_id  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	emails_found BOOLEAN NOT NULL DEFAULT FALSE,
	message      TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, prospect_id)
);

CREATE TABLE IF NOT EXISTS import_jobs (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	csv             TEXT NOT NULL,
	total_rows      INTEGER NOT NULL DEFAULT 0,
	processed_rows  INTEGER NOT NULL DEFAULT 0,
	successful_rows INTEGER NOT NULL DEFAULT 0,
	failed_rows     INTEGER NOT NULL DEFAULT 0,
	error_log       JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(status);
CREATE INDEX IF NOT EXISTS idx_contacts_prospect ON contacts(prospect_id);
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

// --- Prospects ---

func (s *PostgresStore) CreateProspect(ctx context.Context, targetID string) (*model.Prospect, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prospects (id, target_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (target_id) DO NOTHING`,
		uuid.New().String(), targetID, string(model.ProspectStatusNew), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert prospect for target %s", targetID)
	}
	p, err := scanProspect(s.pool.QueryRow(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE target_id = $1`, targetID))
	if err != nil {
		return nil, pgErr(err, "postgres: get prospect for target %s", targetID)
	}
	return p, nil
}

func (s *PostgresStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	p, err := scanProspect(s.pool.QueryRow(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = $1`, id))
	if err != nil {
		return nil, pgErr(err, "postgres: get prospect %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListProspects(ctx context.Context, ids []string) ([]model.Prospect, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	return collectPgProspects(rows)
}

func (s *PostgresStore) ListStaleEnriching(ctx context.Context, before time.Time) ([]model.Prospect, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prospectColumns+` FROM prospects
		 WHERE status = $1 AND (locked_at IS NULL OR locked_at < $2)`,
		string(model.ProspectStatusEnriching), before.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stale enriching")
	}
	return collectPgProspects(rows)
}

func (s *PostgresStore) BeginEnrichment(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET
			prior_status = CASE WHEN status = $1 THEN prior_status ELSE status END,
			status = $1, last_attempt_at = $2, updated_at = $2
		 WHERE id = $3`,
		string(model.ProspectStatusEnriching), now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin enrichment %s", id)
	}
	return checkTag(tag, "prospect", id)
}

func (s *PostgresStore) FinishEnrichment(ctx context.Context, id string, fin model.Finalization) error {
	now := time.Now().UTC()
	entry := noteEntry(fin.Note, now)
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET
			status = $1, contact_count = $2, enrichment_retry_count = $3, prior_status = '',
			notes = CASE WHEN notes = '' THEN $4 ELSE notes || $5 END,
			updated_at = $6
		 WHERE id = $7`,
		string(fin.Status), fin.ContactCount, model.MaxEnrichmentAttempts, entry, "\n"+entry, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish enrichment %s", id)
	}
	return checkTag(tag, "prospect", id)
}

func (s *PostgresStore) RevertEnrichment(ctx context.Context, id, note string) error {
	now := time.Now().UTC()
	entry := noteEntry(note, now)
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET
			status = CASE WHEN prior_status = '' THEN $1 ELSE prior_status END,
			prior_status = '',
			notes = CASE WHEN notes = '' THEN $2 ELSE notes || $3 END,
			updated_at = $4
		 WHERE id = $5`,
		string(model.ProspectStatusNeedsReview), entry, "\n"+entry, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: revert enrichment %s", id)
	}
	return checkTag(tag, "prospect", id)
}

func (s *PostgresStore) ResetProspect(ctx context.Context, id, note string, staleBefore time.Time) error {
	now := time.Now().UTC()
	entry := noteEntry(note, now)
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET
			status = $1, prior_status = '', enrichment_retry_count = 0,
			locked_at = NULL, locked_by = '',
			notes = CASE WHEN notes = '' THEN $2 ELSE notes || $3 END,
			updated_at = $4
		 WHERE id = $5 AND (locked_at IS NULL OR locked_at < $6)`,
		string(model.ProspectStatusNeedsReview), entry, "\n"+entry, now, id, staleBefore.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset prospect %s", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM prospects WHERE id = $1`, id).Scan(&exists); err != nil {
		return pgErr(err, "postgres: reset prospect %s", id)
	}
	return eris.Wrapf(ErrConflict, "prospect %s is leased", id)
}

func (s *PostgresStore) SaveIcebreaker(ctx context.Context, id, text string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET icebreaker_text = $1, icebreaker_generated_at = $2, updated_at = now()
		 WHERE id = $3 AND icebreaker_manually_edited = FALSE`,
		text, at.UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: save icebreaker %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Leases ---

func (s *PostgresStore) AcquireLock(ctx context.Context, id, owner string, now, staleBefore time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET locked_at = $1, locked_by = $2
		 WHERE id = $3 AND (locked_at IS NULL OR locked_at < $4)`,
		now.UTC(), owner, id, staleBefore.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: acquire lock %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RenewLock(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET locked_at = $1 WHERE id = $2 AND locked_by = $3 AND locked_at IS NOT NULL`,
		now.UTC(), id, owner,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: renew lock %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseLock(ctx context.Context, id, owner string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET locked_at = NULL, locked_by = '' WHERE id = $1 AND locked_by = $2`,
		id, owner,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: release lock %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Targets ---

func (s *PostgresStore) UpsertTarget(ctx context.Context, t *model.Target) (*model.Target, error) {
	now := time.Now().UTC()
	out, err := scanTarget(s.pool.QueryRow(ctx,
		`INSERT INTO targets (id, domain, company_name, industry, facebook_url, monthly_traffic,
			traffic_tier, company_size, estimated_leads, estimated_revenue, traffic_source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		 ON CONFLICT (domain) DO UPDATE SET
			company_name = CASE WHEN EXCLUDED.company_name <> '' THEN EXCLUDED.company_name ELSE targets.company_name END,
			industry = CASE WHEN EXCLUDED.industry <> '' THEN EXCLUDED.industry ELSE targets.industry END,
			monthly_traffic = EXCLUDED.monthly_traffic,
			traffic_tier = EXCLUDED.traffic_tier,
			company_size = EXCLUDED.company_size,
			estimated_leads = EXCLUDED.estimated_leads,
			estimated_revenue = EXCLUDED.estimated_revenue,
			traffic_source = EXCLUDED.traffic_source,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+targetColumns,
		uuid.New().String(), t.Domain, t.CompanyName, t.Industry, t.FacebookURL, t.MonthlyTraffic,
		t.TrafficTier, t.CompanySize, t.EstimatedLeads, t.EstimatedRevenue, t.TrafficSource, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert target %s", t.Domain)
	}
	return out, nil
}

func (s *PostgresStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id))
	if err != nil {
		return nil, pgErr(err, "postgres: get target %s", id)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTargetProfile(ctx context.Context, id string, upd model.ProfileUpdate) error {
	if upd.Empty() {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET
			company_name = COALESCE(NULLIF($1, ''), company_name),
			industry = COALESCE(NULLIF($2, ''), industry),
			facebook_url = COALESCE(NULLIF($3, ''), facebook_url),
			updated_at = now()
		 WHERE id = $4`,
		upd.CompanyName, upd.Industry, upd.FacebookURL, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update target profile %s", id)
	}
	return checkTag(tag, "target", id)
}

// --- Contacts ---

func (s *PostgresStore) InsertContact(ctx context.Context, c *model.Contact) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (`+contactColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (prospect_id, email) DO NOTHING`,
		c.ID, c.ProspectID, c.TargetID, c.FirstName, c.LastName, c.Email, c.Phone,
		c.Title, c.LinkedInURL, c.FacebookURL, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert contact %s", c.Email)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, prospectID string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE prospect_id = $1 ORDER BY created_at, id`, prospectID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contacts %s", prospectID)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

// --- Settings ---

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: get setting %s", key)
	}
	return value, true, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: set setting %s", key)
}

// --- Enrichment jobs ---

func (s *PostgresStore) RunningJob(ctx context.Context) (*model.EnrichmentJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM enrichment_jobs WHERE status = $1 LIMIT 1`, string(model.JobStatusRunning)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: running job")
	}
	return j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.EnrichmentJob, prospectIDs []string) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO enrichment_jobs (id, status, processing_mode, total, started_at) VALUES ($1, $2, $3, $4, $5)`,
			job.ID, string(job.Status), string(job.Mode), job.Total, job.StartedAt.UTC(),
		); err != nil {
			return err
		}

		now := time.Now().UTC()
		rows := make([][]any, len(prospectIDs))
		for i, pid := range prospectIDs {
			rows[i] = []any{job.ID, pid, string(model.JobItemPending), now}
		}
		_, err := db.CopyFrom(ctx, tx, "enrichment_job_items",
			[]string{"job_id", "prospect_id", "status", "updated_at"}, rows)
		return err
	})
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) && pgError.Code == "23505" {
		return eris.Wrap(ErrConflict, "postgres: another job is running")
	}
	return eris.Wrapf(err, "postgres: create job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, pgErr(err, "postgres: get job %s", id)
	}
	return j, nil
}

func (s *PostgresStore) RequestStop(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE enrichment_jobs SET stop_requested = TRUE WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: request stop %s", id)
	}
	return checkTag(tag, "job", id)
}

func (s *PostgresStore) IncrementJobCounters(ctx context.Context, id string, d model.JobCounters) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET processed = processed + $1, succeeded = succeeded + $2, failed = failed + $3
		 WHERE id = $4`,
		d.Processed, d.Succeeded, d.Failed, id,
	)
	return eris.Wrapf(err, "postgres: increment job counters %s", id)
}

func (s *PostgresStore) FinishJob(ctx context.Context, id string, status model.JobStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = $1, completed_at = $2 WHERE id = $3`,
		string(status), at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", id)
	}
	return checkTag(tag, "job", id)
}

func (s *PostgresStore) UpdateJobItem(ctx context.Context, it *model.JobItem) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_job_items SET status = $1, emails_found = $2, message = $3, updated_at = now()
		 WHERE job_id = $4 AND prospect_id = $5`,
		string(it.Status), it.EmailsFound, it.Message, it.JobID, it.ProspectID,
	)
	return eris.Wrapf(err, "postgres: update job item %s/%s", it.JobID, it.ProspectID)
}

func (s *PostgresStore) ListJobItems(ctx context.Context, jobID string) ([]model.JobItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobItemColumns+` FROM enrichment_job_items WHERE job_id = $1 ORDER BY prospect_id`, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list job items %s", jobID)
	}
	defer rows.Close()

	var out []model.JobItem
	for rows.Next() {
		it, err := scanJobItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job item")
		}
		out = append(out, *it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate job items")
}

// --- Import jobs ---

func (s *PostgresStore) CreateImportJob(ctx context.Context, job *model.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Status == "" {
		job.Status = model.ImportStatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, name, status, csv, total_rows, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		job.ID, job.Name, string(job.Status), job.CSV, job.TotalRows, now,
	)
	return eris.Wrapf(err, "postgres: insert import job %s", job.ID)
}

func (s *PostgresStore) GetImportJob(ctx context.Context, id string) (*model.ImportJob, error) {
	j, err := scanImportJob(s.pool.QueryRow(ctx, `SELECT `+importColumns+` FROM import_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, pgErr(err, "postgres: get import job %s", id)
	}
	return j, nil
}

func (s *PostgresStore) SaveImportProgress(ctx context.Context, id string, p model.ImportProgress) error {
	if p.Empty() {
		return nil
	}
	errs := p.Errors
	if errs == nil {
		errs = []model.ImportError{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal error log")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET
			processed_rows = processed_rows + $1, successful_rows = successful_rows + $2,
			failed_rows = failed_rows + $3, error_log = error_log || $4::jsonb, updated_at = now()
		 WHERE id = $5`,
		p.Processed, p.Successful, p.Failed, errJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save import progress %s", id)
	}
	return checkTag(tag, "import job", id)
}

func (s *PostgresStore) SetImportStatus(ctx context.Context, id string, status model.ImportStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set import status %s", id)
	}
	return checkTag(tag, "import job", id)
}

// --- helpers ---

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// pgErr maps pgx.ErrNoRows to ErrNotFound and wraps everything else.
func pgErr(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

func collectPgProspects(rows pgx.Rows) ([]model.Prospect, error) {
	defer rows.Close()
	var out []model.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate prospects")
}
