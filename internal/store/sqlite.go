package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-enricher/internal/model"
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
	// One connection keeps the per-connection pragmas in force and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS targets (
	id                TEXT PRIMARY KEY,
	domain            TEXT NOT NULL UNIQUE,
	company_name      TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL DEFAULT '',
	facebook_url      TEXT NOT NULL DEFAULT '',
	monthly_traffic   INTEGER NOT NULL DEFAULT 0,
	traffic_tier      TEXT NOT NULL DEFAULT '',
	company_size      TEXT NOT NULL DEFAULT '',
	estimated_leads   INTEGER NOT NULL DEFAULT 0,
	estimated_revenue TEXT NOT NULL DEFAULT '0',
	traffic_source    TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS prospects (
	id                         TEXT PRIMARY KEY,
	target_id                  TEXT NOT NULL UNIQUE REFERENCES targets(id),
	status                     TEXT NOT NULL DEFAULT 'new',
	prior_status               TEXT NOT NULL DEFAULT '',
	locked_at                  DATETIME,
	locked_by                  TEXT NOT NULL DEFAULT '',
	enrichment_retry_count     INTEGER NOT NULL DEFAULT 0,
	last_attempt_at            DATETIME,
	notes                      TEXT NOT NULL DEFAULT '',
	contact_count              INTEGER NOT NULL DEFAULT 0,
	icebreaker_text            TEXT NOT NULL DEFAULT '',
	icebreaker_generated_at    DATETIME,
	icebreaker_manually_edited BOOLEAN NOT NULL DEFAULT FALSE,
	created_at                 DATETIME NOT NULL,
	updated_at                 DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id           TEXT PRIMARY KEY,
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
	created_at   DATETIME NOT NULL,
	UNIQUE (prospect_id, email)
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
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
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_enrichment_jobs_one_running
	ON enrichment_jobs(status) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS enrichment_job_items (
	job_id       TEXT NOT NULL REFERENCES enrichment_jobs(id),
	prospect_id  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	emails_found BOOLEAN NOT NULL DEFAULT FALSE,
	message      TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL,
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
	error_log       TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(status);
CREATE INDEX IF NOT EXISTS idx_contacts_prospect ON contacts(prospect_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Prospects ---

func (s *SQLiteStore) CreateProspect(ctx context.Context, targetID string) (*model.Prospect, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (id, target_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (target_id) DO NOTHING`,
		uuid.New().String(), targetID, string(model.ProspectStatusNew), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert prospect for target %s", targetID)
	}
	p, err := scanProspect(s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE target_id = ?`, targetID))
	if err != nil {
		return nil, sqliteErr(err, "sqlite: get prospect for target %s", targetID)
	}
	return p, nil
}

func (s *SQLiteStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	p, err := scanProspect(s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteErr(err, "sqlite: get prospect %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListProspects(ctx context.Context, ids []string) ([]model.Prospect, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	return collectProspects(rows)
}

func (s *SQLiteStore) ListStaleEnriching(ctx context.Context, before time.Time) ([]model.Prospect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects
		 WHERE status = ? AND (locked_at IS NULL OR locked_at < ?)`,
		string(model.ProspectStatusEnriching), before.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stale enriching")
	}
	return collectProspects(rows)
}

func (s *SQLiteStore) BeginEnrichment(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET
			prior_status = CASE WHEN status = ? THEN prior_status ELSE status END,
			status = ?, last_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(model.ProspectStatusEnriching), string(model.ProspectStatusEnriching), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin enrichment %s", id)
	}
	return checkRowsAffected(res, "prospect", id)
}

func (s *SQLiteStore) FinishEnrichment(ctx context.Context, id string, fin model.Finalization) error {
	now := time.Now().UTC()
	entry := noteEntry(fin.Note, now)
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET
			status = ?, contact_count = ?, enrichment_retry_count = ?, prior_status = '',
			notes = CASE WHEN notes = '' THEN ? ELSE notes || ? END,
			updated_at = ?
		 WHERE id = ?`,
		string(fin.Status), fin.ContactCount, model.MaxEnrichmentAttempts,
		entry, "\n"+entry, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish enrichment %s", id)
	}
	return checkRowsAffected(res, "prospect", id)
}

func (s *SQLiteStore) RevertEnrichment(ctx context.Context, id, note string) error {
	now := time.Now().UTC()
	entry := noteEntry(note, now)
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET
			status = CASE WHEN prior_status = '' THEN ? ELSE prior_status END,
			prior_status = '',
			notes = CASE WHEN notes = '' THEN ? ELSE notes || ? END,
			updated_at = ?
		 WHERE id = ?`,
		string(model.ProspectStatusNeedsReview), entry, "\n"+entry, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: revert enrichment %s", id)
	}
	return checkRowsAffected(res, "prospect", id)
}

func (s *SQLiteStore) ResetProspect(ctx context.Context, id, note string, staleBefore time.Time) error {
	now := time.Now().UTC()
	entry := noteEntry(note, now)
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET
			status = ?, prior_status = '', enrichment_retry_count = 0,
			locked_at = NULL, locked_by = '',
			notes = CASE WHEN notes = '' THEN ? ELSE notes || ? END,
			updated_at = ?
		 WHERE id = ? AND (locked_at IS NULL OR locked_at < ?)`,
		string(model.ProspectStatusNeedsReview), entry, "\n"+entry, now, id, staleBefore.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset prospect %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM prospects WHERE id = ?`, id).Scan(&exists); err != nil {
		return sqliteErr(err, "sqlite: reset prospect %s", id)
	}
	return eris.Wrapf(ErrConflict, "prospect %s is leased", id)
}

func (s *SQLiteStore) SaveIcebreaker(ctx context.Context, id, text string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET icebreaker_text = ?, icebreaker_generated_at = ?, updated_at = ?
		 WHERE id = ? AND icebreaker_manually_edited = FALSE`,
		text, at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: save icebreaker %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

// --- Leases ---

func (s *SQLiteStore) AcquireLock(ctx context.Context, id, owner string, now, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET locked_at = ?, locked_by = ?
		 WHERE id = ? AND (locked_at IS NULL OR locked_at < ?)`,
		now.UTC(), owner, id, staleBefore.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lock %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) RenewLock(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET locked_at = ? WHERE id = ? AND locked_by = ? AND locked_at IS NOT NULL`,
		now.UTC(), id, owner,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: renew lock %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, id, owner string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET locked_at = NULL, locked_by = '' WHERE id = ? AND locked_by = ?`,
		id, owner,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: release lock %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

// --- Targets ---

func (s *SQLiteStore) UpsertTarget(ctx context.Context, t *model.Target) (*model.Target, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, domain, company_name, industry, facebook_url, monthly_traffic,
			traffic_tier, company_size, estimated_leads, estimated_revenue, traffic_source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET
			company_name = CASE WHEN excluded.company_name <> '' THEN excluded.company_name ELSE targets.company_name END,
			industry = CASE WHEN excluded.industry <> '' THEN excluded.industry ELSE targets.industry END,
			monthly_traffic = excluded.monthly_traffic,
			traffic_tier = excluded.traffic_tier,
			company_size = excluded.company_size,
			estimated_leads = excluded.estimated_leads,
			estimated_revenue = excluded.estimated_revenue,
			traffic_source = excluded.traffic_source,
			updated_at = excluded.updated_at`,
		uuid.New().String(), t.Domain, t.CompanyName, t.Industry, t.FacebookURL, t.MonthlyTraffic,
		t.TrafficTier, t.CompanySize, t.EstimatedLeads, t.EstimatedRevenue, t.TrafficSource, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert target %s", t.Domain)
	}
	out, err := scanTarget(s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE domain = ?`, t.Domain))
	if err != nil {
		return nil, sqliteErr(err, "sqlite: get target %s", t.Domain)
	}
	return out, nil
}

func (s *SQLiteStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteErr(err, "sqlite: get target %s", id)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTargetProfile(ctx context.Context, id string, upd model.ProfileUpdate) error {
	if upd.Empty() {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET
			company_name = CASE WHEN ? <> '' THEN ? ELSE company_name END,
			industry = CASE WHEN ? <> '' THEN ? ELSE industry END,
			facebook_url = CASE WHEN ? <> '' THEN ? ELSE facebook_url END,
			updated_at = ?
		 WHERE id = ?`,
		upd.CompanyName, upd.CompanyName, upd.Industry, upd.Industry, upd.FacebookURL, upd.FacebookURL,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update target profile %s", id)
	}
	return checkRowsAffected(res, "target", id)
}

// --- Contacts ---

func (s *SQLiteStore) InsertContact(ctx context.Context, c *model.Contact) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (prospect_id, email) DO NOTHING`,
		c.ID, c.ProspectID, c.TargetID, c.FirstName, c.LastName, c.Email, c.Phone,
		c.Title, c.LinkedInURL, c.FacebookURL, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert contact %s", c.Email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, prospectID string) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE prospect_id = ? ORDER BY created_at, id`, prospectID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list contacts %s", prospectID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

// --- Settings ---

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: get setting %s", key)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set setting %s", key)
}

// --- Enrichment jobs ---

func (s *SQLiteStore) RunningJob(ctx context.Context) (*model.EnrichmentJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM enrichment_jobs WHERE status = ? LIMIT 1`, string(model.JobStatusRunning)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: running job")
	}
	return j, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.EnrichmentJob, prospectIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (id, status, processing_mode, total, started_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), string(job.Mode), job.Total, job.StartedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrap(ErrConflict, "sqlite: another job is running")
		}
		return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
	}

	now := time.Now().UTC()
	for _, pid := range prospectIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO enrichment_job_items (job_id, prospect_id, status, updated_at) VALUES (?, ?, ?, ?)`,
			job.ID, pid, string(model.JobItemPending), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert job item %s", pid)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit job")
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteErr(err, "sqlite: get job %s", id)
	}
	return j, nil
}

func (s *SQLiteStore) RequestStop(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE enrichment_jobs SET stop_requested = TRUE WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: request stop %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) IncrementJobCounters(ctx context.Context, id string, d model.JobCounters) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET processed = processed + ?, succeeded = succeeded + ?, failed = failed + ?
		 WHERE id = ?`,
		d.Processed, d.Succeeded, d.Failed, id,
	)
	return eris.Wrapf(err, "sqlite: increment job counters %s", id)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, id string, status model.JobStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) UpdateJobItem(ctx context.Context, it *model.JobItem) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_job_items SET status = ?, emails_found = ?, message = ?, updated_at = ?
		 WHERE job_id = ? AND prospect_id = ?`,
		string(it.Status), it.EmailsFound, it.Message, time.Now().UTC(), it.JobID, it.ProspectID,
	)
	return eris.Wrapf(err, "sqlite: update job item %s/%s", it.JobID, it.ProspectID)
}

func (s *SQLiteStore) ListJobItems(ctx context.Context, jobID string) ([]model.JobItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobItemColumns+` FROM enrichment_job_items WHERE job_id = ? ORDER BY prospect_id`, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list job items %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.JobItem
	for rows.Next() {
		it, err := scanJobItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job item")
		}
		out = append(out, *it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate job items")
}

// --- Import jobs ---

func (s *SQLiteStore) CreateImportJob(ctx context.Context, job *model.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Status == "" {
		job.Status = model.ImportStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, name, status, csv, total_rows, error_log, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '[]', ?, ?)`,
		job.ID, job.Name, string(job.Status), job.CSV, job.TotalRows, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert import job %s", job.ID)
}

func (s *SQLiteStore) GetImportJob(ctx context.Context, id string) (*model.ImportJob, error) {
	j, err := scanImportJob(s.db.QueryRowContext(ctx, `SELECT `+importColumns+` FROM import_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteErr(err, "sqlite: get import job %s", id)
	}
	return j, nil
}

func (s *SQLiteStore) SaveImportProgress(ctx context.Context, id string, p model.ImportProgress) error {
	if p.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT error_log FROM import_jobs WHERE id = ?`, id).Scan(&raw); err != nil {
		return sqliteErr(err, "sqlite: read error log %s", id)
	}
	var log []model.ImportError
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &log); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal error log")
		}
	}
	log = append(log, p.Errors...)
	logJSON, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal error log")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE import_jobs SET
			processed_rows = processed_rows + ?, successful_rows = successful_rows + ?,
			failed_rows = failed_rows + ?, error_log = ?, updated_at = ?
		 WHERE id = ?`,
		p.Processed, p.Successful, p.Failed, string(logJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save import progress %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit import progress")
}

func (s *SQLiteStore) SetImportStatus(ctx context.Context, id string, status model.ImportStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set import status %s", id)
	}
	return checkRowsAffected(res, "import job", id)
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// sqliteErr maps sql.ErrNoRows to ErrNotFound and wraps everything else.
func sqliteErr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

func collectProspects(rows *sql.Rows) ([]model.Prospect, error) {
	defer rows.Close() //nolint:errcheck
	var out []model.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prospect")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate prospects")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
