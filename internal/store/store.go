package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness rule, such
	// as a second running enrichment job.
	ErrConflict = eris.New("store: conflict")
)

// ProspectStore reads and transitions prospect records.
type ProspectStore interface {
	CreateProspect(ctx context.Context, targetID string) (*model.Prospect, error)
	GetProspect(ctx context.Context, id string) (*model.Prospect, error)
	ListProspects(ctx context.Context, ids []string) ([]model.Prospect, error)
	// ListStaleEnriching returns prospects stuck in enriching whose lease is
	// missing or older than before.
	ListStaleEnriching(ctx context.Context, before time.Time) ([]model.Prospect, error)

	// BeginEnrichment moves a prospect to enriching, remembering its prior status.
	BeginEnrichment(ctx context.Context, id string) error
	// FinishEnrichment writes a terminal status and consumes the attempt.
	FinishEnrichment(ctx context.Context, id string, fin model.Finalization) error
	// RevertEnrichment restores the prior status without consuming the attempt.
	RevertEnrichment(ctx context.Context, id, note string) error
	// ResetProspect is the manual-review escape hatch for terminal prospects.
	// It returns ErrConflict while a lease taken at or after staleBefore is
	// still held.
	ResetProspect(ctx context.Context, id, note string, staleBefore time.Time) error
	// SaveIcebreaker reports false when nothing was written because the
	// opener was edited by hand.
	SaveIcebreaker(ctx context.Context, id, text string, at time.Time) (bool, error)
}

// LeaseStore is the row compare-and-swap behind prospect leases.
type LeaseStore interface {
	// AcquireLock stamps the lease if it is free or was taken before staleBefore.
	AcquireLock(ctx context.Context, id, owner string, now, staleBefore time.Time) (bool, error)
	// RenewLock restamps the lease only if owner still holds it.
	RenewLock(ctx context.Context, id, owner string, now time.Time) (bool, error)
	// ReleaseLock clears the lease only if owner still holds it.
	ReleaseLock(ctx context.Context, id, owner string) (bool, error)
}

// TargetStore reads and writes target/report records.
type TargetStore interface {
	UpsertTarget(ctx context.Context, t *model.Target) (*model.Target, error)
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	UpdateTargetProfile(ctx context.Context, id string, upd model.ProfileUpdate) error
}

// ContactStore persists contacts.
type ContactStore interface {
	// InsertContact ignores conflicts on (prospect_id, email) and reports
	// whether a new row was written.
	InsertContact(ctx context.Context, c *model.Contact) (bool, error)
	ListContacts(ctx context.Context, prospectID string) ([]model.Contact, error)
}

// SettingsStore holds runtime feature flags.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// JobStore persists bulk enrichment jobs and their items.
type JobStore interface {
	// RunningJob returns the running job, or nil when there is none.
	RunningJob(ctx context.Context) (*model.EnrichmentJob, error)
	// CreateJob inserts the job and a pending item per prospect. It returns
	// ErrConflict if another job is already running.
	CreateJob(ctx context.Context, job *model.EnrichmentJob, prospectIDs []string) error
	GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error)
	RequestStop(ctx context.Context, id string) error
	IncrementJobCounters(ctx context.Context, id string, delta model.JobCounters) error
	FinishJob(ctx context.Context, id string, status model.JobStatus, at time.Time) error
	UpdateJobItem(ctx context.Context, item *model.JobItem) error
	ListJobItems(ctx context.Context, jobID string) ([]model.JobItem, error)
}

// ImportStore persists CSV import jobs.
type ImportStore interface {
	CreateImportJob(ctx context.Context, job *model.ImportJob) error
	GetImportJob(ctx context.Context, id string) (*model.ImportJob, error)
	// SaveImportProgress adds p to the job counters and appends its errors.
	SaveImportProgress(ctx context.Context, id string, p model.ImportProgress) error
	SetImportStatus(ctx context.Context, id string, status model.ImportStatus) error
}

// Store is the full persistence surface of the enrichment pipeline.
type Store interface {
	ProspectStore
	LeaseStore
	TargetStore
	ContactStore
	SettingsStore
	JobStore
	ImportStore

	Migrate(ctx context.Context) error
	Close() error
}

// SettingSocialScraping is the feature flag key gating social page fetches.
const SettingSocialScraping = "social_scraping_enabled"

// noteEntry formats one audit trail line.
func noteEntry(note string, at time.Time) string {
	return fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), strings.TrimSpace(note))
}

type scannable interface {
	Scan(dest ...any) error
}

const prospectColumns = `id, target_id, status, prior_status, locked_at, locked_by,
	enrichment_retry_count, last_attempt_at, notes, contact_count,
	icebreaker_text, icebreaker_generated_at, icebreaker_manually_edited,
	created_at, updated_at`

func scanProspect(row scannable) (*model.Prospect, error) {
	var p model.Prospect
	err := row.Scan(&p.ID, &p.TargetID, &p.Status, &p.PriorStatus, &p.LockedAt, &p.LockedBy,
		&p.RetryCount, &p.LastAttemptAt, &p.Notes, &p.ContactCount,
		&p.IcebreakerText, &p.IcebreakerGeneratedAt, &p.IcebreakerEdited,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const targetColumns = `id, domain, company_name, industry, facebook_url, monthly_traffic,
	traffic_tier, company_size, estimated_leads, estimated_revenue, traffic_source,
	created_at, updated_at`

func scanTarget(row scannable) (*model.Target, error) {
	var t model.Target
	err := row.Scan(&t.ID, &t.Domain, &t.CompanyName, &t.Industry, &t.FacebookURL, &t.MonthlyTraffic,
		&t.TrafficTier, &t.CompanySize, &t.EstimatedLeads, &t.EstimatedRevenue, &t.TrafficSource,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const contactColumns = `id, prospect_id, target_id, first_name, last_name, email, phone,
	title, linkedin_url, facebook_url, notes, created_at`

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.ProspectID, &c.TargetID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Title, &c.LinkedInURL, &c.FacebookURL, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const jobColumns = `id, status, processing_mode, total, processed, succeeded, failed,
	stop_requested, started_at, completed_at`

func scanJob(row scannable) (*model.EnrichmentJob, error) {
	var j model.EnrichmentJob
	err := row.Scan(&j.ID, &j.Status, &j.Mode, &j.Total, &j.Processed, &j.Succeeded, &j.Failed,
		&j.StopRequested, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

const jobItemColumns = `job_id, prospect_id, status, emails_found, message, updated_at`

func scanJobItem(row scannable) (*model.JobItem, error) {
	var it model.JobItem
	if err := row.Scan(&it.JobID, &it.ProspectID, &it.Status, &it.EmailsFound, &it.Message, &it.UpdatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

const importColumns = `id, name, status, csv, total_rows, processed_rows, successful_rows,
	failed_rows, error_log, created_at, updated_at`

func scanImportJob(row scannable) (*model.ImportJob, error) {
	var j model.ImportJob
	var errorLog []byte
	err := row.Scan(&j.ID, &j.Name, &j.Status, &j.CSV, &j.TotalRows, &j.ProcessedRows, &j.SuccessfulRows,
		&j.FailedRows, &errorLog, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &j.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal error log")
		}
	}
	return &j, nil
}
