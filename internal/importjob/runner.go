package importjob

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/domain"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/resilience"
	"github.com/sells-group/prospect-enricher/internal/store"
	"github.com/sells-group/prospect-enricher/pkg/traffic"
)

// ErrJobNotFound is returned when the import job id is unknown.
var ErrJobNotFound = eris.New("importjob: job not found")

// Status is the outcome of one Resume invocation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout_graceful_exit"
	StatusFailed     Status = "failed"
)

// ProcessResult reports what one invocation did. Processed counts rows
// handled by this invocation; NextWatermark is the cumulative row count the
// next invocation resumes from.
type ProcessResult struct {
	Status        Status `json:"status"`
	Processed     int    `json:"processed"`
	NextWatermark int    `json:"nextWatermark"`
	Done          bool   `json:"done"`
}

// Store is the persistence the runner needs.
type Store interface {
	store.ImportStore
	UpsertTarget(ctx context.Context, t *model.Target) (*model.Target, error)
	CreateProspect(ctx context.Context, targetID string) (*model.Prospect, error)
}

// Config tunes chunking and metrics.
type Config struct {
	BatchSize      int
	Budget         time.Duration
	FlushEvery     int
	// TrafficTimeout bounds one domain's lookup, retries included.
	TrafficTimeout time.Duration
	// TrafficRetry retries transient lookup failures. Zero means
	// resilience.DefaultBackoff.
	TrafficRetry resilience.Backoff
	// ScheduleRetry retries a continuation the endpoint refused with a
	// transient failure. Zero means resilience.DefaultBackoff.
	ScheduleRetry resilience.Backoff
	Rates         Rates
	// MinTrafficProspect is the monthly visit floor for creating a prospect.
	MinTrafficProspect int64
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Budget <= 0 {
		c.Budget = 90 * time.Second
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 5
	}
	if c.TrafficTimeout <= 0 {
		c.TrafficTimeout = 10 * time.Second
	}
	if c.TrafficRetry.Attempts <= 0 {
		c.TrafficRetry = resilience.DefaultBackoff()
	}
	if c.TrafficRetry.OnRetry == nil {
		c.TrafficRetry.OnRetry = resilience.LogRetry("traffic", "monthly_visits")
	}
	if c.ScheduleRetry.Attempts <= 0 {
		c.ScheduleRetry = resilience.DefaultBackoff()
	}
	if c.ScheduleRetry.OnRetry == nil {
		c.ScheduleRetry.OnRetry = resilience.LogRetry("importjob", "schedule")
	}
}

// Runner processes import jobs one chunk at a time.
type Runner struct {
	store     Store
	validator *domain.Validator
	traffic   traffic.Client
	scheduler Scheduler
	cfg       Config
	clock     func() time.Time
}

// NewRunner creates a Runner. A nil traffic client means only the manual
// traffic column is used; a nil scheduler means NoopScheduler.
func NewRunner(st Store, v *domain.Validator, tc traffic.Client, sched Scheduler, cfg Config) *Runner {
	cfg.defaults()
	if sched == nil {
		sched = NoopScheduler{}
	}
	return &Runner{store: st, validator: v, traffic: tc, scheduler: sched, cfg: cfg, clock: time.Now}
}

// CreateJob stores a pending import job for payload.
func (r *Runner) CreateJob(ctx context.Context, name, payload string) (*model.ImportJob, error) {
	n, err := CountRows(payload)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyPayload
	}
	job := &model.ImportJob{Name: name, Status: model.ImportStatusPending, CSV: payload, TotalRows: n}
	if err := r.store.CreateImportJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "importjob: create job")
	}
	zap.L().Info("importjob: job created",
		zap.String("job_id", job.ID),
		zap.String("name", name),
		zap.Int("rows", n),
	)
	return job, nil
}

// Kick hands the first chunk of a new job to the scheduler.
func (r *Runner) Kick(ctx context.Context, jobID string) error {
	if err := r.schedule(ctx, jobID); err != nil {
		return eris.Wrapf(err, "importjob: schedule job %s", jobID)
	}
	return nil
}

func (r *Runner) schedule(ctx context.Context, jobID string) error {
	return resilience.Do(ctx, r.cfg.ScheduleRetry, func(ctx context.Context) error {
		return r.scheduler.Schedule(ctx, jobID)
	})
}

// Cancel marks a job cancelled. The running chunk, if any, stops at its next
// row boundary. Terminal jobs are left as they are.
func (r *Runner) Cancel(ctx context.Context, jobID string) (*model.ImportJob, error) {
	job, err := r.job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if err := r.store.SetImportStatus(ctx, jobID, model.ImportStatusCancelled); err != nil {
		return nil, eris.Wrap(err, "importjob: cancel")
	}
	job.Status = model.ImportStatusCancelled
	return job, nil
}

// Resume processes the next chunk of a job, starting at its watermark.
func (r *Runner) Resume(ctx context.Context, jobID string) (*ProcessResult, error) {
	start := r.clock()
	job, err := r.job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &ProcessResult{NextWatermark: job.ProcessedRows}
	switch job.Status {
	case model.ImportStatusCancelled:
		res.Status, res.Done = StatusCancelled, true
		return res, nil
	case model.ImportStatusCompleted:
		res.Status, res.Done = StatusCompleted, true
		return res, nil
	case model.ImportStatusFailed:
		res.Status, res.Done = StatusFailed, true
		return res, nil
	}

	log := zap.L().With(zap.String("job_id", jobID))

	rows, err := ParseRows(job.CSV)
	if err != nil {
		log.Error("importjob: payload unreadable", zap.Error(err))
		return r.fail(ctx, jobID, res, job.ProcessedRows, "Could not parse CSV: "+err.Error())
	}
	if job.Status == model.ImportStatusPending {
		if err := r.store.SetImportStatus(ctx, jobID, model.ImportStatusProcessing); err != nil {
			return nil, eris.Wrap(err, "importjob: mark processing")
		}
	}

	cp := &checkpoint{store: r.store, jobID: jobID, every: r.cfg.FlushEvery}
	end := min(job.ProcessedRows+r.cfg.BatchSize, len(rows))

	for i := job.ProcessedRows; i < end; i++ {
		if elapsed := r.clock().Sub(start); elapsed >= r.cfg.Budget {
			log.Info("importjob: budget reached, handing off",
				zap.Int("watermark", i),
				zap.Duration("elapsed", elapsed),
			)
			if err := cp.flush(ctx); err != nil {
				return nil, err
			}
			res.Status, res.Processed, res.NextWatermark = StatusTimeout, cp.total, i
			return r.handOff(ctx, jobID, res)
		}

		cur, err := r.store.GetImportJob(ctx, jobID)
		if err != nil {
			_ = cp.flush(ctx)
			return nil, eris.Wrap(err, "importjob: poll status")
		}
		if cur.Status == model.ImportStatusCancelled {
			log.Info("importjob: cancelled", zap.Int("watermark", i))
			if err := cp.flush(ctx); err != nil {
				return nil, err
			}
			res.Status, res.Processed, res.NextWatermark, res.Done = StatusCancelled, cp.total, i, true
			return res, nil
		}

		row := rows[i]
		if err := r.processRow(ctx, row); err != nil {
			log.Debug("importjob: row failed", zap.Int("row", row.Line), zap.String("domain", row.Domain), zap.Error(err))
			cp.failed(row, err)
		} else {
			cp.succeeded()
		}
		if err := cp.maybeFlush(ctx); err != nil {
			return nil, err
		}
	}

	if err := cp.flush(ctx); err != nil {
		return nil, err
	}
	res.Processed, res.NextWatermark = cp.total, end

	if end >= len(rows) {
		if err := r.store.SetImportStatus(ctx, jobID, model.ImportStatusCompleted); err != nil {
			return nil, eris.Wrap(err, "importjob: mark completed")
		}
		log.Info("importjob: completed", zap.Int("rows", len(rows)))
		res.Status, res.Done = StatusCompleted, true
		return res, nil
	}

	res.Status = StatusProcessing
	return r.handOff(ctx, jobID, res)
}

// handOff schedules the continuation. A scheduling failure fails the job,
// since nothing else would ever resume it.
func (r *Runner) handOff(ctx context.Context, jobID string, res *ProcessResult) (*ProcessResult, error) {
	if err := r.schedule(ctx, jobID); err != nil {
		zap.L().Error("importjob: schedule continuation", zap.String("job_id", jobID), zap.Error(err))
		return r.fail(ctx, jobID, res, res.NextWatermark, "Failed to schedule next chunk: "+err.Error())
	}
	return res, nil
}

func (r *Runner) fail(ctx context.Context, jobID string, res *ProcessResult, watermark int, msg string) (*ProcessResult, error) {
	entry := model.ImportError{Row: watermark, Message: msg, Timestamp: time.Now().UTC()}
	if err := r.store.SaveImportProgress(ctx, jobID, model.ImportProgress{Errors: []model.ImportError{entry}}); err != nil {
		return nil, eris.Wrap(err, "importjob: record failure")
	}
	if err := r.store.SetImportStatus(ctx, jobID, model.ImportStatusFailed); err != nil {
		return nil, eris.Wrap(err, "importjob: mark failed")
	}
	res.Status, res.Done = StatusFailed, true
	return res, nil
}

func (r *Runner) processRow(ctx context.Context, row Row) error {
	if row.Domain == "" {
		return eris.New("missing domain")
	}
	v := r.validator.Validate(row.Domain)
	if !v.Eligible {
		return eris.Errorf("not viable: %s", v.Reason)
	}

	visits, source := r.visits(ctx, v.Domain, row)
	m := ComputeMetrics(visits, r.cfg.Rates)

	t, err := r.store.UpsertTarget(ctx, &model.Target{
		Domain:           v.Domain,
		CompanyName:      DisplayName(row.Company),
		Industry:         NormalizeIndustry(row.Industry),
		MonthlyTraffic:   visits,
		TrafficTier:      m.TrafficTier,
		CompanySize:      m.CompanySize,
		EstimatedLeads:   m.EstimatedLeads,
		EstimatedRevenue: m.EstimatedRevenue.StringFixed(2),
		TrafficSource:    source,
	})
	if err != nil {
		return eris.Wrap(err, "save target")
	}
	if visits < r.cfg.MinTrafficProspect {
		return nil
	}
	if _, err := r.store.CreateProspect(ctx, t.ID); err != nil {
		return eris.Wrap(err, "create prospect")
	}
	return nil
}

// visits returns monthly traffic from the analytics API, falling back to
// the row's manual column when the lookup fails or has no data. Transient
// failures are retried within TrafficTimeout; ErrNoData is final.
func (r *Runner) visits(ctx context.Context, dom string, row Row) (int64, string) {
	if r.traffic != nil {
		tctx, cancel := context.WithTimeout(ctx, r.cfg.TrafficTimeout)
		est, err := resilience.DoVal(tctx, r.cfg.TrafficRetry, func(ctx context.Context) (*traffic.Estimate, error) {
			return r.traffic.MonthlyVisits(ctx, dom)
		})
		cancel()
		if err == nil {
			return est.MonthlyVisits, "api"
		}
		if !eris.Is(err, traffic.ErrNoData) {
			zap.L().Debug("importjob: traffic lookup failed", zap.String("domain", dom), zap.Error(err))
		}
	}
	if n := row.ManualTraffic(); n > 0 {
		return n, "manual"
	}
	return 0, ""
}

func (r *Runner) job(ctx context.Context, id string) (*model.ImportJob, error) {
	job, err := r.store.GetImportJob(ctx, id)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrJobNotFound, "importjob: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "importjob: load job")
	}
	return job, nil
}
