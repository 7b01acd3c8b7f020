// Package bulk fans the enrichment orchestrator out over a batch of
// prospects as a single tracked job with streamed progress.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/lease"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

var (
	// ErrInvalidRequest marks a malformed bulk request.
	ErrInvalidRequest = eris.New("bulk: invalid request")
	// ErrJobRunning matches any *JobRunningError.
	ErrJobRunning = eris.New("bulk: another job is running")
	// ErrNoEligible is returned when every requested prospect was filtered out.
	ErrNoEligible = eris.New("bulk: no eligible prospects")
)

// JobRunningError rejects a start while another job is running.
type JobRunningError struct {
	JobID string
	Age   time.Duration
}

func (e *JobRunningError) Error() string {
	return fmt.Sprintf("bulk: job %s has been running for %s; wait for it to finish or stop it", e.JobID, e.Age.Round(time.Second))
}

// Is lets errors.Is match ErrJobRunning.
func (e *JobRunningError) Is(target error) bool { return target == ErrJobRunning }

// Request is the bulk enrichment input.
type Request struct {
	ProspectIDs []string             `json:"prospect_ids"`
	JobID       string               `json:"job_id,omitempty"`
	Mode        model.ProcessingMode `json:"processing_mode,omitempty"`
}

// Validate checks the request shape and fills the default mode.
func (r *Request) Validate() error {
	if len(r.ProspectIDs) == 0 {
		return eris.Wrap(ErrInvalidRequest, "prospect_ids is required")
	}
	for _, id := range r.ProspectIDs {
		if id == "" {
			return eris.Wrap(ErrInvalidRequest, "prospect_ids contains an empty id")
		}
	}
	if r.Mode == "" {
		r.Mode = model.ModeParallel
	}
	if !r.Mode.Valid() {
		return eris.Wrapf(ErrInvalidRequest, "unknown processing_mode %q", r.Mode)
	}
	return nil
}

// Enricher is the per-prospect work the coordinator drives.
type Enricher interface {
	Preflight(ctx context.Context, p *model.Prospect) (*enrich.Result, error)
	EnrichHeld(ctx context.Context, p *model.Prospect, owner string, mode model.ProcessingMode) (*enrich.Result, error)
	LeaseTTL() time.Duration
}

// Store is the persistence the coordinator needs.
type Store interface {
	store.ProspectStore
	store.ContactStore
	store.JobStore
}

// Config tunes pacing and fan-out.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxParallel bounds concurrent prospects in parallel mode; 0 is unbounded.
	MaxParallel int
	BufferSize  int
}

// Coordinator starts and runs bulk jobs.
type Coordinator struct {
	store      Store
	lease      lease.Lease
	enricher   Enricher
	reconciler *Reconciler
	cfg        Config

	now   func() time.Time
	delay func() time.Duration
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(s Store, l lease.Lease, e Enricher, cfg Config) *Coordinator {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	c := &Coordinator{
		store:      s,
		lease:      l,
		enricher:   e,
		reconciler: NewReconciler(s),
		cfg:        cfg,
		now:        time.Now,
	}
	c.delay = c.randomDelay
	return c
}

func (c *Coordinator) randomDelay() time.Duration {
	spread := c.cfg.MaxDelay - c.cfg.MinDelay
	if spread <= 0 {
		return c.cfg.MinDelay
	}
	return c.cfg.MinDelay + rand.N(spread+1)
}

// Run is a started job. Events closes when the job has fully finished.
type Run struct {
	Job *model.EnrichmentJob
	// Excluded counts requested ids dropped before the job was created.
	Excluded int

	events chan Event
	done   chan struct{}

	processed atomic.Int32
	succeeded atomic.Int32
	failed    atomic.Int32
	// enriched counts prospects whose run returned a result.
	enriched atomic.Int32
}

// Events returns the progress stream.
func (r *Run) Events() <-chan Event { return r.events }

// Done closes after the job is finalized and reconciled.
func (r *Run) Done() <-chan struct{} { return r.done }

// Counts returns processed, succeeded and failed totals so far.
func (r *Run) Counts() (processed, succeeded, failed int) {
	return int(r.processed.Load()), int(r.succeeded.Load()), int(r.failed.Load())
}

// Start runs pre-flight synchronously and then processes the job in the
// background, detached from ctx's cancellation.
func (c *Coordinator) Start(ctx context.Context, req Request) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	running, err := c.store.RunningJob(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bulk: check running job")
	}
	if running != nil {
		return nil, &JobRunningError{JobID: running.ID, Age: c.now().Sub(running.StartedAt)}
	}

	eligible, excluded, err := c.eligible(ctx, req.ProspectIDs)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, eris.Wrapf(ErrNoEligible, "%d requested, %d already attempted or unknown", len(req.ProspectIDs), excluded)
	}

	job := &model.EnrichmentJob{
		ID:        req.JobID,
		Status:    model.JobStatusRunning,
		Mode:      req.Mode,
		Total:     len(eligible),
		StartedAt: c.now(),
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ids := make([]string, len(eligible))
	for i, p := range eligible {
		ids[i] = p.ID
	}
	if err := c.store.CreateJob(ctx, job, ids); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if other, _ := c.store.RunningJob(ctx); other != nil {
				return nil, &JobRunningError{JobID: other.ID, Age: c.now().Sub(other.StartedAt)}
			}
			return nil, &JobRunningError{}
		}
		return nil, eris.Wrap(err, "bulk: create job")
	}

	run := &Run{
		Job:      job,
		Excluded: excluded,
		events:   make(chan Event, c.cfg.BufferSize),
		done:     make(chan struct{}),
	}
	zap.L().Info("bulk: job started",
		zap.String("job", job.ID),
		zap.String("mode", string(job.Mode)),
		zap.Int("eligible", len(eligible)),
		zap.Int("excluded", excluded),
	)
	go c.execute(context.WithoutCancel(ctx), run, eligible)
	return run, nil
}

// eligible loads the requested prospects in request order and drops those
// whose one attempt is used. Unknown ids are dropped too.
func (c *Coordinator) eligible(ctx context.Context, ids []string) ([]*model.Prospect, int, error) {
	list, err := c.store.ListProspects(ctx, ids)
	if err != nil {
		return nil, 0, eris.Wrap(err, "bulk: load prospects")
	}
	byID := make(map[string]*model.Prospect, len(list))
	for i := range list {
		byID[list[i].ID] = &list[i]
	}

	seen := make(map[string]bool, len(ids))
	var out []*model.Prospect
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := byID[id]
		if !ok || p.Attempted() {
			continue
		}
		out = append(out, p)
	}
	return out, len(seen) - len(out), nil
}

// emit delivers an event without letting a stalled consumer block the work.
func (c *Coordinator) emit(run *Run, ev Event) {
	ev.JobID = run.Job.ID
	ev.Total = run.Job.Total
	ev.Processed, ev.Succeeded, ev.Failed = run.Counts()
	ev.Timestamp = c.now()

	select {
	case run.events <- ev:
		return
	default:
	}
	t := time.NewTimer(2 * time.Second)
	defer t.Stop()
	select {
	case run.events <- ev:
	case <-t.C:
		zap.L().Warn("bulk: event dropped, consumer not reading", zap.String("job", run.Job.ID), zap.String("type", string(ev.Type)))
	}
}

func (c *Coordinator) execute(ctx context.Context, run *Run, eligible []*model.Prospect) {
	defer close(run.done)
	defer close(run.events)

	job := run.Job
	log := zap.L().With(zap.String("job", job.ID))
	owner := enrich.NewOwner("bulk:" + job.ID)
	c.emit(run, Event{Type: EventJobStarted, Message: fmt.Sprintf("Enriching %d prospects (%s)", job.Total, job.Mode)})

	viable := c.preflight(ctx, run, eligible)
	held := c.acquire(ctx, run, viable, owner)
	stopRenewing := c.keepAlive(ctx, held, owner, c.enricher.LeaseTTL())

	var halted atomic.Bool
	stopped := false
	next := 0
	if job.Mode == model.ModeSequential {
		for ; next < len(held); next++ {
			if c.shouldStop(ctx, run, &halted) {
				stopped = true
				break
			}
			if next > 0 && !c.pause(ctx) {
				break
			}
			c.processOne(ctx, run, held[next], owner, &halted)
		}
	} else {
		g := new(errgroup.Group)
		if c.cfg.MaxParallel > 0 {
			g.SetLimit(c.cfg.MaxParallel)
		}
		for ; next < len(held); next++ {
			if c.shouldStop(ctx, run, &halted) {
				stopped = true
				break
			}
			if next > 0 && !c.pause(ctx) {
				break
			}
			p := held[next]
			g.Go(func() error {
				c.processOne(ctx, run, p, owner, &halted)
				return nil
			})
		}
		_ = g.Wait()
	}
	stopRenewing()

	if stopped {
		msg := "Job stopped by user"
		if halted.Load() {
			msg = "Job halted: extraction service requires payment"
		}
		c.emit(run, Event{Type: EventJobStopped, Message: msg})
		log.Info("bulk: job stopped", zap.Int("unprocessed", len(held)-next))
	}
	for _, p := range held[next:] {
		if err := c.lease.Release(ctx, p.ID, owner); err != nil {
			log.Warn("bulk: release unprocessed lease", zap.String("prospect", p.ID), zap.Error(err))
		}
	}

	c.finish(ctx, run, eligible, log)
}

// preflight writes not_viable for rejected domains before any lease is taken.
func (c *Coordinator) preflight(ctx context.Context, run *Run, eligible []*model.Prospect) []*model.Prospect {
	var out []*model.Prospect
	for _, p := range eligible {
		res, err := c.enricher.Preflight(ctx, p)
		switch {
		case err != nil:
			c.fail(ctx, run, p.ID, "", model.JobItemFailed, err.Error(), "error", false)
		case res != nil:
			c.fail(ctx, run, p.ID, res.Domain, model.JobItemFailed, "Not viable: "+res.Message, "not_viable", false)
		default:
			out = append(out, p)
		}
	}
	return out
}

// acquire takes every lease up front, concurrently in parallel mode. Ids
// that fail to lock are reported skipped and counted as failures.
func (c *Coordinator) acquire(ctx context.Context, run *Run, prospects []*model.Prospect, owner string) []*model.Prospect {
	ttl := c.enricher.LeaseTTL()
	ok := make([]bool, len(prospects))
	try := func(i int) {
		got, err := c.lease.Acquire(ctx, prospects[i].ID, owner, ttl)
		if err != nil {
			zap.L().Warn("bulk: lease error", zap.String("prospect", prospects[i].ID), zap.Error(err))
		}
		ok[i] = got && err == nil
	}

	if run.Job.Mode == model.ModeParallel {
		var g errgroup.Group
		for i := range prospects {
			g.Go(func() error {
				try(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range prospects {
			try(i)
		}
	}

	var held []*model.Prospect
	for i, p := range prospects {
		if !ok[i] {
			c.fail(ctx, run, p.ID, "", model.JobItemFailed, "Skipped: prospect is locked by another worker", "locked", true)
			continue
		}
		held = append(held, p)
	}
	return held
}

// keepAlive renews the job's leases every third of ttl so prospects waiting
// their turn do not age out. A lease that no longer renews, because its run
// released it or another worker took it over, is dropped from the set. The
// returned func stops renewal and waits for the loop to exit.
func (c *Coordinator) keepAlive(ctx context.Context, held []*model.Prospect, owner string, ttl time.Duration) func() {
	interval := ttl / 3
	if interval <= 0 || len(held) == 0 {
		return func() {}
	}
	live := make([]string, len(held))
	for i, p := range held {
		live[i] = p.ID
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for len(live) > 0 {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			kept := live[:0]
			for _, id := range live {
				ok, err := c.lease.Renew(ctx, id, owner)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					zap.L().Warn("bulk: renew lease", zap.String("prospect", id), zap.Error(err))
					kept = append(kept, id)
					continue
				}
				if ok {
					kept = append(kept, id)
				}
			}
			live = kept
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (c *Coordinator) shouldStop(ctx context.Context, run *Run, halted *atomic.Bool) bool {
	if halted.Load() {
		return true
	}
	j, err := c.store.GetJob(ctx, run.Job.ID)
	if err != nil {
		zap.L().Warn("bulk: poll stop flag", zap.String("job", run.Job.ID), zap.Error(err))
		return false
	}
	return j.Stopping()
}

func (c *Coordinator) pause(ctx context.Context) bool {
	d := c.delay()
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) processOne(ctx context.Context, run *Run, p *model.Prospect, owner string, halted *atomic.Bool) {
	c.updateItem(ctx, &model.JobItem{JobID: run.Job.ID, ProspectID: p.ID, Status: model.JobItemProcessing})
	c.emit(run, Event{Type: EventProgress, ProspectID: p.ID, Message: "Enriching prospect"})

	res, err := c.enricher.EnrichHeld(ctx, p, owner, run.Job.Mode)
	if errors.Is(err, enrich.ErrLeaseLost) {
		c.fail(ctx, run, p.ID, "", model.JobItemFailed, "Skipped: lease was taken over by another worker", "locked", true)
		return
	}
	if err != nil {
		c.fail(ctx, run, p.ID, "", model.JobItemFailed, err.Error(), "error", false)
		return
	}
	run.enriched.Add(1)

	switch {
	case res.NotViable:
		c.fail(ctx, run, p.ID, res.Domain, model.JobItemFailed, "Not viable: "+res.Message, "not_viable", false)
		return
	case res.Failure != llm.FailureNone:
		status := model.JobItemFailed
		if res.Failure == llm.FailureRateLimited {
			status = model.JobItemRateLimited
		}
		if res.Failure == llm.FailurePaymentRequired {
			halted.Store(true)
		}
		c.fail(ctx, run, p.ID, res.Domain, status, res.Message, string(res.Failure), false)
		return
	}

	item := &model.JobItem{
		JobID:       run.Job.ID,
		ProspectID:  p.ID,
		Status:      model.JobItemSuccess,
		EmailsFound: res.EmailsFound(),
		Message:     res.Message,
	}
	c.updateItem(ctx, item)

	run.processed.Add(1)
	delta := model.JobCounters{Processed: 1}
	if res.Succeeded() {
		run.succeeded.Add(1)
		delta.Succeeded = 1
	} else {
		run.failed.Add(1)
		delta.Failed = 1
	}
	c.count(ctx, run, delta)

	ev := Event{
		Type:          EventNeedsReview,
		ProspectID:    p.ID,
		Domain:        res.Domain,
		Status:        string(res.Status),
		Message:       res.Message,
		ContactsFound: res.ContactsFound,
		EmailsFound:   res.EmailsFound(),
		Reason:        res.Recovered,
	}
	if res.Status == model.ProspectStatusEnriched {
		ev.Type = EventSuccess
	}
	c.emit(run, ev)
}

// fail records an unsuccessful item, counts it, and emits an error event.
func (c *Coordinator) fail(ctx context.Context, run *Run, prospectID, domain string, status model.JobItemStatus, msg, reason string, skipped bool) {
	c.updateItem(ctx, &model.JobItem{JobID: run.Job.ID, ProspectID: prospectID, Status: status, Message: msg})
	run.processed.Add(1)
	run.failed.Add(1)
	c.count(ctx, run, model.JobCounters{Processed: 1, Failed: 1})
	c.emit(run, Event{
		Type:       EventError,
		ProspectID: prospectID,
		Domain:     domain,
		Message:    msg,
		Reason:     reason,
		Skipped:    skipped,
	})
}

func (c *Coordinator) updateItem(ctx context.Context, it *model.JobItem) {
	if err := c.store.UpdateJobItem(ctx, it); err != nil {
		zap.L().Warn("bulk: update job item", zap.String("prospect", it.ProspectID), zap.Error(err))
	}
}

func (c *Coordinator) count(ctx context.Context, run *Run, d model.JobCounters) {
	if err := c.store.IncrementJobCounters(ctx, run.Job.ID, d); err != nil {
		zap.L().Warn("bulk: increment counters", zap.String("job", run.Job.ID), zap.Error(err))
	}
}

// finish marks the job completed and reconciles its prospects. When no
// prospect run completed, prospects moved into enriching are rolled back
// instead.
func (c *Coordinator) finish(ctx context.Context, run *Run, eligible []*model.Prospect, log *zap.Logger) {
	ids := make([]string, len(eligible))
	for i, p := range eligible {
		ids[i] = p.ID
	}

	if err := c.store.FinishJob(ctx, run.Job.ID, model.JobStatusCompleted, c.now()); err != nil {
		log.Error("bulk: finish job", zap.Error(err))
	}

	processed, succeeded, failed := run.Counts()
	if run.enriched.Load() == 0 {
		if _, err := c.reconciler.Rollback(ctx, ids, "Rolled back: bulk job processed no prospects"); err != nil {
			log.Error("bulk: rollback", zap.Error(err))
		}
	} else if n, err := c.reconciler.Sweep(ctx, ids); err != nil {
		log.Error("bulk: reconcile", zap.Error(err))
	} else if n > 0 {
		log.Warn("bulk: reconciled stuck prospects", zap.Int("count", n))
	}

	c.emit(run, Event{
		Type:    EventComplete,
		Message: fmt.Sprintf("Processed %d of %d: %d succeeded, %d failed", processed, run.Job.Total, succeeded, failed),
	})
	log.Info("bulk: job complete",
		zap.Int("processed", processed),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
}
