// Package enrich drives one prospect through acquisition, extraction,
// persistence and icebreaker generation under an advisory lease.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/contacts"
	"github.com/sells-group/prospect-enricher/internal/domain"
	"github.com/sells-group/prospect-enricher/internal/extract"
	"github.com/sells-group/prospect-enricher/internal/icebreaker"
	"github.com/sells-group/prospect-enricher/internal/lease"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/scrape"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// ErrAlreadyAttempted is returned when a prospect's one automated attempt
// has been used. Only a manual reset makes it eligible again.
var ErrAlreadyAttempted = eris.New("enrich: prospect already attempted")

// ErrLeaseLost is returned by EnrichHeld when the caller's lease expired and
// was taken over, or released, before the run started.
var ErrLeaseLost = eris.New("enrich: lease lost")

// Store is the persistence surface the orchestrator needs.
type Store interface {
	store.ProspectStore
	store.TargetStore
	store.ContactStore
	store.SettingsStore
}

// Acquirer retrieves website content for a domain.
type Acquirer interface {
	Acquire(ctx context.Context, domain string) *scrape.Content
}

// Augmenter fetches supplementary social profile text.
type Augmenter interface {
	Augment(ctx context.Context, links []string, enabled bool) string
}

// ContactExtractor turns page text into a company profile and contacts.
type ContactExtractor interface {
	Extract(ctx context.Context, in extract.Input) (*extract.Extraction, error)
}

// ContactFinder searches the web for addresses when extraction finds none.
type ContactFinder interface {
	Find(ctx context.Context, domain, company string, mode model.ProcessingMode) []string
}

// ContactPersister filters and stores contacts.
type ContactPersister interface {
	Persist(ctx context.Context, prospect *model.Prospect, raw []model.Contact) (contacts.Result, error)
}

// IcebreakerGenerator writes outreach openers.
type IcebreakerGenerator interface {
	Generate(ctx context.Context, in icebreaker.Input) (string, error)
}

// Deps are the collaborators of an Orchestrator. Social, Search and
// Icebreaker are optional.
type Deps struct {
	Store      Store
	Lease      lease.Lease
	Validator  *domain.Validator
	Acquirer   Acquirer
	Social     Augmenter
	Extractor  ContactExtractor
	Search     ContactFinder
	Persister  ContactPersister
	Icebreaker IcebreakerGenerator
}

// Config bounds a single run.
type Config struct {
	Timeout  time.Duration
	LeaseTTL time.Duration
	// SocialDefault applies when the social scraping setting is unset.
	SocialDefault bool
}

// Result reports the outcome of one prospect.
type Result struct {
	ProspectID         string          `json:"prospectId"`
	Domain             string          `json:"domain,omitempty"`
	Status             State           `json:"status,omitempty"`
	ContactsFound      int             `json:"contactsFound"`
	CompanyName        string          `json:"companyName,omitempty"`
	CompanyNameUpdated bool            `json:"companyNameUpdated"`
	NotViable          bool            `json:"notViable,omitempty"`
	TLD                string          `json:"tld,omitempty"`
	Skipped            bool            `json:"skipped,omitempty"`
	Failure            llm.FailureKind `json:"failure,omitempty"`
	Recovered          string          `json:"recovered,omitempty"`
	Message            string          `json:"message,omitempty"`
}

// Succeeded reports whether the run reached a terminal decision on the
// normal path.
func (r *Result) Succeeded() bool {
	return !r.Skipped && !r.NotViable && r.Failure == llm.FailureNone && r.Recovered == "" && r.Status.Terminal()
}

// EmailsFound reports whether any usable contact was stored.
func (r *Result) EmailsFound() bool {
	return r.ContactsFound > 0
}

// Orchestrator runs the per-prospect state machine.
type Orchestrator struct {
	d   Deps
	cfg Config
	now func() time.Time
}

// New creates an Orchestrator.
func New(d Deps, cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	return &Orchestrator{d: d, cfg: cfg, now: time.Now}
}

// LeaseTTL returns the lease duration callers should acquire with.
func (o *Orchestrator) LeaseTTL() time.Duration { return o.cfg.LeaseTTL }

// NewOwner returns a unique lease owner token.
func NewOwner(prefix string) string {
	return prefix + ":" + uuid.NewString()
}

// Enrich is the single-prospect path: attempt guard, pre-flight, lease, run.
func (o *Orchestrator) Enrich(ctx context.Context, prospectID string) (*Result, error) {
	p, err := o.d.Store.GetProspect(ctx, prospectID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load prospect %s", prospectID)
	}
	if p.Attempted() {
		return &Result{
			ProspectID: p.ID,
			Status:     p.Status,
			Message:    "Enrichment already attempted; reset the prospect to try again",
		}, ErrAlreadyAttempted
	}

	if res, err := o.Preflight(ctx, p); res != nil || err != nil {
		return res, err
	}

	owner := NewOwner("single")
	ok, err := o.d.Lease.Acquire(ctx, p.ID, owner, o.cfg.LeaseTTL)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: lease %s", p.ID)
	}
	if !ok {
		zap.L().Info("enrich: prospect locked, skipping", zap.String("prospect", p.ID))
		return &Result{ProspectID: p.ID, Status: p.Status, Skipped: true, Message: "Prospect is being enriched by another worker"}, nil
	}
	return o.EnrichHeld(ctx, p, owner, model.ModeSequential)
}

// Preflight rejects a prospect whose domain is ineligible, writing
// not_viable without taking a lease or touching the network. A nil Result
// means the prospect may proceed.
func (o *Orchestrator) Preflight(ctx context.Context, p *model.Prospect) (*Result, error) {
	target, err := o.d.Store.GetTarget(ctx, p.TargetID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load target %s", p.TargetID)
	}
	verdict := o.d.Validator.Validate(target.Domain)
	if verdict.Eligible {
		return nil, nil
	}
	return o.reject(ctx, p, target, verdict)
}

func (o *Orchestrator) reject(ctx context.Context, p *model.Prospect, target *model.Target, v domain.Verdict) (*Result, error) {
	zap.L().Info("enrich: domain not viable",
		zap.String("prospect", p.ID),
		zap.String("domain", target.Domain),
		zap.String("reason", v.Reason),
	)
	err := o.d.Store.FinishEnrichment(ctx, p.ID, model.Finalization{
		Status: model.ProspectStatusNotViable,
		Note:   "Not viable: " + v.Reason,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: mark not viable %s", p.ID)
	}
	return &Result{
		ProspectID: p.ID,
		Domain:     target.Domain,
		Status:     model.ProspectStatusNotViable,
		NotViable:  true,
		TLD:        v.TLD,
		Message:    v.Reason,
	}, nil
}

// EnrichHeld runs a prospect whose lease owner already holds. Ownership is
// confirmed and the ttl restarted before any state is touched; a lost lease
// returns ErrLeaseLost with a skipped Result. Otherwise the lease is released
// on every return path.
func (o *Orchestrator) EnrichHeld(ctx context.Context, p *model.Prospect, owner string, mode model.ProcessingMode) (*Result, error) {
	held, err := o.d.Lease.Renew(ctx, p.ID, owner)
	if err != nil {
		o.release(ctx, p.ID, owner)
		return nil, eris.Wrapf(err, "enrich: confirm lease %s", p.ID)
	}
	if !held {
		zap.L().Warn("enrich: lease lost before start, skipping", zap.String("prospect", p.ID), zap.String("owner", owner))
		return &Result{
			ProspectID: p.ID,
			Status:     p.Status,
			Skipped:    true,
			Message:    "Lease was taken over by another worker",
		}, ErrLeaseLost
	}
	defer o.release(ctx, p.ID, owner)

	target, err := o.d.Store.GetTarget(ctx, p.TargetID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load target %s", p.TargetID)
	}
	if v := o.d.Validator.Validate(target.Domain); !v.Eligible {
		return o.reject(ctx, p, target, v)
	}
	if err := o.d.Store.BeginEnrichment(ctx, p.ID); err != nil {
		return nil, eris.Wrapf(err, "enrich: begin %s", p.ID)
	}
	return o.process(ctx, &run{prospect: p, target: target, mode: mode}), nil
}

func (o *Orchestrator) release(ctx context.Context, id, owner string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.d.Lease.Release(ctx, id, owner); err != nil {
		zap.L().Error("enrich: release lease", zap.String("prospect", id), zap.Error(err))
	}
}

// run is the mutable state of one enrichment. The chain goroutine and the
// recovery path share it.
type run struct {
	prospect *model.Prospect
	target   *model.Target
	mode     model.ProcessingMode

	mu        sync.Mutex
	outcome   Outcome
	result    Result
	finalized bool
}

func (r *run) update(fn func(o *Outcome, res *Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.outcome, &r.result)
}

func (r *run) snapshot() (Outcome, Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.result
}

// claim marks the run finalized and reports whether the caller won.
func (r *run) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return false
	}
	r.finalized = true
	return true
}

func (r *run) unclaim() {
	r.mu.Lock()
	r.finalized = false
	r.mu.Unlock()
}

// process runs the stage chain under the prospect timeout. Whatever ends the
// chain early (error, panic, deadline) routes through recovery.
func (o *Orchestrator) process(parent context.Context, r *run) *Result {
	ctx, cancel := context.WithTimeout(parent, o.cfg.Timeout)
	defer cancel()

	log := zap.L().With(zap.String("prospect", r.prospect.ID), zap.String("domain", r.target.Domain))
	start := o.now()
	r.update(func(_ *Outcome, res *Result) {
		res.ProspectID = r.prospect.ID
		res.Domain = r.target.Domain
		res.CompanyName = r.target.CompanyName
	})

	done := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- &panicError{value: v}
			}
		}()
		done <- o.chain(ctx, r, log)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		o.recoverRun(parent, r, reasonFor(err), err, log)
	}

	_, res := r.snapshot()
	log.Info("enrich: prospect finished",
		zap.String("status", string(res.Status)),
		zap.Int("contacts", res.ContactsFound),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
	return &res
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("enrich: panic: %v", e.value) }

func reasonFor(err error) string {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancellation"
	default:
		return "error"
	}
}

// chain runs the stages in order. It returns nil once a terminal write has
// been made.
func (o *Orchestrator) chain(ctx context.Context, r *run, log *zap.Logger) error {
	dom := r.target.Domain

	content := stage(log, "acquire", func() *scrape.Content { return o.d.Acquirer.Acquire(ctx, dom) })
	if content.Empty() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.update(func(out *Outcome, _ *Result) { out.AcquisitionEmpty = true })
		return o.finalize(ctx, r, log)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var socialText string
	if o.d.Social != nil {
		enabled := o.socialEnabled(ctx)
		socialText = stage(log, "social", func() string { return o.d.Social.Augment(ctx, content.Links.Social, enabled) })
	}

	ext, err := o.d.Extractor.Extract(ctx, extract.Input{
		Domain:       dom,
		KnownName:    r.target.CompanyName,
		WebsiteText:  content.Text,
		SocialText:   socialText,
		SocialLinks:  content.Links.Social,
		MarkupEmails: content.Links.Emails,
		MarkupPhones: content.Links.Phones,
	})
	if err != nil {
		var se *extract.ServiceError
		if errors.As(err, &se) && ctx.Err() == nil {
			return o.serviceFailure(ctx, r, se, log)
		}
		return eris.Wrap(err, "enrich: extract")
	}
	o.updateProfile(ctx, r, ext, log)

	found := ext.Contacts
	if o.d.Search != nil && !anyEmail(found) {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := r.companyName()
		emails := stage(log, "search", func() []string { return o.d.Search.Find(ctx, dom, name, r.mode) })
		found = append(found, extract.SearchContacts(emails)...)
	}
	r.update(func(out *Outcome, _ *Result) { out.Found = len(found) })

	persisted, err := o.d.Persister.Persist(ctx, r.prospect, found)
	if err != nil {
		log.Warn("enrich: some contacts were not stored", zap.Error(err))
	}
	r.update(func(out *Outcome, _ *Result) {
		out.Persisted = persisted.Persisted
		out.Dropped = persisted.Filtered.Summary()
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	has := o.icebreaker(ctx, r, content.Text, persisted.Persisted, log)
	r.update(func(out *Outcome, _ *Result) { out.Icebreaker = has })

	return o.finalize(ctx, r, log)
}

// stage times one step.
func stage[T any](log *zap.Logger, name string, fn func() T) T {
	start := time.Now()
	out := fn()
	log.Debug("enrich: stage complete", zap.String("stage", name), zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out
}

func anyEmail(list []model.Contact) bool {
	for _, c := range list {
		if c.HasEmail() {
			return true
		}
	}
	return false
}

func (r *run) companyName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.CompanyName
}

func (o *Orchestrator) socialEnabled(ctx context.Context) bool {
	v, ok, err := o.d.Store.GetSetting(ctx, store.SettingSocialScraping)
	if err != nil {
		zap.L().Warn("enrich: read social scraping setting", zap.Error(err))
		return o.cfg.SocialDefault
	}
	if !ok {
		return o.cfg.SocialDefault
	}
	return v == "true" || v == "1"
}

// updateProfile writes only the extracted fields that improve on the target.
func (o *Orchestrator) updateProfile(ctx context.Context, r *run, ext *extract.Extraction, log *zap.Logger) {
	upd := profileUpdate(r.target, ext)
	if upd.Empty() {
		return
	}
	if err := o.d.Store.UpdateTargetProfile(ctx, r.target.ID, upd); err != nil {
		log.Warn("enrich: update target profile", zap.Error(err))
		return
	}
	if upd.CompanyName != "" {
		r.update(func(_ *Outcome, res *Result) {
			res.CompanyName = upd.CompanyName
			res.CompanyNameUpdated = true
		})
	}
}

func profileUpdate(t *model.Target, ext *extract.Extraction) model.ProfileUpdate {
	var upd model.ProfileUpdate

	name := strings.TrimSpace(ext.CompanyName)
	if name != "" && !ext.Placeholder && !domainLike(name, t.Domain) && !strings.EqualFold(name, strings.TrimSpace(t.CompanyName)) {
		upd.CompanyName = name
	}
	if ext.FacebookURL != "" && t.FacebookURL == "" {
		upd.FacebookURL = ext.FacebookURL
	}
	if ext.Industry != "" && ext.Industry != extract.IndustryOther && unclassified(t.Industry) {
		upd.Industry = ext.Industry
	}
	return upd
}

func unclassified(industry string) bool {
	switch strings.ToLower(strings.TrimSpace(industry)) {
	case "", "unclassified", extract.IndustryOther:
		return true
	}
	return false
}

// domainLike reports whether name is just the domain dressed up, such as
// "acme-hvac.com" or "Acme-Hvac".
func domainLike(name, dom string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(n, " ") && strings.Contains(n, ".") {
		return true
	}
	label := strings.ToLower(dom)
	if i := strings.Index(label, "."); i > 0 {
		label = label[:i]
	}
	return n == label || n == strings.ReplaceAll(label, "-", " ")
}

// icebreaker reports whether the prospect holds an opener after this stage.
// Existing text, including manual edits, is never regenerated.
func (o *Orchestrator) icebreaker(ctx context.Context, r *run, siteText string, persisted int, log *zap.Logger) bool {
	if r.prospect.HasIcebreaker() {
		return true
	}
	if o.d.Icebreaker == nil || persisted == 0 {
		return false
	}
	text, err := o.d.Icebreaker.Generate(ctx, icebreaker.Input{
		Domain:      r.target.Domain,
		CompanyName: r.companyName(),
		WebsiteText: siteText,
	})
	if err != nil {
		log.Warn("enrich: icebreaker failed", zap.Error(err))
		return false
	}
	written, err := o.d.Store.SaveIcebreaker(ctx, r.prospect.ID, text, o.now())
	if err != nil {
		log.Warn("enrich: save icebreaker", zap.Error(err))
		return false
	}
	if !written {
		log.Info("enrich: icebreaker edited by hand, generated text discarded")
	}
	return written
}

// serviceFailure leaves the attempt unconsumed: the prospect returns to its
// prior status with a note and the caller sees the classified failure.
func (o *Orchestrator) serviceFailure(ctx context.Context, r *run, se *extract.ServiceError, log *zap.Logger) error {
	if !r.claim() {
		return nil
	}
	note := fmt.Sprintf("Extraction failed (%s): %v", se.Kind, se.Err)
	if err := o.d.Store.RevertEnrichment(ctx, r.prospect.ID, note); err != nil {
		r.unclaim()
		return eris.Wrap(err, "enrich: revert after extraction failure")
	}
	log.Warn("enrich: extraction service failure", zap.String("kind", string(se.Kind)), zap.Error(se.Err))
	status := r.prospect.Status
	if status == "" || status == model.ProspectStatusEnriching {
		status = model.ProspectStatusNeedsReview
	}
	r.update(func(_ *Outcome, res *Result) {
		res.Status = status
		res.Failure = se.Kind
		res.Message = note
	})
	return nil
}

// finalize writes the decision for the current outcome, once.
func (o *Orchestrator) finalize(ctx context.Context, r *run, log *zap.Logger) error {
	if !r.claim() {
		return nil
	}
	out, _ := r.snapshot()
	d := Decide(out)
	err := o.d.Store.FinishEnrichment(ctx, r.prospect.ID, model.Finalization{
		Status:       d.State,
		ContactCount: out.Persisted,
		Note:         d.Note,
	})
	if err != nil {
		r.unclaim()
		return eris.Wrap(err, "enrich: finish")
	}
	log.Info("enrich: final status", zap.String("status", string(d.State)), zap.String("note", d.Note))
	r.update(func(_ *Outcome, res *Result) {
		res.Status = d.State
		res.ContactsFound = out.Persisted
		res.Message = d.Note
	})
	return nil
}

// recoverRun derives a best-effort decision from what was actually stored
// and writes it. It is a no-op if the chain already finalized.
func (o *Orchestrator) recoverRun(parent context.Context, r *run, reason string, cause error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 15*time.Second)
	defer cancel()

	r.mu.Lock()
	already := r.finalized
	r.mu.Unlock()
	if already {
		return
	}
	log.Warn("enrich: recovering prospect", zap.String("reason", reason), zap.Error(cause))

	stored, err := o.d.Store.ListContacts(ctx, r.prospect.ID)
	if err != nil {
		log.Error("enrich: recovery could not list contacts", zap.Error(err))
	}
	withEmail := 0
	for _, c := range stored {
		if c.HasEmail() {
			withEmail++
		}
	}
	hasIcebreaker := r.prospect.HasIcebreaker()
	if p, err := o.d.Store.GetProspect(ctx, r.prospect.ID); err == nil {
		hasIcebreaker = p.HasIcebreaker()
	}

	r.update(func(out *Outcome, res *Result) {
		out.Persisted = withEmail
		out.Icebreaker = hasIcebreaker
		out.Recovered = reason
		res.Recovered = reason
	})
	if err := o.finalize(ctx, r, log); err != nil {
		log.Error("enrich: recovery write failed", zap.Error(err))
		r.update(func(_ *Outcome, res *Result) {
			res.Status = model.ProspectStatusEnriching
			res.Message = "Recovery write failed; the reconciler will sweep this prospect"
		})
	}
}
