package contacts

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// Result summarizes one persistence pass.
type Result struct {
	Found     int // raw contacts handed in
	Usable    int // contacts surviving Filter
	Kept      int // contacts left after the cap
	Persisted int // kept contacts stored after the call, new or pre-existing
	Inserted  int // rows newly written by this call
	Filtered  Filtered
}

// Persister writes filtered contacts for a prospect.
type Persister struct {
	store store.ContactStore
	rules Rules
	limit int
}

// NewPersister creates a Persister capping each prospect at limit contacts.
func NewPersister(s store.ContactStore, rules Rules, limit int) *Persister {
	if limit <= 0 {
		limit = DefaultCap
	}
	return &Persister{store: s, rules: rules, limit: limit}
}

// Persist filters raw, applies the cap, and upserts with ignore-on-conflict.
// A failed insert is logged and skipped; the joined insert errors are
// returned alongside the partial result.
func (p *Persister) Persist(ctx context.Context, prospect *model.Prospect, raw []model.Contact) (Result, error) {
	filtered := Filter(raw, p.rules)
	kept := Truncate(filtered.Kept, p.limit, len(filtered.Kept))

	res := Result{
		Found:    len(raw),
		Usable:   len(filtered.Kept),
		Kept:     len(kept),
		Filtered: filtered,
	}

	var errs []error
	for i := range kept {
		c := kept[i]
		c.ProspectID = prospect.ID
		c.TargetID = prospect.TargetID
		inserted, err := p.store.InsertContact(ctx, &c)
		if err != nil {
			zap.L().Warn("contacts: insert failed",
				zap.String("prospect", prospect.ID),
				zap.String("email", c.Email),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		res.Persisted++
		if inserted {
			res.Inserted++
		}
	}

	if len(errs) > 0 {
		return res, eris.Wrapf(errors.Join(errs...), "contacts: %d of %d inserts failed", len(errs), len(kept))
	}
	return res, nil
}
