package bulk

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// ReconcileStore is what the reconciler reads and writes.
type ReconcileStore interface {
	store.ProspectStore
	store.ContactStore
}

// Reconciler settles prospects left in enriching by a crashed or aborted run.
type Reconciler struct {
	store ReconcileStore
	now   func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(s ReconcileStore) *Reconciler {
	return &Reconciler{store: s, now: time.Now}
}

// Sweep finalizes any of ids still in enriching with no live lease, deciding
// from the contacts actually stored. It returns the number settled.
func (r *Reconciler) Sweep(ctx context.Context, ids []string) (int, error) {
	prospects, err := r.store.ListProspects(ctx, ids)
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: list prospects")
	}
	var stuck []model.Prospect
	for _, p := range prospects {
		if p.Status == model.ProspectStatusEnriching && !p.Locked() {
			stuck = append(stuck, p)
		}
	}
	return r.settle(ctx, stuck, "reconciliation")
}

// SweepStale settles every prospect stuck in enriching whose lease is
// missing or older than olderThan.
func (r *Reconciler) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := r.store.ListStaleEnriching(ctx, r.now().Add(-olderThan))
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: list stale")
	}
	return r.settle(ctx, stuck, "stale lease")
}

// Rollback returns any of ids still in enriching to their prior status
// without consuming the attempt. Prospects under a live lease belong to
// another worker and are left alone.
func (r *Reconciler) Rollback(ctx context.Context, ids []string, note string) (int, error) {
	prospects, err := r.store.ListProspects(ctx, ids)
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: list prospects")
	}
	n := 0
	for _, p := range prospects {
		if p.Status != model.ProspectStatusEnriching || p.Locked() {
			continue
		}
		if err := r.store.RevertEnrichment(ctx, p.ID, note); err != nil {
			zap.L().Error("reconcile: rollback failed", zap.String("prospect", p.ID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		zap.L().Info("reconcile: rolled back prospects", zap.Int("count", n))
	}
	return n, nil
}

func (r *Reconciler) settle(ctx context.Context, stuck []model.Prospect, reason string) (int, error) {
	n := 0
	for _, p := range stuck {
		list, err := r.store.ListContacts(ctx, p.ID)
		if err != nil {
			zap.L().Error("reconcile: list contacts", zap.String("prospect", p.ID), zap.Error(err))
			continue
		}
		withEmail := 0
		for _, c := range list {
			if c.HasEmail() {
				withEmail++
			}
		}
		d := enrich.Decide(enrich.Outcome{
			Persisted:  withEmail,
			Icebreaker: p.HasIcebreaker(),
			Recovered:  reason,
		})
		if err := r.store.FinishEnrichment(ctx, p.ID, model.Finalization{
			Status:       d.State,
			ContactCount: withEmail,
			Note:         d.Note,
		}); err != nil {
			zap.L().Error("reconcile: finalize", zap.String("prospect", p.ID), zap.Error(err))
			continue
		}
		zap.L().Info("reconcile: settled prospect",
			zap.String("prospect", p.ID),
			zap.String("status", string(d.State)),
		)
		n++
	}
	return n, nil
}
