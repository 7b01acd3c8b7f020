package bulk

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/lease"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bulk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newProspect(t *testing.T, st *store.SQLiteStore, dom string) *model.Prospect {
	t.Helper()
	target, err := st.UpsertTarget(context.Background(), &model.Target{Domain: dom})
	require.NoError(t, err)
	p, err := st.CreateProspect(context.Background(), target.ID)
	require.NoError(t, err)
	return p
}

// fakeEnricher stands in for the orchestrator. Like the orchestrator it
// confirms the lease before doing anything; by default it then finalizes the
// prospect as enriched with one contact.
type fakeEnricher struct {
	st    *store.SQLiteStore
	lease lease.Lease
	ttl   time.Duration

	mu        sync.Mutex
	calls     []string
	notViable map[string]bool
	run       func(ctx context.Context, p *model.Prospect) (*enrich.Result, error)
}

func (f *fakeEnricher) Preflight(_ context.Context, p *model.Prospect) (*enrich.Result, error) {
	if f.notViable[p.ID] {
		return &enrich.Result{ProspectID: p.ID, NotViable: true, Status: model.ProspectStatusNotViable, Message: "Government domain"}, nil
	}
	return nil, nil
}

func (f *fakeEnricher) EnrichHeld(ctx context.Context, p *model.Prospect, owner string, _ model.ProcessingMode) (*enrich.Result, error) {
	held, err := f.lease.Renew(ctx, p.ID, owner)
	if err != nil {
		return nil, err
	}
	if !held {
		return &enrich.Result{ProspectID: p.ID, Skipped: true}, enrich.ErrLeaseLost
	}
	defer func() { _ = f.lease.Release(ctx, p.ID, owner) }()
	f.mu.Lock()
	f.calls = append(f.calls, p.ID)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, p)
	}
	return f.enriched(ctx, p)
}

func (f *fakeEnricher) enriched(ctx context.Context, p *model.Prospect) (*enrich.Result, error) {
	if err := f.st.BeginEnrichment(ctx, p.ID); err != nil {
		return nil, err
	}
	if err := f.st.FinishEnrichment(ctx, p.ID, model.Finalization{Status: model.ProspectStatusEnriched, ContactCount: 1, Note: "ok"}); err != nil {
		return nil, err
	}
	return &enrich.Result{ProspectID: p.ID, Status: model.ProspectStatusEnriched, ContactsFound: 1}, nil
}

func (f *fakeEnricher) LeaseTTL() time.Duration {
	if f.ttl > 0 {
		return f.ttl
	}
	return time.Minute
}

func (f *fakeEnricher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// spyLease records every id it was asked to acquire.
type spyLease struct {
	lease.Lease
	mu       sync.Mutex
	acquired []string
}

func (s *spyLease) Acquire(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	s.acquired = append(s.acquired, id)
	s.mu.Unlock()
	return s.Lease.Acquire(ctx, id, owner, ttl)
}

func collect(t *testing.T, run *Run) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
			return out
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func byType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
