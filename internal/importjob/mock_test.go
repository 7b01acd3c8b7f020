package importjob

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/domain"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/resilience"
	"github.com/sells-group/prospect-enricher/internal/store"
	"github.com/sells-group/prospect-enricher/pkg/traffic"
)

// spyStore records target upserts and progress writes on top of SQLite.
type spyStore struct {
	*store.SQLiteStore

	mu        sync.Mutex
	targets   map[string]*model.Target
	prospects int
	saves     []model.ImportProgress
}

func newSpyStore(t *testing.T) *spyStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return &spyStore{SQLiteStore: st, targets: map[string]*model.Target{}}
}

func (s *spyStore) UpsertTarget(ctx context.Context, t *model.Target) (*model.Target, error) {
	out, err := s.SQLiteStore.UpsertTarget(ctx, t)
	if err == nil {
		s.mu.Lock()
		s.targets[out.Domain] = out
		s.mu.Unlock()
	}
	return out, err
}

func (s *spyStore) CreateProspect(ctx context.Context, targetID string) (*model.Prospect, error) {
	p, err := s.SQLiteStore.CreateProspect(ctx, targetID)
	if err == nil {
		s.mu.Lock()
		s.prospects++
		s.mu.Unlock()
	}
	return p, err
}

func (s *spyStore) SaveImportProgress(ctx context.Context, id string, p model.ImportProgress) error {
	s.mu.Lock()
	s.saves = append(s.saves, p)
	s.mu.Unlock()
	return s.SQLiteStore.SaveImportProgress(ctx, id, p)
}

func (s *spyStore) target(dom string) *model.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets[dom]
}

// recordingScheduler counts continuations and can be told to fail. flaky
// counts transient refusals to return before err applies.
type recordingScheduler struct {
	mu    sync.Mutex
	calls []string
	flaky int
	err   error
}

func (r *recordingScheduler) Schedule(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, jobID)
	if r.flaky > 0 {
		r.flaky--
		return resilience.NewTransientError(errors.New("continuation rejected with status 503"), 503)
	}
	return r.err
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeTraffic answers from a map and can run a hook per lookup. flaky
// counts transient failures to return for a domain before answering.
type fakeTraffic struct {
	mu     sync.Mutex
	visits map[string]int64
	flaky  map[string]int
	calls  int
	hook   func(n int)
}

func (f *fakeTraffic) MonthlyVisits(_ context.Context, dom string) (*traffic.Estimate, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	v, ok := f.visits[dom]
	if f.flaky[dom] > 0 {
		f.flaky[dom]--
		f.mu.Unlock()
		return nil, resilience.NewTransientError(errors.New("traffic: unexpected status 503"), 503)
	}
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(n)
	}
	if !ok {
		return nil, traffic.ErrNoData
	}
	return &traffic.Estimate{Domain: dom, MonthlyVisits: v}, nil
}

func newTestRunner(st Store, tc traffic.Client, sched Scheduler, cfg Config) *Runner {
	return NewRunner(st, domain.NewValidator(config.DefaultTables()), tc, sched, cfg)
}

// stepClock returns a clock that advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

// makeCSV builds a payload with a header and n rows of distinct domains.
func makeCSV(n int) string {
	var b strings.Builder
	b.WriteString("domain,company,traffic\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "shop%02d.com,Shop %02d,%d\n", i, i, i*1000)
	}
	return b.String()
}

func createJob(t *testing.T, r *Runner, payload string) *model.ImportJob {
	t.Helper()
	job, err := r.CreateJob(context.Background(), "test.csv", payload)
	require.NoError(t, err)
	return job
}
