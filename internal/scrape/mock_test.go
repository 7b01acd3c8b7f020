package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/pkg/firecrawl"
	"github.com/sells-group/prospect-enricher/pkg/jina"
)

type mockJinaClient struct{ mock.Mock }

func (m *mockJinaClient) Read(ctx context.Context, targetURL string, opts ...jina.ReadOption) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

type mockFirecrawlClient struct{ mock.Mock }

func (m *mockFirecrawlClient) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req.URL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ScrapeResponse), args.Error(1)
}

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

// fakeScraper serves canned pages by URL and records each call's timeout.
type fakeScraper struct {
	name  string
	pages map[string]Page
	// cost advances clock on every call.
	cost  time.Duration
	clock *fakeClock

	mu       sync.Mutex
	calls    []string
	timeouts []time.Duration
}

func (f *fakeScraper) Name() string           { return f.name }
func (f *fakeScraper) Supports(_ string) bool { return true }

func (f *fakeScraper) Scrape(ctx context.Context, u string) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	if dl, ok := ctx.Deadline(); ok && f.clock != nil {
		f.timeouts = append(f.timeouts, dl.Sub(time.Now()).Round(time.Second))
	}
	f.mu.Unlock()
	if f.clock != nil {
		f.clock.Advance(f.cost)
	}

	p, ok := f.pages[u]
	if !ok {
		return nil, eris.Errorf("fake: no page for %s", u)
	}
	return &Result{Page: p, Source: f.name}, nil
}

func (f *fakeScraper) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
