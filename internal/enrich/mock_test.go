package enrich

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospect-enricher/internal/extract"
	"github.com/sells-group/prospect-enricher/internal/icebreaker"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/scrape"
)

// fakeAcquirer returns fixed content. When block is set it waits on it or
// on the context, signalling entered first.
type fakeAcquirer struct {
	content   *scrape.Content
	calls     atomic.Int32
	entered   chan struct{}
	block     chan struct{}
	ignoreCtx bool
}

func (f *fakeAcquirer) Acquire(ctx context.Context, _ string) *scrape.Content {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		if f.ignoreCtx {
			<-f.block
		} else {
			select {
			case <-f.block:
			case <-ctx.Done():
				return &scrape.Content{Source: scrape.SourceNone}
			}
		}
	}
	if f.content == nil {
		return &scrape.Content{Source: scrape.SourceNone}
	}
	return f.content
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, in extract.Input) (*extract.Extraction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Extraction), args.Error(1)
}

type fakeFinder struct {
	emails []string
	calls  atomic.Int32
	mode   model.ProcessingMode
}

func (f *fakeFinder) Find(_ context.Context, _, _ string, mode model.ProcessingMode) []string {
	f.calls.Add(1)
	f.mode = mode
	return f.emails
}

type fakeAugmenter struct {
	text    string
	enabled atomic.Bool
	calls   atomic.Int32
}

func (f *fakeAugmenter) Augment(_ context.Context, _ []string, enabled bool) string {
	f.calls.Add(1)
	f.enabled.Store(enabled)
	if !enabled {
		return ""
	}
	return f.text
}

type fakeIcebreaker struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeIcebreaker) Generate(_ context.Context, _ icebreaker.Input) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

// deadScraper fails every fetch as a timeout would.
type deadScraper struct{ calls atomic.Int32 }

func (d *deadScraper) Scrape(_ context.Context, _ string) (*scrape.Result, error) {
	d.calls.Add(1)
	return nil, context.DeadlineExceeded
}

func (d *deadScraper) Name() string           { return "dead" }
func (d *deadScraper) Supports(_ string) bool { return true }
