package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/llm"
)

func plainURL(domain, path string) string { return "http://" + domain + path }

func TestAcquirer_AccumulatesPagesInOrder(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{
		"http://acme-hvac.com/contact": {Text: "Contact: info@acme-hvac.com, (555) 123-4567",
			Links: Links{Social: []string{"https://facebook.com/acmehvac"}, Emails: []string{"info@acme-hvac.com"}}},
		"http://acme-hvac.com/about": {Text: "Family owned since 1982.",
			Links: Links{Social: []string{"https://facebook.com/acmehvac", "https://linkedin.com/company/acme"}}},
		"http://acme-hvac.com/": {Text: "Acme HVAC home"},
	}}

	a := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL))
	c := a.Acquire(context.Background(), "acme-hvac.com")

	require.False(t, c.Empty())
	assert.Equal(t, SourceDirect, c.Source)
	assert.Equal(t, []string{
		"http://acme-hvac.com/contact", "http://acme-hvac.com/about", "http://acme-hvac.com/",
	}, c.Pages)
	assert.Less(t, strings.Index(c.Text, "info@acme-hvac.com"), strings.Index(c.Text, "Family owned"))
	assert.Equal(t, "https://facebook.com/acmehvac\nhttps://linkedin.com/company/acme", c.SocialList())
	assert.Equal(t, []string{"info@acme-hvac.com"}, c.Links.Emails)
	assert.Len(t, direct.Calls(), len(DefaultPaths))
}

func TestAcquirer_GlobalBudgetStopsFetching(t *testing.T) {
	clock := newFakeClock()
	direct := &fakeScraper{name: SourceDirect, clock: clock, cost: 7 * time.Second, pages: map[string]Page{}}

	a := NewAcquirer(direct, AcquirerConfig{PerURL: 8 * time.Second, Budget: 20 * time.Second},
		WithURLFunc(plainURL), WithClock(clock.Now))
	c := a.Acquire(context.Background(), "slow.example")

	assert.True(t, c.Empty())
	assert.Equal(t, SourceNone, c.Source)
	// 20s budget at 7s per fetch: the third fetch gets only the 6s left.
	assert.Len(t, direct.Calls(), 3)
	assert.Equal(t, []time.Duration{8 * time.Second, 8 * time.Second, 6 * time.Second}, direct.timeouts)
}

func TestAcquirer_FallsBackToJina(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{}}
	proxy := &fakeScraper{name: SourceJina, pages: map[string]Page{
		"http://spa.example/contact": {Text: "Reach sales@spa.example"},
	}}
	grounded := &mockLLM{}

	a := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL), WithJina(proxy), WithGrounded(grounded))
	c := a.Acquire(context.Background(), "spa.example")

	assert.Equal(t, SourceJina, c.Source)
	assert.Contains(t, c.Text, "sales@spa.example")
	assert.Equal(t, []string{"http://spa.example/", "http://spa.example/contact"}, proxy.Calls())
	grounded.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAcquirer_FallsBackToFirecrawl(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{
		"http://walled.example/about": {Links: Links{Social: []string{"https://facebook.com/walled"}}},
	}}
	proxy := &fakeScraper{name: SourceJina, pages: map[string]Page{}}
	crawler := &fakeScraper{name: SourceFirecrawl, pages: map[string]Page{
		"http://walled.example/": {Text: "Walled Garden Supply. Call (555) 010-2000"},
	}}
	grounded := &mockLLM{}

	a := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL), WithJina(proxy), WithFirecrawl(crawler), WithGrounded(grounded))
	c := a.Acquire(context.Background(), "walled.example")

	assert.Equal(t, SourceFirecrawl, c.Source)
	assert.Contains(t, c.Text, "(555) 010-2000")
	assert.Equal(t, []string{"https://facebook.com/walled"}, c.Links.Social)
	assert.Len(t, proxy.Calls(), 2)
	assert.Equal(t, []string{"http://walled.example/", "http://walled.example/contact"}, crawler.Calls())
	grounded.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAcquirer_FirecrawlSkippedWhenProxySucceeds(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{}}
	proxy := &fakeScraper{name: SourceJina, pages: map[string]Page{
		"http://spa.example/": {Text: "Welcome"},
	}}
	crawler := &fakeScraper{name: SourceFirecrawl, pages: map[string]Page{}}

	c := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL), WithJina(proxy), WithFirecrawl(crawler)).
		Acquire(context.Background(), "spa.example")
	assert.Equal(t, SourceJina, c.Source)
	assert.Empty(t, crawler.Calls())
}

func TestAcquirer_FallsBackToSearch(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{}}
	grounded := &mockLLM{}
	grounded.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Grounded && r.Phase == "acquire_search"
	})).Return(&llm.Response{Text: "Acme Roofing. Contact office@acmeroof.com"}, nil)

	a := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL), WithGrounded(grounded))
	c := a.Acquire(context.Background(), "acmeroof.com")

	assert.Equal(t, SourceSearch, c.Source)
	assert.Contains(t, c.Text, "office@acmeroof.com")
	grounded.AssertExpectations(t)
}

func TestAcquirer_AllStrategiesEmpty(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{}}
	grounded := &mockLLM{}
	grounded.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Text: "NO_CONTENT"}, nil).Once()

	a := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL), WithGrounded(grounded))
	c := a.Acquire(context.Background(), "deadsite.example")
	assert.True(t, c.Empty())
	assert.Equal(t, SourceNone, c.Source)

	grounded.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("503")).Once()
	c = a.Acquire(context.Background(), "deadsite.example")
	assert.True(t, c.Empty())
}

func TestAcquirer_CancelledContext(t *testing.T) {
	direct := &fakeScraper{name: SourceDirect, pages: map[string]Page{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewAcquirer(direct, AcquirerConfig{}, WithURLFunc(plainURL)).Acquire(ctx, "acme.com")
	assert.True(t, c.Empty())
	assert.Empty(t, direct.Calls())
}
