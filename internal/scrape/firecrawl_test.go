package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/resilience"
	"github.com/sells-group/prospect-enricher/pkg/firecrawl"
)

func TestFirecrawlAdapter_Scrape_Success(t *testing.T) {
	t.Parallel()
	m := &mockFirecrawlClient{}
	adapter := NewFirecrawlAdapter(m, config.DefaultTables().SocialHosts, 0)

	m.On("Scrape", mock.Anything, "https://acme-hvac.com/contact").Return(&firecrawl.ScrapeResponse{
		Success: true,
		Data: firecrawl.PageData{
			Markdown: longContent,
			Links:    []string{"tel:+15551234567", "https://www.linkedin.com/company/acme-hvac", "https://acme-hvac.com/team"},
			Metadata: firecrawl.Metadata{Title: "Contact us", SourceURL: "https://acme-hvac.com/contact", StatusCode: 200},
		},
	}, nil)

	result, err := adapter.Scrape(context.Background(), "https://acme-hvac.com/contact")
	require.NoError(t, err)
	assert.Equal(t, SourceFirecrawl, result.Source)
	assert.Equal(t, "Contact us", result.Page.Title)
	assert.Equal(t, "https://acme-hvac.com/contact", result.Page.URL)
	assert.Contains(t, result.Page.Text, "info@acme-hvac.com")
	assert.Equal(t, []string{"https://www.linkedin.com/company/acme-hvac"}, result.Page.Links.Social)
	assert.NotEmpty(t, result.Page.Links.Phones)
	m.AssertExpectations(t)
}

func TestFirecrawlAdapter_Scrape_RejectsUnusablePages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *firecrawl.ScrapeResponse
	}{
		{"reported failure", &firecrawl.ScrapeResponse{Success: false, Data: firecrawl.PageData{Markdown: longContent}}},
		{"upstream 403", &firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{Markdown: longContent, Metadata: firecrawl.Metadata{StatusCode: 403}}}},
		{"too short", &firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{Markdown: "hi"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockFirecrawlClient{}
			m.On("Scrape", mock.Anything, "https://a.com").Return(tt.resp, nil)
			_, err := NewFirecrawlAdapter(m, nil, 0).Scrape(context.Background(), "https://a.com")
			assert.Error(t, err)
		})
	}
}

func TestFirecrawlAdapter_BreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()
	m := &mockFirecrawlClient{}
	adapter := NewFirecrawlAdapter(m, nil, 0)

	m.On("Scrape", mock.Anything, mock.Anything).Return(nil, errors.New("insufficient credits")).Times(3)

	for i := 0; i < 3; i++ {
		_, err := adapter.Scrape(context.Background(), "https://blocked.com")
		require.Error(t, err)
	}
	assert.False(t, adapter.Supports("https://blocked.com"))

	_, err := adapter.Scrape(context.Background(), "https://blocked.com")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	m.AssertNumberOfCalls(t, "Scrape", 3)
}
