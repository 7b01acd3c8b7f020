package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/resilience"
	"github.com/sells-group/prospect-enricher/pkg/firecrawl"
)

// FirecrawlAdapter renders pages through Firecrawl. It is the paid stage for
// sites whose direct fetch and reader proxy both come back blocked.
type FirecrawlAdapter struct {
	client  firecrawl.Client
	breaker *resilience.Breaker
	social  []config.SocialHost
	timeout time.Duration
}

// NewFirecrawlAdapter creates a FirecrawlAdapter. Three consecutive failures
// open the breaker for a minute.
func NewFirecrawlAdapter(client firecrawl.Client, social []config.SocialHost, timeout time.Duration) *FirecrawlAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FirecrawlAdapter{
		client:  client,
		breaker: resilience.NewBreaker(3, time.Minute),
		social:  social,
		timeout: timeout,
	}
}

func (f *FirecrawlAdapter) Name() string { return SourceFirecrawl }

// Supports returns true unless the breaker is open.
func (f *FirecrawlAdapter) Supports(_ string) bool {
	return !f.breaker.Open()
}

// Scrape renders targetURL and rejects challenge pages the same way the
// reader proxy does.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.Call(ctx, f.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             targetURL,
			Formats:         []string{"markdown", "links"},
			OnlyMainContent: true,
			Timeout:         int(f.timeout.Milliseconds()),
		})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, eris.Errorf("firecrawl: scrape of %s reported failure", targetURL)
		}
		if unusableMarkdown(resp.Data.Metadata.StatusCode, resp.Data.Markdown) {
			return nil, eris.Errorf("firecrawl: unusable response for %s", targetURL)
		}
		return resp, nil
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			zap.L().Debug("firecrawl: breaker open, skipping", zap.String("url", targetURL))
		}
		return nil, err
	}

	pageURL := resp.Data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	page := Page{
		URL:        pageURL,
		Title:      resp.Data.Metadata.Title,
		Text:       strings.TrimSpace(resp.Data.Markdown),
		StatusCode: resp.Data.Metadata.StatusCode,
	}
	ex := NewLinkExtractor(f.social)
	for _, l := range resp.Data.Links {
		u, err := url.Parse(l)
		if err != nil {
			continue
		}
		switch strings.ToLower(u.Scheme) {
		case "mailto", "tel":
			ex.classify(&page.Links, l)
		default:
			if link, ok := ex.socialProfile(l); ok {
				page.Links.Social = appendUnique(page.Links.Social, link)
			}
		}
	}
	return &Result{Page: page, Source: SourceFirecrawl}, nil
}
