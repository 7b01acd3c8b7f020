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
	"github.com/sells-group/prospect-enricher/pkg/jina"
)

// JinaAdapter wraps the Jina reader proxy as a Scraper behind a circuit
// breaker, so a failing proxy is skipped for the rest of a bulk run.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
	social  []config.SocialHost
	timeout time.Duration
}

// NewJinaAdapter creates a JinaAdapter. Three consecutive failures open the
// breaker for a minute.
func NewJinaAdapter(client jina.Client, social []config.SocialHost, timeout time.Duration) *JinaAdapter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewBreaker(3, time.Minute),
		social:  social,
		timeout: timeout,
	}
}

func (j *JinaAdapter) Name() string { return SourceJina }

// Supports returns true unless the breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return !j.breaker.Open()
}

// Scrape reads targetURL through the proxy and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.Call(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := j.client.Read(ctx, targetURL, jina.WithReadTimeout(j.timeout))
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.Errorf("jina: unusable response for %s", targetURL)
		}
		return resp, nil
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			zap.L().Debug("jina: breaker open, skipping", zap.String("url", targetURL))
		}
		return nil, err
	}

	page := Page{
		URL:        resp.Data.URL,
		Title:      resp.Data.Title,
		Text:       strings.TrimSpace(resp.Data.Content),
		StatusCode: resp.Code,
	}
	ex := NewLinkExtractor(j.social)
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
	return &Result{Page: page, Source: SourceJina}, nil
}

// challengeSignatures mark proxy output that is a bot wall, not the page.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a reader response carries no usable page
// content.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	return unusableMarkdown(resp.Code, resp.Data.Content)
}

// unusableMarkdown reports whether proxied or rendered markdown is an error
// page, a bot wall, or too short to hold contact detail.
func unusableMarkdown(status int, markdown string) bool {
	if status != 0 && status != 200 {
		return true
	}

	content := strings.TrimSpace(markdown)
	if len(content) < 100 {
		return true
	}
	if len(content) >= 1000 {
		return false
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
