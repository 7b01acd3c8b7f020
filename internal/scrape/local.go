package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const maxBodyBytes = 1 << 20

// LocalScraper fetches pages directly over HTTP. The caller bounds each
// fetch with its context deadline.
type LocalScraper struct {
	client    *http.Client
	userAgent string
	links     *LinkExtractor
}

// NewLocalScraper creates a LocalScraper. A nil links extractor skips link
// collection.
func NewLocalScraper(userAgent string, links *LinkExtractor) *LocalScraper {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; ProspectEnricher/1.0)"
	}
	return &LocalScraper{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				MaxIdleConnsPerHost:   2,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
		links:     links,
	}
}

func (l *LocalScraper) Name() string           { return SourceDirect }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL, rejects challenge pages, and returns the raw
// markup together with its flattened text and outbound links.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "direct: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "direct: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "direct: read body")
	}

	if bt := DetectBlock(resp.StatusCode, resp.Header, body); bt != BlockNone {
		return nil, eris.Errorf("direct: blocked (%s)", bt)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("direct: status %d", resp.StatusCode)
	}

	page := Page{
		URL:        resp.Request.URL.String(),
		HTML:       body,
		Text:       Flatten(body),
		StatusCode: resp.StatusCode,
	}
	if l.links != nil {
		links, title := l.links.Extract(body)
		page.Title = title
		page.Links = links
	}
	if page.Text == "" {
		return nil, eris.New("direct: empty page")
	}
	return &Result{Page: page, Source: SourceDirect}, nil
}
