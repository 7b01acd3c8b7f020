package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/llm"
)

// DefaultPaths are tried in order; contact and team pages carry the most
// contact detail per byte, so the homepage goes last.
var DefaultPaths = []string{"/contact", "/contact-us", "/about", "/about-us", "/team", "/our-team", "/"}

// Content is the accumulated text and links for one domain.
type Content struct {
	Text   string
	Links  Links
	Source string
	Pages  []string
}

// Empty reports whether no strategy produced any text.
func (c *Content) Empty() bool {
	return strings.TrimSpace(c.Text) == ""
}

// SocialList returns the discovered social URLs newline-joined.
func (c *Content) SocialList() string {
	return strings.Join(c.Links.Social, "\n")
}

// AcquirerConfig bounds direct acquisition.
type AcquirerConfig struct {
	Paths  []string
	PerURL time.Duration
	Budget time.Duration
}

// Acquirer retrieves representative page text for a domain.
type Acquirer struct {
	direct   Scraper
	jina     Scraper
	crawler  Scraper
	grounded llm.Client

	paths  []string
	perURL time.Duration
	budget time.Duration

	urlFor func(domain, path string) string
	now    func() time.Time
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithJina enables the reader proxy stage.
func WithJina(s Scraper) AcquirerOption {
	return func(a *Acquirer) { a.jina = s }
}

// WithFirecrawl enables the paid rendering stage, tried after the reader
// proxy.
func WithFirecrawl(s Scraper) AcquirerOption {
	return func(a *Acquirer) { a.crawler = s }
}

// WithGrounded enables the search-grounded stage.
func WithGrounded(c llm.Client) AcquirerOption {
	return func(a *Acquirer) { a.grounded = c }
}

// WithURLFunc overrides how candidate URLs are built from a domain.
func WithURLFunc(fn func(domain, path string) string) AcquirerOption {
	return func(a *Acquirer) { a.urlFor = fn }
}

// WithClock overrides the clock used for the acquisition deadline.
func WithClock(now func() time.Time) AcquirerOption {
	return func(a *Acquirer) { a.now = now }
}

// NewAcquirer creates an Acquirer fetching directly through direct.
func NewAcquirer(direct Scraper, cfg AcquirerConfig, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		direct: direct,
		paths:  cfg.Paths,
		perURL: cfg.PerURL,
		budget: cfg.Budget,
		urlFor: func(domain, path string) string { return "https://" + domain + path },
		now:    time.Now,
	}
	if len(a.paths) == 0 {
		a.paths = DefaultPaths
	}
	if a.perURL <= 0 {
		a.perURL = 8 * time.Second
	}
	if a.budget <= 0 {
		a.budget = 60 * time.Second
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Acquire runs the direct, proxy, rendering and grounded strategies in
// order, stopping at the first that yields text. It never fails on a single
// URL; an empty Content is the only failure signal.
func (a *Acquirer) Acquire(ctx context.Context, domain string) *Content {
	log := zap.L().With(zap.String("domain", domain))
	deadline := a.now().Add(a.budget)

	content := a.fetchAll(ctx, a.direct, domain, a.paths, deadline)
	if !content.Empty() {
		content.Source = SourceDirect
		log.Info("acquire: direct fetch succeeded", zap.Int("pages", len(content.Pages)), zap.Int("chars", len(content.Text)))
		return content
	}

	if a.jina != nil && ctx.Err() == nil {
		// The proxy gets its own per-page timeout; the outer context still
		// bounds the whole prospect.
		proxied := a.fetchAll(ctx, a.jina, domain, []string{"/", "/contact"}, time.Time{})
		if !proxied.Empty() {
			proxied.Links.Merge(content.Links)
			proxied.Source = SourceJina
			log.Info("acquire: reader proxy succeeded", zap.Int("pages", len(proxied.Pages)))
			return proxied
		}
	}

	if a.crawler != nil && ctx.Err() == nil {
		rendered := a.fetchAll(ctx, a.crawler, domain, []string{"/", "/contact"}, time.Time{})
		if !rendered.Empty() {
			rendered.Links.Merge(content.Links)
			rendered.Source = SourceFirecrawl
			log.Info("acquire: firecrawl render succeeded", zap.Int("pages", len(rendered.Pages)))
			return rendered
		}
	}

	if a.grounded != nil && ctx.Err() == nil {
		text := a.searchAssisted(ctx, domain)
		if text != "" {
			log.Info("acquire: search-assisted fetch succeeded", zap.Int("chars", len(text)))
			return &Content{Text: text, Links: content.Links, Source: SourceSearch}
		}
	}

	log.Warn("acquire: no content from any strategy")
	content.Source = SourceNone
	return content
}

// fetchAll fetches each path in order. A zero deadline means per-URL
// timeouts only.
func (a *Acquirer) fetchAll(ctx context.Context, s Scraper, domain string, paths []string, deadline time.Time) *Content {
	var (
		content Content
		sb      strings.Builder
	)
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		timeout := a.perURL
		if !deadline.IsZero() {
			remaining := deadline.Sub(a.now())
			if remaining <= 0 {
				zap.L().Info("acquire: fetch budget exhausted",
					zap.String("domain", domain),
					zap.Int("fetched", len(content.Pages)),
				)
				break
			}
			timeout = min(timeout, remaining)
		}

		u := a.urlFor(domain, p)
		if !s.Supports(u) {
			continue
		}
		res, err := a.fetchOne(ctx, s, u, timeout)
		if err != nil {
			zap.L().Debug("acquire: fetch failed",
				zap.String("scraper", s.Name()),
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}

		content.Links.Merge(res.Page.Links)
		if res.Page.Text == "" {
			continue
		}
		content.Pages = append(content.Pages, u)
		fmt.Fprintf(&sb, "=== %s ===\n%s\n\n", u, res.Page.Text)
	}
	content.Text = strings.TrimSpace(sb.String())
	return &content
}

func (a *Acquirer) fetchOne(ctx context.Context, s Scraper, u string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Scrape(ctx, u)
}

const searchAssistedSystem = `You retrieve website content. Use web search to find the given domain's contact, about and home pages and reproduce their visible text as faithfully as you can, including every email address, phone number, street address and staff name shown. Do not summarize or invent anything. If you cannot find the site, reply with exactly NO_CONTENT.`

// noContent is the sentinel the grounded model returns when it finds nothing.
const noContent = "NO_CONTENT"

func (a *Acquirer) searchAssisted(ctx context.Context, domain string) string {
	resp, err := a.grounded.Complete(ctx, llm.Request{
		Phase:     "acquire_search",
		System:    searchAssistedSystem,
		Prompt:    fmt.Sprintf("Domain: %s\nReturn the text of its contact page, about page and homepage.", domain),
		Grounded:  true,
		MaxTokens: 4096,
	})
	if err != nil {
		zap.L().Warn("acquire: search-assisted fetch failed", zap.String("domain", domain), zap.Error(err))
		return ""
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" || strings.HasPrefix(text, noContent) {
		return ""
	}
	return text
}
