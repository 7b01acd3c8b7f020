// Package scrape acquires prospect website text: direct page fetches first,
// then the Jina reader proxy, then the optional Firecrawl renderer, then a
// search-grounded model answer.
package scrape

import "context"

// Acquisition sources recorded on Content.
const (
	SourceDirect    = "direct"
	SourceJina      = "jina"
	SourceFirecrawl = "firecrawl"
	SourceSearch    = "search"
	SourceNone      = "none"
)

// Page is one fetched document.
type Page struct {
	URL        string
	Title      string
	HTML       []byte // raw markup; nil for sources that return text only
	Text       string // flattened visible text
	Links      Links
	StatusCode int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
