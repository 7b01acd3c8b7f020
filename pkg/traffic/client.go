// Package traffic fetches monthly visit estimates from a web analytics API.
package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

// ErrNoData is returned when the API has no figures for a domain.
var ErrNoData = eris.New("traffic: no data")

// Client looks up traffic figures for a domain.
type Client interface {
	MonthlyVisits(ctx context.Context, domain string) (*Estimate, error)
}

// Estimate is one domain's traffic snapshot.
type Estimate struct {
	Domain        string `json:"domain"`
	MonthlyVisits int64  `json:"monthly_visits"`
	GlobalRank    int64  `json:"global_rank"`
}

// Option configures the client.
type Option func(*httpClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a traffic API client.
func NewClient(apiKey, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) MonthlyVisits(ctx context.Context, domain string) (*Estimate, error) {
	reqURL := fmt.Sprintf("%s/v1/domains/%s/traffic", c.baseURL, url.PathEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "traffic: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "traffic: lookup %s", domain)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoData
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "traffic: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("traffic: unexpected status %d for %s", resp.StatusCode, domain)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var est Estimate
	if err := json.Unmarshal(body, &est); err != nil {
		return nil, eris.Wrap(err, "traffic: unmarshal response")
	}
	if est.MonthlyVisits <= 0 {
		return nil, ErrNoData
	}
	if est.Domain == "" {
		est.Domain = domain
	}
	return &est, nil
}
