// Package rdap queries RDAP (the JSON successor to WHOIS) for domain contacts.
package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

const defaultBaseURL = "https://rdap.org"

// contactRoles are the entity roles worth outreach. Registrar and abuse
// contacts belong to the registrar, not the business.
var contactRoles = []string{"registrant", "administrative", "technical"}

// Client looks up registration contacts.
type Client interface {
	ContactEmails(ctx context.Context, domain string) ([]string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the bootstrap RDAP server.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an RDAP client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type entity struct {
	Roles      []string          `json:"roles"`
	VCardArray []json.RawMessage `json:"vcardArray"`
	Entities   []entity          `json:"entities"`
}

type domainResponse struct {
	Entities []entity `json:"entities"`
}

// ContactEmails returns the unredacted registrant, admin and tech emails for
// domain. A domain with no public contacts yields an empty slice.
func (c *httpClient) ContactEmails(ctx context.Context, domain string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/domain/%s", c.baseURL, url.PathEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "rdap: create request")
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "rdap: lookup %s", domain)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("rdap: unexpected status %d for %s", resp.StatusCode, domain)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, eris.Wrap(err, "rdap: read response")
	}
	var dr domainResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, eris.Wrap(err, "rdap: unmarshal response")
	}

	var out []string
	seen := make(map[string]bool)
	var walk func([]entity)
	walk = func(ents []entity) {
		for _, e := range ents {
			if hasContactRole(e.Roles) {
				for _, email := range vcardEmails(e.VCardArray) {
					email = strings.ToLower(strings.TrimSpace(email))
					if email == "" || seen[email] || strings.Contains(email, "redacted") {
						continue
					}
					seen[email] = true
					out = append(out, email)
				}
			}
			walk(e.Entities)
		}
	}
	walk(dr.Entities)
	return out, nil
}

func hasContactRole(roles []string) bool {
	for _, r := range roles {
		if slices.Contains(contactRoles, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

// vcardEmails pulls email properties out of a jCard ["vcard", [[name, params, type, value], ...]].
func vcardEmails(card []json.RawMessage) []string {
	if len(card) < 2 {
		return nil
	}
	var props [][]json.RawMessage
	if err := json.Unmarshal(card[1], &props); err != nil {
		return nil
	}
	var out []string
	for _, p := range props {
		if len(p) < 4 {
			continue
		}
		var name, value string
		if json.Unmarshal(p[0], &name) != nil || name != "email" {
			continue
		}
		if json.Unmarshal(p[3], &value) == nil {
			out = append(out, value)
		}
	}
	return out
}
