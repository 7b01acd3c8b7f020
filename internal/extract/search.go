package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-enricher/internal/contacts"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/resilience"
	"github.com/sells-group/prospect-enricher/pkg/rdap"
)

// SearchNote is the provenance recorded on contacts found by the finder.
const SearchNote = "Contact Found via Search"

// Query is one scoped search in the fallback battery.
type Query struct {
	Name string
	Text string
}

// SearchFinder looks for email addresses across the web when the site
// itself yielded no contacts.
type SearchFinder struct {
	client   llm.Client
	whois    rdap.Client
	lowValue []string
	delay    time.Duration
	retry    resilience.Backoff
}

// NewSearchFinder creates a SearchFinder. whois may be nil. delay paces
// sequential queries.
func NewSearchFinder(client llm.Client, whois rdap.Client, lowValueDomains []string, delay time.Duration) *SearchFinder {
	retry := resilience.DefaultBackoff()
	retry.OnRetry = resilience.LogRetry("rdap", "contact_emails")
	return &SearchFinder{client: client, whois: whois, lowValue: lowValueDomains, delay: delay, retry: retry}
}

// Queries builds the fixed battery for a domain.
func (f *SearchFinder) Queries(domain, company string) []Query {
	name := company
	if name == "" || IsPlaceholderName(name) {
		name = domain
	}
	exclusions := make([]string, 0, len(f.lowValue))
	for _, d := range f.lowValue {
		exclusions = append(exclusions, "-site:"+d)
	}
	return []Query{
		{Name: "site", Text: fmt.Sprintf(`site:%s email OR contact OR "@%s"`, domain, domain)},
		{Name: "professional_network", Text: fmt.Sprintf(`site:linkedin.com/company "%s" %s email`, name, domain)},
		{Name: "directories", Text: fmt.Sprintf(`"%s" %s email (site:yellowpages.com OR site:bbb.org OR site:manta.com OR site:chamberofcommerce.com)`, name, domain)},
		{Name: "web", Text: strings.TrimSpace(fmt.Sprintf(`"@%s" email contact %s`, domain, strings.Join(exclusions, " ")))},
		{Name: "reviews", Text: fmt.Sprintf(`"%s" %s email (site:yelp.com OR site:angi.com OR site:thumbtack.com OR site:houzz.com)`, name, domain)},
		{Name: "forums", Text: fmt.Sprintf(`"%s" OR "%s" email (site:reddit.com OR site:quora.com OR inurl:forum)`, name, domain)},
	}
}

const searchSystem = `You find business email addresses using web search.
Reply with ONLY a JSON array of email address strings found in the search results for the query,
for example ["info@example.com"]. Do not guess or construct addresses. Reply [] if none are found.`

// Find runs the battery plus a registrant lookup and returns the
// deduplicated addresses. Parallel mode runs every query concurrently;
// sequential mode waits the configured delay between queries. Individual
// query failures are logged and skipped.
func (f *SearchFinder) Find(ctx context.Context, domain, company string, mode model.ProcessingMode) []string {
	queries := f.Queries(domain, company)
	results := make([][]string, len(queries)+1)

	if mode == model.ModeSequential {
		results[len(queries)] = f.registrant(ctx, domain)
		limiter := rate.NewLimiter(rate.Every(max(f.delay, time.Millisecond)), 1)
		for i, q := range queries {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
			results[i] = f.run(ctx, domain, q)
		}
	} else {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i, q := range queries {
			g.Go(func() error {
				found := f.run(gctx, domain, q)
				mu.Lock()
				results[i] = found
				mu.Unlock()
				return nil
			})
		}
		g.Go(func() error {
			found := f.registrant(gctx, domain)
			mu.Lock()
			results[len(queries)] = found
			mu.Unlock()
			return nil
		})
		_ = g.Wait()
	}

	var out []string
	seen := make(map[string]bool)
	for _, r := range results {
		for _, e := range r {
			if seen[e] || f.lowValueAddress(e) {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	zap.L().Info("search: fallback complete",
		zap.String("domain", domain),
		zap.String("mode", string(mode)),
		zap.Int("emails", len(out)),
	)
	return out
}

func (f *SearchFinder) run(ctx context.Context, domain string, q Query) []string {
	resp, err := f.client.Complete(ctx, llm.Request{
		Phase:     "search_fallback",
		System:    searchSystem,
		Prompt:    "Query: " + q.Text,
		Grounded:  true,
		MaxTokens: 512,
	})
	if err != nil {
		zap.L().Warn("search: query failed",
			zap.String("domain", domain),
			zap.String("query", q.Name),
			zap.String("kind", string(llm.Classify(err))),
			zap.Error(err),
		)
		return nil
	}
	return parseEmailList(resp.Text)
}

func (f *SearchFinder) registrant(ctx context.Context, domain string) []string {
	if f.whois == nil {
		return nil
	}
	emails, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) ([]string, error) {
		return f.whois.ContactEmails(ctx, domain)
	})
	if err != nil {
		zap.L().Debug("search: rdap lookup failed", zap.String("domain", domain), zap.Error(err))
		return nil
	}
	return emails
}

// parseEmailList reads the JSON array contract, falling back to scanning the
// text when the model ignored it.
func parseEmailList(text string) []string {
	var list []string
	if err := json.Unmarshal([]byte(cleanJSON(text, '[', ']')), &list); err != nil {
		return contacts.FindEmails(text)
	}
	var out []string
	for _, e := range list {
		e = strings.ToLower(strings.TrimSpace(e))
		if contacts.ValidEmail(e) {
			out = append(out, e)
		}
	}
	return out
}

// lowValueAddress drops addresses belonging to directories and platforms
// rather than the prospect.
func (f *SearchFinder) lowValueAddress(email string) bool {
	host := email[strings.LastIndex(email, "@")+1:]
	if host == "example.com" || strings.HasSuffix(host, "sentry.io") {
		return true
	}
	for _, d := range f.lowValue {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// SearchContacts materializes found addresses as generic office contacts.
func SearchContacts(emails []string) []model.Contact {
	out := make([]model.Contact, 0, len(emails))
	for _, e := range emails {
		out = append(out, model.Contact{FirstName: "Office", Email: e, Notes: SearchNote})
	}
	return out
}
