// Package extract turns acquired page text into structured company and
// contact data, falling back to targeted web searches for email addresses.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/model"
)

// Default prompt budgets in characters.
const (
	DefaultWebsiteChars = 15000
	DefaultSocialChars  = 3000
)

// DefaultNote is the provenance recorded when the model gives none.
const DefaultNote = "Found on website"

// ErrMalformedOutput marks an extraction response that is not the agreed JSON.
var ErrMalformedOutput = eris.New("extract: malformed model output")

// ServiceError is a classified extraction failure. The orchestrator decides
// the prospect state from Kind.
type ServiceError struct {
	Kind llm.FailureKind
	Err  error
}

func (e *ServiceError) Error() string { return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err) }
func (e *ServiceError) Unwrap() error { return e.Err }

// Input is everything the extractor sees for one domain.
type Input struct {
	Domain       string
	KnownName    string
	WebsiteText  string
	SocialText   string
	SocialLinks  []string
	MarkupEmails []string
	MarkupPhones []string
}

// Extraction is the post-processed model output.
type Extraction struct {
	CompanyName string
	// Placeholder is set when CompanyName is the marked unknown value.
	Placeholder bool
	FacebookURL string
	Industry    string
	Contacts    []model.Contact
	Dropped     int
}

// Extractor calls the language model under the extraction contract.
type Extractor struct {
	client       llm.Client
	classifier   *Classifier
	noReply      []string
	websiteChars int
	socialChars  int
}

// NewExtractor creates an Extractor. Non-positive budgets use the defaults.
func NewExtractor(client llm.Client, tables *config.Tables, websiteChars, socialChars int) *Extractor {
	if tables == nil {
		tables = config.DefaultTables()
	}
	if websiteChars <= 0 {
		websiteChars = DefaultWebsiteChars
	}
	if socialChars <= 0 {
		socialChars = DefaultSocialChars
	}
	return &Extractor{
		client:       client,
		classifier:   NewClassifier(tables),
		noReply:      tables.NoReplyLocalParts,
		websiteChars: websiteChars,
		socialChars:  socialChars,
	}
}

// PlaceholderName is the marked company name used when none can be found.
func PlaceholderName(domain string) string {
	return fmt.Sprintf("Unknown Company (%s)", domain)
}

// IsPlaceholderName reports whether name is a PlaceholderName value.
func IsPlaceholderName(name string) bool {
	return strings.HasPrefix(name, "Unknown Company (")
}

const extractSystem = `You extract business contact data from website text for B2B outreach.
Return ONLY a JSON object, no prose, matching exactly:
{"company_name": string, "facebook_url": string, "industry": string,
 "contacts": [{"first_name": string, "last_name": string, "email": string, "phone": string,
   "title": string, "linkedin_url": string, "facebook_url": string, "notes": string}]}

Company name: use the page title, logo text, footer copyright line or the about page's own description.
Never just capitalize the domain. If you truly cannot tell, return an empty string.

Industry: exactly one of hvac, plumbing, roofing, electrical, automotive, legal, medical,
real-estate, restaurant, retail, other. Decide from keyword evidence in the text; use "other" when unclear.

Contacts: be aggressive about inclusion.
- Include role addresses (info@, sales@, support@, office@, hello@) and personal free-mail addresses shown as business contacts.
- Include phone-only or address-only findings as a contact with first_name "Office".
- Include team members, owners and staff named on contact, about or team pages.
Exclude:
- no-reply or automated addresses.
- anyone appearing in a testimonial, review, or case study; they are customers, not staff.
Every contact needs "notes" saying where it was found, for example "Contact page footer" or "Team page".
Use empty strings for unknown fields. Return "contacts": [] if nothing qualifies.`

// Extract runs one extraction call. Service failures and malformed output
// come back as *ServiceError.
func (e *Extractor) Extract(ctx context.Context, in Input) (*Extraction, error) {
	resp, err := e.client.Complete(ctx, llm.Request{
		Phase:  "extract",
		System: extractSystem,
		Prompt: e.prompt(in),
		JSON:   true,
	})
	if err != nil {
		return nil, &ServiceError{Kind: llm.Classify(err), Err: err}
	}

	out, err := e.parse(resp.Text, in)
	if err != nil {
		zap.L().Warn("extract: unparseable response",
			zap.String("domain", in.Domain),
			zap.Int("chars", len(resp.Text)),
			zap.Error(err),
		)
		return nil, &ServiceError{Kind: llm.FailureGeneric, Err: err}
	}
	return out, nil
}

func (e *Extractor) prompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Domain: %s\n", in.Domain)
	if in.KnownName != "" && !IsPlaceholderName(in.KnownName) {
		fmt.Fprintf(&sb, "Currently known company name: %s\n", in.KnownName)
	}
	if len(in.SocialLinks) > 0 {
		fmt.Fprintf(&sb, "Social links found on the site:\n%s\n", strings.Join(in.SocialLinks, "\n"))
	}
	if len(in.MarkupEmails) > 0 {
		fmt.Fprintf(&sb, "mailto links: %s\n", strings.Join(in.MarkupEmails, ", "))
	}
	if len(in.MarkupPhones) > 0 {
		fmt.Fprintf(&sb, "tel links: %s\n", strings.Join(in.MarkupPhones, ", "))
	}
	fmt.Fprintf(&sb, "\nWEBSITE TEXT:\n%s\n", truncate(in.WebsiteText, e.websiteChars))
	if in.SocialText != "" {
		fmt.Fprintf(&sb, "\nSOCIAL PROFILE TEXT:\n%s\n", truncate(in.SocialText, e.socialChars))
	}
	return sb.String()
}

type rawExtraction struct {
	CompanyName string       `json:"company_name"`
	FacebookURL string       `json:"facebook_url"`
	Industry    string       `json:"industry"`
	Contacts    []rawContact `json:"contacts"`
}

type rawContact struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Title       string `json:"title"`
	LinkedInURL string `json:"linkedin_url"`
	FacebookURL string `json:"facebook_url"`
	Notes       string `json:"notes"`
}

// customerContext marks notes describing a customer rather than staff.
var customerContext = []string{"testimonial", "customer review", "case study", "client quote", "customer quote"}

func (e *Extractor) parse(text string, in Input) (*Extraction, error) {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(cleanJSON(text, '{', '}')), &raw); err != nil {
		return nil, eris.Wrapf(ErrMalformedOutput, "decode: %v", err)
	}

	out := &Extraction{
		CompanyName: strings.TrimSpace(raw.CompanyName),
		FacebookURL: strings.TrimSpace(raw.FacebookURL),
	}
	if out.CompanyName == "" || strings.EqualFold(out.CompanyName, "unknown") {
		out.CompanyName = PlaceholderName(in.Domain)
		out.Placeholder = true
	}

	out.Industry = e.classifier.Normalize(raw.Industry)
	if out.Industry == "" {
		out.Industry = e.classifier.Classify(in.WebsiteText + "\n" + in.SocialText)
	}

	for _, rc := range raw.Contacts {
		c, ok := e.contact(rc)
		if !ok {
			out.Dropped++
			continue
		}
		out.Contacts = append(out.Contacts, c)
	}
	return out, nil
}

func (e *Extractor) contact(rc rawContact) (model.Contact, bool) {
	c := model.Contact{
		FirstName:   strings.TrimSpace(rc.FirstName),
		LastName:    strings.TrimSpace(rc.LastName),
		Email:       strings.ToLower(strings.TrimSpace(rc.Email)),
		Phone:       strings.TrimSpace(rc.Phone),
		Title:       strings.TrimSpace(rc.Title),
		LinkedInURL: strings.TrimSpace(rc.LinkedInURL),
		FacebookURL: strings.TrimSpace(rc.FacebookURL),
		Notes:       strings.TrimSpace(rc.Notes),
	}
	if c.Email == "" && c.Phone == "" && c.FirstName == "" && c.LastName == "" {
		return c, false
	}
	if c.Email != "" && e.noReplyAddress(c.EmailLocal()) {
		return c, false
	}
	lowerNotes := strings.ToLower(c.Notes)
	for _, m := range customerContext {
		if strings.Contains(lowerNotes, m) {
			return c, false
		}
	}
	if c.FirstName == "" && c.LastName == "" {
		c.FirstName = "Office"
	}
	if c.Notes == "" {
		c.Notes = DefaultNote
	}
	return c, true
}

func (e *Extractor) noReplyAddress(local string) bool {
	compact := strings.NewReplacer("-", "", "_", "", ".", "").Replace(local)
	for _, p := range e.noReply {
		p = strings.NewReplacer("-", "", "_", "", ".", "").Replace(strings.ToLower(p))
		if strings.HasPrefix(compact, p) {
			return true
		}
	}
	return false
}
