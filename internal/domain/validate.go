// Package domain normalizes prospect domains and decides whether they are
// eligible for enrichment. Checks are pure and make no network calls.
package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/prospect-enricher/internal/config"
)

// Rejection reasons recorded on not_viable prospects.
const (
	ReasonInvalid     = "Invalid domain"
	ReasonGovernment  = "Government domain"
	ReasonEducational = "Educational institution domain"
	ReasonMilitary    = "Military domain"
)

var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Verdict is the outcome of validating one domain.
type Verdict struct {
	Domain   string `json:"domain"`
	TLD      string `json:"tld"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Validator classifies domains using configurable label tables.
type Validator struct {
	gov  map[string]bool
	edu  map[string]bool
	mil  map[string]bool
	usCC map[string]bool
}

// NewValidator builds a Validator from tables. A nil tables value uses the defaults.
func NewValidator(t *config.Tables) *Validator {
	if t == nil {
		t = config.DefaultTables()
	}
	return &Validator{
		gov:  toSet(t.GovernmentLabels),
		edu:  toSet(t.EducationLabels),
		mil:  toSet(t.MilitaryLabels),
		usCC: toSet(t.USPlausibleCCTLDs),
	}
}

// Normalize strips scheme, credentials, "www.", port, path, query and
// fragment from raw and lowercases the remaining host.
func Normalize(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "//")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// Validate normalizes raw and classifies it.
func (v *Validator) Validate(raw string) Verdict {
	d := Normalize(raw)
	verdict := Verdict{Domain: d}

	labels := strings.Split(d, ".")
	if d == "" || len(labels) < 2 {
		verdict.Reason = ReasonInvalid
		return verdict
	}
	for _, l := range labels {
		if len(l) > 63 || !labelRe.MatchString(l) {
			verdict.Reason = ReasonInvalid
			return verdict
		}
	}

	tld := labels[len(labels)-1]
	verdict.TLD = tld
	if len(tld) < 2 || (!strings.HasPrefix(tld, "xn--") && strings.ContainsAny(tld, "0123456789-")) {
		verdict.Reason = ReasonInvalid
		return verdict
	}

	switch {
	case v.matches(labels, v.gov):
		verdict.Reason = ReasonGovernment
	case v.matches(labels, v.edu):
		verdict.Reason = ReasonEducational
	case v.matches(labels, v.mil):
		verdict.Reason = ReasonMilitary
	case len(tld) == 2 && !v.usCC[tld]:
		verdict.Reason = fmt.Sprintf("Non-US country code TLD (.%s)", tld)
	default:
		verdict.Eligible = true
	}
	return verdict
}

// matches reports whether the TLD is in set, or, under a two-letter
// country code, whether any inner label is (gov.uk, ox.ac.uk, k12.ca.us).
func (v *Validator) matches(labels []string, set map[string]bool) bool {
	tld := labels[len(labels)-1]
	if len(tld) > 2 {
		return set[tld]
	}
	for _, l := range labels[1 : len(labels)-1] {
		if set[l] {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[strings.ToLower(strings.TrimPrefix(it, "."))] = true
	}
	return m
}
