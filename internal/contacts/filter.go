// Package contacts filters, caps and persists extracted contacts.
package contacts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/model"
)

// DefaultCap is the per-prospect contact limit when none is configured.
const DefaultCap = 25

var (
	emailRe     = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	emailScanRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
)

// ValidEmail reports whether s is a syntactically usable address.
func ValidEmail(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if !emailRe.MatchString(s) {
		return false
	}
	at := strings.LastIndex(s, "@")
	host := s[at+1:]
	return !strings.HasPrefix(host, ".") && !strings.Contains(host, "..") && !strings.HasPrefix(s, ".")
}

// FindEmails scans free text for addresses, lowercased and deduplicated in
// order of appearance.
func FindEmails(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range emailScanRe.FindAllString(text, -1) {
		m = strings.ToLower(strings.TrimRight(m, "."))
		if seen[m] || !ValidEmail(m) || imageSuffix(m) {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// imageSuffix catches retina asset names like logo@2x.png.
func imageSuffix(s string) bool {
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"} {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// Reason names why a contact was dropped.
type Reason string

const (
	ReasonNoEmail        Reason = "no email"
	ReasonInvalidEmail   Reason = "invalid email"
	ReasonExcludedDomain Reason = "excluded domain"
	ReasonExcludedRole   Reason = "excluded role"
	ReasonDuplicate      Reason = "duplicate"
)

// Rules are the exclusion tables applied before persistence.
type Rules struct {
	ExcludedSuffixes   []string
	ExcludedLocalParts []string
}

// RulesFromTables builds Rules from configuration tables.
func RulesFromTables(t *config.Tables) Rules {
	if t == nil {
		t = config.DefaultTables()
	}
	return Rules{ExcludedSuffixes: t.ExcludedEmailSuffixes, ExcludedLocalParts: t.ExcludedLocalParts}
}

// Filtered is the outcome of Filter.
type Filtered struct {
	Kept    []model.Contact
	Dropped map[Reason]int
}

// Summary describes what was dropped, for audit notes.
func (f Filtered) Summary() string {
	if len(f.Dropped) == 0 {
		return ""
	}
	var parts []string
	for _, r := range []Reason{ReasonNoEmail, ReasonInvalidEmail, ReasonExcludedDomain, ReasonExcludedRole, ReasonDuplicate} {
		if n := f.Dropped[r]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, r))
		}
	}
	return strings.Join(parts, ", ")
}

// Filter drops contacts that must never be persisted. Order is preserved.
func Filter(raw []model.Contact, rules Rules) Filtered {
	out := Filtered{Dropped: make(map[Reason]int)}
	seen := make(map[string]bool, len(raw))
	for _, c := range raw {
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		reason := rules.check(c, seen)
		if reason != "" {
			out.Dropped[reason]++
			continue
		}
		seen[c.Email] = true
		out.Kept = append(out.Kept, c)
	}
	return out
}

func (r Rules) check(c model.Contact, seen map[string]bool) Reason {
	if c.Email == "" {
		return ReasonNoEmail
	}
	if !ValidEmail(c.Email) {
		return ReasonInvalidEmail
	}
	domain := c.EmailDomain()
	for _, suffix := range r.ExcludedSuffixes {
		suffix = strings.ToLower(suffix)
		if strings.HasSuffix(domain, suffix) || strings.Contains(domain, suffix+".") {
			return ReasonExcludedDomain
		}
	}
	if r.excludedLocal(c.EmailLocal()) {
		return ReasonExcludedRole
	}
	if seen[c.Email] {
		return ReasonDuplicate
	}
	return ""
}

// excludedLocal matches a role word as the whole local part, its prefix, or
// any dot/dash/underscore/plus separated token.
func (r Rules) excludedLocal(local string) bool {
	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == '+'
	})
	for _, p := range r.ExcludedLocalParts {
		p = strings.ToLower(p)
		if strings.HasPrefix(local, p) {
			return true
		}
		for _, tok := range tokens {
			if tok == p {
				return true
			}
		}
	}
	return false
}

// Truncate keeps the first limit contacts. When found exceeds what is kept,
// the last kept record's note records the true count.
func Truncate(list []model.Contact, limit, found int) []model.Contact {
	if limit <= 0 {
		limit = DefaultCap
	}
	if len(list) > limit {
		list = list[:limit]
	}
	if found > len(list) && len(list) > 0 {
		last := &list[len(list)-1]
		note := fmt.Sprintf("Showing %d of %d contacts found", len(list), found)
		if last.Notes != "" {
			last.Notes += " | " + note
		} else {
			last.Notes = note
		}
	}
	return list
}
