package extract

import (
	"strings"

	"github.com/sells-group/prospect-enricher/internal/config"
)

// IndustryOther is the fallback classification.
const IndustryOther = "other"

// Classifier maps page text to the industry taxonomy by keyword evidence.
type Classifier struct {
	keywords map[string][]string
	order    []string
}

// NewClassifier creates a Classifier from tables. A nil tables value uses the
// defaults.
func NewClassifier(t *config.Tables) *Classifier {
	if t == nil {
		t = config.DefaultTables()
	}
	return &Classifier{keywords: t.IndustryKeywords, order: t.IndustryOrder}
}

// Known reports whether slug is in the taxonomy.
func (c *Classifier) Known(slug string) bool {
	if slug == IndustryOther {
		return true
	}
	_, ok := c.keywords[slug]
	return ok
}

// Normalize maps a model-supplied label onto the taxonomy, or "" when it
// does not fit.
func (c *Classifier) Normalize(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	switch s {
	case "realestate", "real-estate-agency", "realty":
		s = "real-estate"
	case "restaurants", "food", "dining":
		s = "restaurant"
	case "auto", "auto-repair":
		s = "automotive"
	case "heating-and-cooling", "hvac-services":
		s = "hvac"
	}
	if c.Known(s) {
		return s
	}
	return ""
}

// Classify returns the category with the most keyword hits in text. Ties go
// to the category listed first; no hits yields "other".
func (c *Classifier) Classify(text string) string {
	lower := strings.ToLower(text)
	best, bestHits := IndustryOther, 0
	for _, slug := range c.order {
		hits := 0
		for _, kw := range c.keywords[slug] {
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			best, bestHits = slug, hits
		}
	}
	return best
}
