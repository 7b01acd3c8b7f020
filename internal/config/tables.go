package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tables holds the classification and exclusion lists used by the pipeline.
// Every field can be replaced from a YAML file; omitted fields keep their defaults.
type Tables struct {
	// IndustryKeywords maps a taxonomy slug to evidence keywords.
	IndustryKeywords map[string][]string `yaml:"industry_keywords"`
	// IndustryOrder fixes the order classification categories are tried in.
	IndustryOrder []string `yaml:"industry_order"`

	// ExcludedEmailSuffixes are email domain suffixes never persisted.
	ExcludedEmailSuffixes []string `yaml:"excluded_email_suffixes"`
	// ExcludedLocalParts are substrings of local parts never persisted.
	ExcludedLocalParts []string `yaml:"excluded_local_parts"`
	// NoReplyLocalParts mark automated senders the extractor drops.
	NoReplyLocalParts []string `yaml:"no_reply_local_parts"`

	// GovernmentLabels, EducationLabels and MilitaryLabels are domain labels
	// that reject a domain when found as the TLD or second-level label.
	GovernmentLabels []string `yaml:"government_labels"`
	EducationLabels  []string `yaml:"education_labels"`
	MilitaryLabels   []string `yaml:"military_labels"`
	// USPlausibleCCTLDs are two-letter TLDs commonly used by US businesses.
	USPlausibleCCTLDs []string `yaml:"us_plausible_cctlds"`

	// SocialHosts maps a platform name to its hostnames, in preference order.
	SocialHosts []SocialHost `yaml:"social_hosts"`
	// LowValueDomains are excluded from general web search queries.
	LowValueDomains []string `yaml:"low_value_domains"`
}

// SocialHost is one social platform and the hosts that identify it.
type SocialHost struct {
	Platform string   `yaml:"platform"`
	Hosts    []string `yaml:"hosts"`
	// AboutPath is appended to a profile URL to reach its about subpage.
	AboutPath string `yaml:"about_path"`
}

// DefaultTables returns the compiled-in tables.
func DefaultTables() *Tables {
	return &Tables{
		IndustryKeywords: map[string][]string{
			"hvac":        {"hvac", "heating", "air conditioning", "furnace", "heat pump", "ductwork"},
			"plumbing":    {"plumbing", "plumber", "drain", "water heater", "sewer", "pipe repair"},
			"roofing":     {"roofing", "roofer", "shingle", "roof repair", "gutter"},
			"electrical":  {"electrician", "electrical", "wiring", "panel upgrade", "generator"},
			"automotive":  {"auto repair", "automotive", "mechanic", "collision", "dealership", "oil change", "tires"},
			"legal":       {"law firm", "attorney", "lawyer", "legal services", "litigation"},
			"medical":     {"clinic", "dental", "dentist", "medical", "physician", "chiropractic", "patients"},
			"real-estate": {"real estate", "realtor", "homes for sale", "property management", "brokerage"},
			"restaurant":  {"restaurant", "menu", "catering", "dine", "reservations", "cafe"},
			"retail":      {"shop now", "store", "boutique", "retail", "add to cart", "shopping"},
		},
		IndustryOrder: []string{
			"hvac", "plumbing", "roofing", "electrical", "automotive",
			"legal", "medical", "real-estate", "restaurant", "retail",
		},
		ExcludedEmailSuffixes: []string{".gov", ".edu", ".mil"},
		ExcludedLocalParts: []string{
			"legal", "compliance", "attorney", "lawyer", "counsel",
			"dmca", "copyright", "privacy", "abuse", "gdpr",
		},
		NoReplyLocalParts: []string{"noreply", "no-reply", "donotreply", "do-not-reply", "mailer-daemon", "bounce"},
		GovernmentLabels:  []string{"gov"},
		EducationLabels:   []string{"edu", "ac", "k12"},
		MilitaryLabels:    []string{"mil"},
		USPlausibleCCTLDs: []string{
			"us", "co", "io", "ai", "me", "tv", "ly", "fm", "am", "gg", "so", "to", "sh", "cc", "ws",
		},
		SocialHosts: []SocialHost{
			{Platform: "facebook", Hosts: []string{"facebook.com", "fb.com", "m.facebook.com"}, AboutPath: "/about"},
			{Platform: "linkedin", Hosts: []string{"linkedin.com"}, AboutPath: "/about/"},
			{Platform: "instagram", Hosts: []string{"instagram.com"}},
			{Platform: "twitter", Hosts: []string{"twitter.com", "x.com"}},
			{Platform: "youtube", Hosts: []string{"youtube.com"}},
			{Platform: "yelp", Hosts: []string{"yelp.com"}},
		},
		LowValueDomains: []string{
			"facebook.com", "linkedin.com", "yelp.com", "yellowpages.com",
			"bbb.org", "indeed.com", "glassdoor.com", "zoominfo.com",
		},
	}
}

// LoadTables returns the default tables, overridden by the YAML file at path
// when path is non-empty.
func LoadTables(path string) (*Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read tables %s", path)
	}

	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "config: parse tables %s", path)
	}
	t.merge(&override)
	return t, nil
}

func (t *Tables) merge(o *Tables) {
	if len(o.IndustryKeywords) > 0 {
		t.IndustryKeywords = o.IndustryKeywords
	}
	if len(o.IndustryOrder) > 0 {
		t.IndustryOrder = o.IndustryOrder
	}
	if len(o.ExcludedEmailSuffixes) > 0 {
		t.ExcludedEmailSuffixes = o.ExcludedEmailSuffixes
	}
	if len(o.ExcludedLocalParts) > 0 {
		t.ExcludedLocalParts = o.ExcludedLocalParts
	}
	if len(o.NoReplyLocalParts) > 0 {
		t.NoReplyLocalParts = o.NoReplyLocalParts
	}
	if len(o.GovernmentLabels) > 0 {
		t.GovernmentLabels = o.GovernmentLabels
	}
	if len(o.EducationLabels) > 0 {
		t.EducationLabels = o.EducationLabels
	}
	if len(o.MilitaryLabels) > 0 {
		t.MilitaryLabels = o.MilitaryLabels
	}
	if len(o.USPlausibleCCTLDs) > 0 {
		t.USPlausibleCCTLDs = o.USPlausibleCCTLDs
	}
	if len(o.SocialHosts) > 0 {
		t.SocialHosts = o.SocialHosts
	}
	if len(o.LowValueDomains) > 0 {
		t.LowValueDomains = o.LowValueDomains
	}
}
