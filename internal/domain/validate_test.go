package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-enricher/internal/config"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme-hvac.com", "acme-hvac.com"},
		{"  HTTPS://www.Acme-HVAC.com/contact?x=1 ", "acme-hvac.com"},
		{"http://acme.com:8080/about", "acme.com"},
		{"//cdn.acme.com/", "cdn.acme.com"},
		{"acme.com.", "acme.com"},
		{"user@mail.acme.com", "mail.acme.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestValidate(t *testing.T) {
	v := NewValidator(nil)

	tests := []struct {
		in       string
		eligible bool
		tld      string
		reason   string
	}{
		{"acme-hvac.com", true, "com", ""},
		{"https://www.joes-plumbing.net/contact", true, "net", ""},
		{"startup.io", true, "io", ""},
		{"deadsite.example", true, "example", ""},
		{"shop.us", true, "us", ""},
		{"irs.gov", false, "gov", ReasonGovernment},
		{"hmrc.gov.uk", false, "uk", ReasonGovernment},
		{"mit.edu", false, "edu", ReasonEducational},
		{"ox.ac.uk", false, "uk", ReasonEducational},
		{"army.mil", false, "mil", ReasonMilitary},
		{"bakery.de", false, "de", "Non-US country code TLD (.de)"},
		{"widgets.co.uk", false, "uk", "Non-US country code TLD (.uk)"},
		{"localhost", false, "", ReasonInvalid},
		{"bad_domain.com", false, "", ReasonInvalid},
		{"-acme.com", false, "", ReasonInvalid},
		{"acme.c0m", false, "c0m", ReasonInvalid},
		{"", false, "", ReasonInvalid},
	}
	for _, tt := range tests {
		got := v.Validate(tt.in)
		assert.Equal(t, tt.eligible, got.Eligible, tt.in)
		assert.Equal(t, tt.tld, got.TLD, tt.in)
		assert.Equal(t, tt.reason, got.Reason, tt.in)
	}
}

func TestValidate_EducationalReasonWording(t *testing.T) {
	got := NewValidator(nil).Validate("state-university.edu")
	assert.False(t, got.Eligible)
	assert.Contains(t, strings.ToLower(got.Reason), "educational")
}

func TestValidate_CustomTables(t *testing.T) {
	tables := config.DefaultTables()
	tables.USPlausibleCCTLDs = append(tables.USPlausibleCCTLDs, "ca")
	v := NewValidator(tables)

	assert.True(t, v.Validate("maple-roofing.ca").Eligible)
	assert.False(t, v.Validate("maple-roofing.mx").Eligible)
}
