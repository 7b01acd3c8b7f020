package rdap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

const sampleRDAP = `{
  "objectClassName": "domain",
  "ldhName": "acme-hvac.com",
  "entities": [
    {
      "roles": ["registrar"],
      "vcardArray": ["vcard", [["version", {}, "text", "4.0"], ["email", {}, "text", "support@registrar.example"]]],
      "entities": [
        {"roles": ["abuse"], "vcardArray": ["vcard", [["email", {}, "text", "abuse@registrar.example"]]]}
      ]
    },
    {
      "roles": ["registrant"],
      "vcardArray": ["vcard", [["version", {}, "text", "4.0"], ["fn", {}, "text", "Acme HVAC LLC"], ["email", {}, "text", "Owner@Acme-HVAC.com"]]]
    },
    {
      "roles": ["technical", "administrative"],
      "vcardArray": ["vcard", [["email", {}, "text", "owner@acme-hvac.com"], ["email", {}, "text", "REDACTED FOR PRIVACY"]]]
    }
  ]
}`

func TestContactEmails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domain/acme-hvac.com", r.URL.Path)
		w.Header().Set("Content-Type", "application/rdap+json")
		_, _ = w.Write([]byte(sampleRDAP))
	}))
	defer srv.Close()

	emails, err := NewClient(WithBaseURL(srv.URL)).ContactEmails(context.Background(), "acme-hvac.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner@acme-hvac.com"}, emails)
}

func TestContactEmails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	emails, err := NewClient(WithBaseURL(srv.URL)).ContactEmails(context.Background(), "nowhere.com")
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestContactEmails_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).ContactEmails(context.Background(), "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, resilience.IsTransient(err), "5xx is retryable")
}

func TestContactEmails_BadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).ContactEmails(context.Background(), "acme.com")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
