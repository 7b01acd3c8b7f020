package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

func TestScrape_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://acme-hvac.com/contact", req.URL)
		assert.Equal(t, []string{"markdown", "links"}, req.Formats)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": "# Contact\n\nEmail info@acme-hvac.com",
				"links":    []string{"mailto:info@acme-hvac.com", "https://facebook.com/acmehvac"},
				"metadata": map[string]any{
					"title":      "Contact Acme HVAC",
					"sourceURL":  "https://acme-hvac.com/contact",
					"statusCode": 200,
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("fc-key", WithBaseURL(srv.URL))
	got, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://acme-hvac.com/contact"})
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Contains(t, got.Data.Markdown, "info@acme-hvac.com")
	assert.Equal(t, "Contact Acme HVAC", got.Data.Metadata.Title)
	assert.Equal(t, 200, got.Data.Metadata.StatusCode)
	assert.Len(t, got.Data.Links, 2)
}

func TestScrape_RateLimitedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := NewClient("fc-key", WithBaseURL(srv.URL)).Scrape(context.Background(), ScrapeRequest{URL: "https://a.com"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestScrape_PaymentRequiredIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient credits"}`))
	}))
	defer srv.Close()

	_, err := NewClient("fc-key", WithBaseURL(srv.URL)).Scrape(context.Background(), ScrapeRequest{URL: "https://a.com"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "insufficient credits")
}

func TestScrape_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient("fc-key", WithBaseURL(srv.URL)).Scrape(context.Background(), ScrapeRequest{URL: "https://a.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestWithBaseURL_EmptyKeepsDefault(t *testing.T) {
	t.Parallel()
	c := NewClient("k", WithBaseURL("")).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
}
