package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/config"
)

func newTestLocal() *LocalScraper {
	return NewLocalScraper("", NewLinkExtractor(config.DefaultTables().SocialHosts))
}

func TestLocalScraper_CleanHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "ProspectEnricher")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Acme Corp</title></head>
<body><h1>Welcome</h1><p>We build great products.</p>
<a href="https://facebook.com/acme">fb</a></body></html>`))
	}))
	defer srv.Close()

	result, err := newTestLocal().Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, result.Source)
	assert.Equal(t, "Acme Corp", result.Page.Title)
	assert.Equal(t, 200, result.Page.StatusCode)
	assert.Contains(t, result.Page.Text, "great products")
	assert.NotEmpty(t, result.Page.HTML)
	assert.Equal(t, []string{"https://facebook.com/acme"}, result.Page.Links.Social)
}

func TestLocalScraper_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
	}))
	defer srv.Close()

	_, err := newTestLocal().Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestLocalScraper_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><script>x()</script></head><body></body></html>`))
	}))
	defer srv.Close()

	_, err := newTestLocal().Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLocalScraper_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<html><body>Not found</body></html>`))
	}))
	defer srv.Close()

	_, err := newTestLocal().Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLocalScraper_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact-us", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/contact-us", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Reach us at hello@acme.com</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := newTestLocal().Scrape(context.Background(), srv.URL+"/contact")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/contact-us", result.Page.URL)
	assert.Contains(t, result.Page.Text, "hello@acme.com")
}
