package importjob

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

func TestHTTPScheduler_PostsContinuation(t *testing.T) {
	got := make(chan map[string]string, 1)
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body
		auth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPScheduler(srv.URL, "secret")
	require.NoError(t, s.Schedule(context.Background(), "job-1"))

	assert.Equal(t, map[string]string{"jobId": "job-1"}, <-got)
	assert.Equal(t, "Bearer secret", <-auth)
}

func TestHTTPScheduler_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewHTTPScheduler(srv.URL, "").Schedule(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHTTPScheduler_BusyEndpointIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPScheduler(srv.URL, "").Schedule(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestHTTPScheduler_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPScheduler(url, "").Schedule(context.Background(), "job-1")
	assert.Error(t, err)
}

func TestHTTPScheduler_DoesNotWaitForChunk(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	s := NewHTTPScheduler(srv.URL, "", WithSettle(50*time.Millisecond))
	start := time.Now()
	require.NoError(t, s.Schedule(context.Background(), "job-1"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNoopScheduler(t *testing.T) {
	assert.NoError(t, NoopScheduler{}.Schedule(context.Background(), "job-1"))
}
