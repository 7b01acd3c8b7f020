package traffic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

func TestMonthlyVisits(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    int64
		wantErr error
		errText string
	}{
		{name: "success", status: http.StatusOK, body: `{"domain":"acme-hvac.com","monthly_visits":12500,"global_rank":880000}`, want: 12500},
		{name: "not_found", status: http.StatusNotFound, wantErr: ErrNoData},
		{name: "zero_visits", status: http.StatusOK, body: `{"monthly_visits":0}`, wantErr: ErrNoData},
		{name: "server_error", status: http.StatusBadGateway, body: `oops`, errText: "unexpected status 502"},
		{name: "malformed", status: http.StatusOK, body: `{nope`, errText: "unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/domains/acme-hvac.com/traffic", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			est, err := NewClient("test-key", srv.URL).MonthlyVisits(context.Background(), "acme-hvac.com")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, est.MonthlyVisits)
				assert.Equal(t, "acme-hvac.com", est.Domain)
			}
		})
	}
}

func TestMonthlyVisits_TransientStatus(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := NewClient("k", srv.URL).MonthlyVisits(context.Background(), "acme-hvac.com")
		srv.Close()
		require.Error(t, err)
		assert.True(t, resilience.IsTransient(err), "status %d", code)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := NewClient("k", srv.URL).MonthlyVisits(context.Background(), "acme-hvac.com")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestMonthlyVisits_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, WithTimeout(50*time.Millisecond)).MonthlyVisits(context.Background(), "slow.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traffic: lookup slow.com")
}
