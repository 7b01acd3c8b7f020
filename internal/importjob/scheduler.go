package importjob

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

// Scheduler arranges for the next chunk of an import job to run.
type Scheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// NoopScheduler schedules nothing. Drivers that loop over Resume themselves
// (the CLI loop and the Temporal workflow) use it.
type NoopScheduler struct{}

// Schedule implements Scheduler.
func (NoopScheduler) Schedule(context.Context, string) error { return nil }

// HTTPScheduler re-invokes the import endpoint with the job id. The request
// is fire-and-forget: Schedule waits only long enough to see the request
// rejected or the connection refused, then leaves it running in the
// background.
type HTTPScheduler struct {
	url   string
	token string
	http  *http.Client
	// settle is how long Schedule waits for an early failure.
	settle time.Duration
}

// HTTPSchedulerOption configures an HTTPScheduler.
type HTTPSchedulerOption func(*HTTPScheduler)

// WithSchedulerClient overrides the http.Client used for continuations.
func WithSchedulerClient(hc *http.Client) HTTPSchedulerOption {
	return func(s *HTTPScheduler) { s.http = hc }
}

// WithSettle overrides how long Schedule waits for an early failure.
func WithSettle(d time.Duration) HTTPSchedulerOption {
	return func(s *HTTPScheduler) { s.settle = d }
}

// NewHTTPScheduler creates a scheduler posting {"jobId": id} to url.
func NewHTTPScheduler(url, token string, opts ...HTTPSchedulerOption) *HTTPScheduler {
	s := &HTTPScheduler{
		url:    url,
		token:  token,
		http:   &http.Client{Timeout: 5 * time.Minute},
		settle: 2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule implements Scheduler.
func (s *HTTPScheduler) Schedule(ctx context.Context, jobID string) error {
	body, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return eris.Wrap(err, "importjob: marshal continuation")
	}
	// The continuation outlives this invocation.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "importjob: create continuation request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	errCh := make(chan error, 1)
	go func() {
		resp, err := s.http.Do(req)
		if err != nil {
			errCh <- eris.Wrapf(err, "importjob: post continuation for %s", jobID)
			return
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= 400 {
			err := eris.Errorf("importjob: continuation for %s rejected with status %d", jobID, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				err = resilience.NewTransientError(err, resp.StatusCode)
			}
			errCh <- err
			return
		}
		errCh <- nil
	}()

	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		zap.L().Debug("importjob: continuation dispatched", zap.String("job_id", jobID))
		return nil
	}
}
