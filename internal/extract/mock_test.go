package extract

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospect-enricher/internal/llm"
)

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

type mockRDAP struct{ mock.Mock }

func (m *mockRDAP) ContactEmails(ctx context.Context, domain string) ([]string, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// scriptedSearch answers queries by substring and tracks peak concurrency.
type scriptedSearch struct {
	answers map[string]string
	hold    time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	times []time.Time
}

func (s *scriptedSearch) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
	time.Sleep(s.hold)

	for key, ans := range s.answers {
		if strings.Contains(req.Prompt, key) {
			return &llm.Response{Text: ans}, nil
		}
	}
	return &llm.Response{Text: "[]"}, nil
}
