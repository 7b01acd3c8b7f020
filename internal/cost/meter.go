package cost

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/llm"
)

// Usage accumulates calls, tokens and spend.
type Usage struct {
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

func (u *Usage) add(o Usage) {
	u.Calls += o.Calls
	u.Failures += o.Failures
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.USD += o.USD
}

// Ledger totals usage per pipeline phase. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	byPhase map[string]Usage
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{byPhase: make(map[string]Usage)}
}

func (l *Ledger) add(phase string, u Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.byPhase[phase]
	cur.add(u)
	l.byPhase[phase] = cur
}

// Snapshot returns a copy of the per-phase totals.
func (l *Ledger) Snapshot() map[string]Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Usage, len(l.byPhase))
	for k, v := range l.byPhase {
		out[k] = v
	}
	return out
}

// Total sums every phase.
func (l *Ledger) Total() Usage {
	var t Usage
	for _, u := range l.Snapshot() {
		t.add(u)
	}
	return t
}

// Log writes one line per phase, sorted by phase name.
func (l *Ledger) Log() {
	snap := l.Snapshot()
	phases := make([]string, 0, len(snap))
	for p := range snap {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	for _, p := range phases {
		u := snap[p]
		zap.L().Info("llm usage",
			zap.String("phase", p),
			zap.Int("calls", u.Calls),
			zap.Int("failures", u.Failures),
			zap.Int64("input_tokens", u.InputTokens),
			zap.Int64("output_tokens", u.OutputTokens),
			zap.Float64("usd", u.USD),
		)
	}
}

// Meter is an llm.Client that prices and records every call it forwards.
type Meter struct {
	next     llm.Client
	provider string
	calc     *Calculator
	ledger   *Ledger
}

// NewMeter wraps next. provider keys the per-query charge for grounded calls.
func NewMeter(next llm.Client, provider string, calc *Calculator, ledger *Ledger) *Meter {
	return &Meter{next: next, provider: provider, calc: calc, ledger: ledger}
}

// Complete forwards req and records its usage under req.Phase.
func (m *Meter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	phase := req.Phase
	if phase == "" {
		phase = "unlabeled"
	}

	resp, err := m.next.Complete(ctx, req)
	if err != nil {
		m.ledger.add(phase, Usage{Calls: 1, Failures: 1})
		return nil, err
	}

	u := Usage{
		Calls:        1,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		USD:          m.calc.Tokens(resp.Model, resp.InputTokens, resp.OutputTokens),
	}
	if req.Grounded {
		u.USD += m.calc.Query(m.provider)
	}
	m.ledger.add(phase, u)

	zap.L().Debug("llm call",
		zap.String("phase", phase),
		zap.String("provider", m.provider),
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Float64("usd", u.USD),
	)
	return resp, nil
}
