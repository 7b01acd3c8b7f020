package cost

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/llm"
)

func testRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"haiku":       {Input: 1.00, Output: 5.00},
			"haiku-large": {Input: 2.00, Output: 10.00},
		},
		PerQuery: map[string]float64{"perplexity": 0.005},
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{"exact match", "haiku", 1_000_000, 1_000_000, 6.00},
		{"dated model uses prefix", "haiku-20251001", 500_000, 100_000, 1.00},
		{"longest prefix wins", "haiku-large-v2", 1_000_000, 0, 2.00},
		{"unknown model", "gpt", 1_000_000, 1_000_000, 0},
		{"zero tokens", "haiku", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Tokens(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.005, calc.Query("perplexity"), 1e-9)
	assert.Zero(t, calc.Query("gemini"))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())
	assert.Positive(t, calc.Tokens("claude-haiku-4-5-20251001", 1000, 1000))
	assert.Positive(t, calc.Query("gemini"))
}

type stubClient struct {
	resp *llm.Response
	err  error
}

func (s stubClient) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return s.resp, s.err
}

func TestMeter_RecordsUsagePerPhase(t *testing.T) {
	t.Parallel()
	ledger := NewLedger()
	m := NewMeter(stubClient{resp: &llm.Response{Text: "ok", Model: "haiku", InputTokens: 1_000_000, OutputTokens: 0}},
		"perplexity", NewCalculator(testRates()), ledger)

	resp, err := m.Complete(context.Background(), llm.Request{Phase: "extract"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	_, err = m.Complete(context.Background(), llm.Request{Phase: "search_fallback", Grounded: true})
	require.NoError(t, err)

	snap := ledger.Snapshot()
	assert.Equal(t, 1, snap["extract"].Calls)
	assert.InDelta(t, 1.00, snap["extract"].USD, 1e-9)
	assert.InDelta(t, 1.005, snap["search_fallback"].USD, 1e-9)
	assert.Equal(t, int64(2_000_000), ledger.Total().InputTokens)
}

func TestMeter_CountsFailures(t *testing.T) {
	t.Parallel()
	ledger := NewLedger()
	m := NewMeter(stubClient{err: eris.New("boom")}, "gemini", NewCalculator(testRates()), ledger)

	_, err := m.Complete(context.Background(), llm.Request{})
	require.Error(t, err)

	u := ledger.Snapshot()["unlabeled"]
	assert.Equal(t, 1, u.Calls)
	assert.Equal(t, 1, u.Failures)
	assert.Zero(t, u.USD)
}

func TestLedger_ConcurrentAdds(t *testing.T) {
	t.Parallel()
	ledger := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.add("extract", Usage{Calls: 1, InputTokens: 10})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, ledger.Total().Calls)
	assert.Equal(t, int64(500), ledger.Total().InputTokens)
	ledger.Log()
}
