package icebreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

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

func TestGenerate(t *testing.T) {
	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Grounded && r.Phase == "icebreaker"
	})).Return(&llm.Response{
		Text: `Icebreaker: "Congrats on the Best of Springfield award for HVAC [1]. Curious how many of the homeowners who found you that way left the site without calling."`,
	}, nil)

	text, err := NewGenerator(m).Generate(context.Background(), Input{Domain: "acme-hvac.com", CompanyName: "Acme HVAC"})
	require.NoError(t, err)
	assert.Equal(t, "Congrats on the Best of Springfield award for HVAC. Curious how many of the homeowners who found you that way left the site without calling.", text)
}

func TestGenerate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"greeting", "Hi there, saw your new location opened."},
		{"placeholder", "Loved the [recent award] you won."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockLLM{}
			m.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Text: tt.text}, nil)
			_, err := NewGenerator(m).Generate(context.Background(), Input{Domain: "acme.com"})
			assert.ErrorIs(t, err, ErrUnusable)
		})
	}
}

func TestGenerate_CallFails(t *testing.T) {
	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return(nil, &llm.StatusError{Code: 503, Err: errors.New("unavailable")})

	_, err := NewGenerator(m).Generate(context.Background(), Input{Domain: "acme.com"})
	require.Error(t, err)
	assert.Equal(t, 503, llm.StatusCode(err))
}

func TestClean(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Saw the patio expansion.", Clean("  “Saw the   patio expansion.”  "))
	assert.Equal(t, "Nice write-up in the Tribune.", Clean("Opener: Nice write-up in the Tribune.[2]"))
}
