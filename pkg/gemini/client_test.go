package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Model: "gemini-2.5-flash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")

	_, err = NewClient(context.Background(), Config{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want int
	}{
		{name: "nil", in: nil, want: 0},
		{name: "api_429", in: genai.APIError{Code: 429}, want: 429},
		{name: "api_402_wrapped", in: eris.Wrap(genai.APIError{Code: 402}, "gemini: generate content"), want: 402},
		{name: "pointer", in: &genai.APIError{Code: 500}, want: 500},
		{name: "plain", in: errors.New("boom"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.in))
		})
	}
}

func TestExtractSourcesAndQueries(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://acme-hvac.com/about"}},
					nil,
					{Web: &genai.GroundingChunkWeb{URI: " https://acme-hvac.com/about "}},
					{Web: &genai.GroundingChunkWeb{URI: "https://news.example.com/acme"}},
				},
				WebSearchQueries: []string{"acme hvac award", "acme hvac award", ""},
			},
		}},
	}

	assert.Equal(t, []string{"https://acme-hvac.com/about", "https://news.example.com/acme"}, extractSources(resp))
	assert.Equal(t, []string{"acme hvac award"}, extractWebSearchQueries(resp))
	assert.Nil(t, extractSources(&genai.GenerateContentResponse{}))
	assert.Nil(t, extractWebSearchQueries(nil))
}
