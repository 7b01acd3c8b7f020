package llm

import (
	"context"

	"github.com/sells-group/prospect-enricher/pkg/anthropic"
)

// Anthropic adapts the Anthropic Messages API. It has no web search, so
// Grounded requests are answered from the prompt alone.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic-backed Client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := a.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	temp := 0.0
	mr := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}
	if req.System != "" {
		mr.System = anthropic.CachedSystem(req.System)
	}

	resp, err := a.client.CreateMessage(ctx, mr)
	if err != nil {
		return nil, &StatusError{Provider: "anthropic", Code: anthropic.StatusCode(err), Err: err}
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}
	return &Response{
		Text:         resp.Text(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
