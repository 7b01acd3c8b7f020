package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/pkg/gemini"
)

// Gemini adapts the Gemini API with Google Search grounding.
type Gemini struct {
	client gemini.Client
	model  string
}

// NewGemini creates a Gemini-backed Client.
func NewGemini(client gemini.Client, model string) *Gemini {
	return &Gemini{client: client, model: model}
}

func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.client.Generate(ctx, gemini.Request{
		System:    req.System,
		Prompt:    req.Prompt,
		Search:    req.Grounded,
		JSON:      req.JSON,
		MaxTokens: int32(req.MaxTokens),
	})
	if err != nil {
		return nil, &StatusError{Provider: "gemini", Code: gemini.StatusCode(err), Err: err}
	}
	zap.L().Debug("gemini: completion",
		zap.String("phase", req.Phase),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Int("sources", len(resp.Sources)),
	)

	return &Response{
		Text:         resp.Text,
		Model:        g.model,
		Sources:      resp.Sources,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
