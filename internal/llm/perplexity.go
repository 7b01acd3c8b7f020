package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/pkg/perplexity"
)

// Perplexity adapts the Perplexity chat API. Every Perplexity answer is
// search-backed, so Grounded needs no extra setup.
type Perplexity struct {
	client perplexity.Client
	// excluded domains are passed as a negative search filter.
	excluded []string
}

// NewPerplexity creates a Perplexity-backed Client. excludedDomains are
// filtered out of web search results.
func NewPerplexity(client perplexity.Client, excludedDomains []string) *Perplexity {
	filter := make([]string, 0, len(excludedDomains))
	for _, d := range excludedDomains {
		filter = append(filter, "-"+d)
	}
	return &Perplexity{client: client, excluded: filter}
}

func (p *Perplexity) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]perplexity.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	cr := perplexity.ChatCompletionRequest{Messages: msgs}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		cr.MaxTokens = &mt
	}
	if req.Grounded && len(p.excluded) > 0 {
		cr.SearchDomainFilter = p.excluded
	}

	resp, err := p.client.ChatCompletion(ctx, cr)
	if err != nil {
		code := 0
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.StatusCode
		}
		return nil, &StatusError{Provider: "perplexity", Code: code, Err: err}
	}
	zap.L().Debug("perplexity: completion",
		zap.String("phase", req.Phase),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &Response{
		Text:         resp.Content(),
		Sources:      resp.Citations,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}
