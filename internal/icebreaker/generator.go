// Package icebreaker writes the short researched opener used in outreach.
package icebreaker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/llm"
)

// ErrUnusable is returned when the model's opener fails the output checks.
var ErrUnusable = eris.New("icebreaker: unusable output")

// maxContextChars bounds the site excerpt sent with the prompt.
const maxContextChars = 4000

// Input is the research context for one company.
type Input struct {
	Domain      string
	CompanyName string
	WebsiteText string
}

// Generator produces icebreakers through a search-grounded model.
type Generator struct {
	client llm.Client
}

// NewGenerator creates a Generator.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

const system = `You write cold outreach openers for a website visitor identification product.
Research the company with web search. Find ONE concrete, specific, non-generic fact about it:
a press mention, a standout review, an expansion or new location, an award, or community involvement.
Write 1-2 casual sentences that lead with that fact and pivot naturally to a soft mention of
anonymous website traffic or missed leads.
Rules: no greeting (no "Hi", "Hello", "Hey"), no salesy opener, no exclamation marks, no placeholders,
no quotes around the text. Output only the opener.`

// Generate returns a cleaned opener, or an error when the call fails or the
// text is unusable.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	excerpt := in.WebsiteText
	if len(excerpt) > maxContextChars {
		excerpt = excerpt[:maxContextChars]
	}
	prompt := fmt.Sprintf("Company: %s\nWebsite: %s\n\nSite excerpt:\n%s", in.CompanyName, in.Domain, excerpt)

	resp, err := g.client.Complete(ctx, llm.Request{
		Phase:     "icebreaker",
		System:    system,
		Prompt:    prompt,
		Grounded:  true,
		MaxTokens: 300,
	})
	if err != nil {
		return "", eris.Wrapf(err, "icebreaker: generate for %s", in.Domain)
	}

	text := Clean(resp.Text)
	if err := check(text); err != nil {
		return "", eris.Wrapf(err, "icebreaker: %s", in.Domain)
	}
	return text, nil
}

var (
	labelRe    = regexp.MustCompile(`(?i)^(icebreaker|opener|opening line|message)\s*:\s*`)
	citationRe = regexp.MustCompile(`\[\d+\]`)
	spaceRe    = regexp.MustCompile(`\s+`)
	greetingRe = regexp.MustCompile(`(?i)^(hi|hello|hey|dear|greetings|good (morning|afternoon|evening))\b`)
)

// Clean strips labels, wrapping quotes and citation markers.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = labelRe.ReplaceAllString(s, "")
	s = citationRe.ReplaceAllString(s, "")
	s = strings.Trim(s, "\"'“”‘’ ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func check(text string) error {
	switch {
	case text == "":
		return eris.Wrap(ErrUnusable, "empty")
	case greetingRe.MatchString(text):
		return eris.Wrap(ErrUnusable, "starts with a greeting")
	case strings.Contains(text, "[") || strings.Contains(text, "{{"):
		return eris.Wrap(ErrUnusable, "contains a placeholder")
	case len(text) > 600:
		return eris.Wrap(ErrUnusable, "too long")
	}
	return nil
}
