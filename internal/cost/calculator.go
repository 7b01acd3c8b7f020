// Package cost prices LLM calls made during enrichment.
package cost

import "strings"

// Rates holds per-model and per-provider pricing.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
	// PerQuery is a flat charge per grounded (web search) call, by provider.
	PerQuery map[string]float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ModelRate holds token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the token cost of one call. Models are matched exactly,
// then by the longest configured prefix, so dated model names share a rate.
func (c *Calculator) Tokens(model string, input, output int64) float64 {
	rate, ok := c.rate(model)
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Query returns the flat grounded-search charge for provider.
func (c *Calculator) Query(provider string) float64 {
	return c.rates.PerQuery[provider]
}

func (c *Calculator) rate(model string) (ModelRate, bool) {
	if r, ok := c.rates.Models[model]; ok {
		return r, true
	}
	var best string
	for name := range c.rates.Models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates.Models[best], true
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
			"gemini-2.5-flash":  {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":    {Input: 1.25, Output: 10.00},
			"sonar":             {Input: 1.00, Output: 1.00},
			"sonar-pro":         {Input: 3.00, Output: 15.00},
		},
		PerQuery: map[string]float64{
			"gemini":     0.035,
			"perplexity": 0.005,
		},
	}
}
