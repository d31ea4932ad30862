// Package cost estimates the USD cost of model calls from token counts.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Default returns a Calculator over DefaultRates.
func Default() *Calculator {
	return NewCalculator(DefaultRates())
}

// Claude computes the cost for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Gemini computes the cost for a Gemini API call. prompt includes cached
// tokens, which are billed at the cache-read rate. Unknown models cost 0.
func (c *Calculator) Gemini(model string, prompt, candidates, cached int) float64 {
	rate, ok := c.rates.Gemini[model]
	if !ok {
		return 0
	}

	uncached := max(prompt-cached, 0)
	return (float64(uncached)/1e6)*rate.Input +
		(float64(cached)/1e6)*rate.Input*rate.CacheReadMul +
		(float64(candidates)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	claude := func(in, out float64) ModelRate {
		return ModelRate{Input: in, Output: out, CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	gemini := func(in, out float64) ModelRate {
		return ModelRate{Input: in, Output: out, CacheReadMul: 0.25}
	}
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  claude(1.00, 5.00),
			"claude-haiku-4-5":           claude(1.00, 5.00),
			"claude-sonnet-4-5-20250929": claude(3.00, 15.00),
			"claude-sonnet-4-5":          claude(3.00, 15.00),
			"claude-opus-4-1":            claude(15.00, 75.00),
		},
		Gemini: map[string]ModelRate{
			"gemini-1.5-flash": gemini(0.075, 0.30),
			"gemini-2.0-flash": gemini(0.10, 0.40),
			"gemini-2.5-flash": gemini(0.30, 2.50),
			"gemini-2.5-pro":   gemini(1.25, 10.00),
		},
	}
}
