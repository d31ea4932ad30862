package extract

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/config"
	"github.com/sells-group/gri-cli/internal/cost"
	"github.com/sells-group/gri-cli/internal/resilience"
	"github.com/sells-group/gri-cli/pkg/anthropic"
	"github.com/sells-group/gri-cli/pkg/gemini"
)

// NewFromConfig builds the configured provider wrapped in its resilience policy.
// provider overrides extraction.provider when non-empty.
func NewFromConfig(ctx context.Context, cfg *config.Config, provider string) (Client, error) {
	if provider == "" {
		provider = cfg.Extraction.Provider
	}

	costs := cost.Default()
	var base Client
	switch provider {
	case ProviderAnthropic:
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("extract: anthropic key is not configured")
		}
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		base = NewAnthropicClient(
			anthropic.NewClient(cfg.Anthropic.Key, opts...),
			cfg.Anthropic.Model,
			int64(cfg.Anthropic.MaxTokens),
			costs,
		)
	case ProviderGemini:
		gc, err := gemini.NewClient(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "extract: gemini client")
		}
		base = NewGeminiClient(gc, cfg.Gemini.Model, int32(cfg.Gemini.MaxTokens), costs)
	default:
		return nil, eris.Errorf("extract: unknown provider %q", provider)
	}

	policy := resilience.NewPolicy(provider, PolicyConfig(cfg.Extraction), TripsBreaker)
	return NewResilient(base, provider, policy), nil
}

// PolicyConfig maps extraction settings onto a resilience policy.
func PolicyConfig(ec config.ExtractionConfig) resilience.PolicyConfig {
	return resilience.PolicyConfig{
		MaxAttempts:       ec.MaxAttempts,
		TimeoutSecs:       ec.TimeoutSecs,
		InitialBackoffMs:  ec.InitialBackoffMs,
		MaxBackoffMs:      ec.MaxBackoffMs,
		RequestsPerMinute: ec.RequestsPerMinute,
		FailureThreshold:  ec.CircuitFailureThreshold,
		ResetTimeoutSecs:  ec.CircuitResetSecs,
	}
}
