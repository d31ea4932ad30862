package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/cost"
	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/resilience"
	"github.com/sells-group/gri-cli/pkg/anthropic"
)

// AnthropicClient extracts candidates with Claude.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	costs     *cost.Calculator
}

// NewAnthropicClient wraps an Anthropic SDK client. A nil calculator uses
// the default price table.
func NewAnthropicClient(client anthropic.Client, model string, maxTokens int64, costs *cost.Calculator) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if costs == nil {
		costs = cost.Default()
	}
	return &AnthropicClient{client: client, model: model, maxTokens: maxTokens, costs: costs}
}

// Extract implements Client.
func (c *AnthropicClient) Extract(ctx context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*Response, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(SystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(chunk, fields)}},
		Temperature: &temp,
	})
	if err != nil {
		if code, ok := anthropic.StatusCode(err); ok && resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}

	usage := model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
	}
	usage.Cost = c.costs.Claude(c.model, usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)
	logCost(ProviderAnthropic, c.model, chunk.ID, usage)

	candidates, err := ParseResponse(resp.Text())
	if err != nil {
		return &Response{Usage: usage}, eris.Wrapf(err, "anthropic: %s", chunk.ID)
	}
	return &Response{Candidates: candidates, Usage: usage}, nil
}
