package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/gri-cli/internal/cost"
	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/resilience"
	"github.com/sells-group/gri-cli/pkg/gemini"
)

// candidateSchema constrains Gemini output to the candidate list shape.
var candidateSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"key":            {Type: genai.TypeString},
			"extracted_data": {Type: genai.TypeString},
		},
		Required: []string{"key", "extracted_data"},
	},
}

// GeminiClient extracts candidates with Gemini in JSON mode.
type GeminiClient struct {
	client    gemini.Client
	model     string
	maxTokens int32
	costs     *cost.Calculator
}

// NewGeminiClient wraps a Gemini client. A nil calculator uses the default
// price table.
func NewGeminiClient(client gemini.Client, model string, maxTokens int32, costs *cost.Calculator) *GeminiClient {
	if model == "" {
		model = gemini.DefaultModel
	}
	if costs == nil {
		costs = cost.Default()
	}
	return &GeminiClient{client: client, model: model, maxTokens: maxTokens, costs: costs}
}

// Extract implements Client.
func (c *GeminiClient) Extract(ctx context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*Response, error) {
	resp, err := c.client.GenerateJSON(ctx, gemini.Request{
		Model:           c.model,
		System:          SystemPrompt,
		Prompt:          BuildPrompt(chunk, fields),
		MaxOutputTokens: c.maxTokens,
		Schema:          candidateSchema,
	})
	if err != nil {
		if code, ok := gemini.StatusCode(err); ok && resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}

	usage := model.TokenUsage{
		InputTokens:     int(resp.Usage.PromptTokens),
		OutputTokens:    int(resp.Usage.CandidateTokens),
		CacheReadTokens: int(resp.Usage.CachedTokens),
	}
	usage.Cost = c.costs.Gemini(c.model, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens)
	logCost(ProviderGemini, c.model, chunk.ID, usage)

	candidates, err := ParseResponse(resp.Text)
	if err != nil {
		return &Response{Usage: usage}, eris.Wrapf(err, "gemini: %s", chunk.ID)
	}
	return &Response{Candidates: candidates, Usage: usage}, nil
}
