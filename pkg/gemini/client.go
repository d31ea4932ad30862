// Package gemini wraps google.golang.org/genai for single-turn JSON generation.
package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// DefaultModel is used when a request leaves Model empty.
const DefaultModel = "gemini-1.5-flash"

// Client defines the Gemini operations used by the extractor.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (*Response, error)
}

// Request is one single-turn prompt whose answer must be JSON.
type Request struct {
	Model           string
	System          string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
	Schema          *genai.Schema
}

// Response carries the raw JSON text and token usage.
type Response struct {
	Text  string
	Model string
	Usage TokenUsage
}

// TokenUsage mirrors the usage metadata returned by the API.
type TokenUsage struct {
	PromptTokens    int64
	CandidateTokens int64
	CachedTokens    int64
}

// StatusCode extracts the HTTP status from a genai API error in err's chain.
func StatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini API client. baseURL is optional and only
// overridden in tests.
func NewClient(ctx context.Context, apiKey, baseURL string) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) GenerateJSON(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out := &Response{Text: resp.Text(), Model: model}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			PromptTokens:    int64(resp.UsageMetadata.PromptTokenCount),
			CandidateTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			CachedTokens:    int64(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	return out, nil
}
