// Package extract asks a language model which unfilled disclosure fields a
// chunk of report text answers. Providers differ only in transport; they all
// share the prompt and the response parser in this package.
package extract

import (
	"context"

	"github.com/sells-group/gri-cli/internal/model"
)

// Client proposes candidate mappings for one chunk against the offered fields.
type Client interface {
	Extract(ctx context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*Response, error)
}

// Response is a parsed client answer.
type Response struct {
	Candidates []model.Candidate
	Usage      model.TokenUsage
}

// Provider names accepted by extraction.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)
