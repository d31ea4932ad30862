package extract

import (
	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/model"
)

// logCost records per-call token usage and its estimated cost.
func logCost(provider, modelName, chunkID string, u model.TokenUsage) {
	zap.L().Info("cost attribution",
		zap.String("provider", provider),
		zap.String("model", modelName),
		zap.String("chunk_id", chunkID),
		zap.Int("input_tokens", u.InputTokens),
		zap.Int("output_tokens", u.OutputTokens),
		zap.Int("cache_write_tokens", u.CacheCreationTokens),
		zap.Int("cache_read_tokens", u.CacheReadTokens),
		zap.Float64("estimated_cost_usd", u.Cost),
	)
}
