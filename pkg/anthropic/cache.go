package anthropic

// BuildCachedSystemBlocks wraps a system prompt that is identical across
// requests in a single block with an ephemeral cache breakpoint, so every
// chunk after the first reads the instructions from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
