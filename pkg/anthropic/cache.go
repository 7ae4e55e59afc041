package anthropic

// SystemCacheTTL is the cache lifetime requested for system prompt blocks.
// Flow prompts repeat verbatim across every item in a batch, so each block
// carries a cache breakpoint.
const SystemCacheTTL = "5m"

// CachedSystemBlocks wraps a static system prompt in a single block with a
// cache breakpoint.
func CachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: SystemCacheTTL},
		},
	}
}
