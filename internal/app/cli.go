package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	flags.StringP("base-dir", "d", "", "Base directory for the store and indexes")
	flags.Int("max-results", 0, "Maximum search results")
	flags.Int("rrf-k", 0, "Reciprocal rank fusion smoothing constant")
	flags.Int("fusion-depth", 0, "Per-ranking depth before fusion")
	flags.Int("default-budget-tokens", 0, "Default handoff token budget")

	flags.String("embeddings-provider", "", "Embedding provider: hash or openai")
	flags.String("embeddings-model", "", "Embedding model name")
	flags.Int("embeddings-dimensions", 0, "Embedding dimensions")

	flags.Duration("claim-ttl", 0, "Default file claim lease duration")
	flags.Duration("watchdog-interval", 0, "Run watchdog sweep interval")
	flags.Duration("stall-timeout", 0, "Heartbeat age before a run is considered stalled")

	flags.String("eval-provider", "", "Completion evaluator: lexical or judge")
}
