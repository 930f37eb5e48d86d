package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: engine.base_dir", "value", s.Engine.BaseDir)
	logger.InfoContext(ctx, "Config: engine.rrf_k", "value", s.Engine.RRFK)
	logger.InfoContext(ctx, "Config: engine.fusion_depth", "value", s.Engine.FusionDepth)
	logger.InfoContext(ctx, "Config: engine.default_budget_tokens", "value", s.Engine.DefaultBudgetTokens)

	logger.InfoContext(ctx, "Config: embeddings.provider", "value", s.Embeddings.Provider)
	if s.Embeddings.Provider == EmbeddingProviderOpenAI {
		logger.InfoContext(ctx, "Config: embeddings.model", "value", s.Embeddings.Model)
		logger.InfoContext(ctx, "Config: embeddings.api_key", "value", "****")
	} else {
		logger.InfoContext(ctx, "Config: embeddings.dimensions", "value", s.Embeddings.Dimensions)
	}

	logger.InfoContext(ctx, "Config: claims.default_ttl", "value", s.Claims.DefaultTTL)
	logger.InfoContext(ctx, "Config: runs.watchdog_interval", "value", s.Runs.WatchdogInterval)
	logger.InfoContext(ctx, "Config: runs.stall_timeout", "value", s.Runs.StallTimeout)
	logger.InfoContext(ctx, "Config: eval.provider", "value", s.Eval.Provider)
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.String("engine.base_dir", s.Engine.BaseDir),
		slog.String("embeddings.provider", s.Embeddings.Provider),
		slog.String("eval.provider", s.Eval.Provider),
	)
}
