package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Embedding provider constants
const (
	EmbeddingProviderHash   = "hash"
	EmbeddingProviderOpenAI = "openai"
)

// Eval provider constants
const (
	EvalProviderLexical = "lexical"
	EvalProviderJudge   = "judge"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EngineSettings configuration for retrieval and handoff compilation
type EngineSettings struct {
	BaseDir             string `mapstructure:"base_dir"`
	MaxResults          int    `mapstructure:"max_results"`
	RRFK                int    `mapstructure:"rrf_k"`
	FusionDepth         int    `mapstructure:"fusion_depth"`
	DefaultBudgetTokens int    `mapstructure:"default_budget_tokens"`
}

// EmbeddingSettings configuration for the embedding provider
type EmbeddingSettings struct {
	Provider   string `mapstructure:"provider"` // EmbeddingProviderHash or EmbeddingProviderOpenAI
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ClaimSettings configuration for file claims
type ClaimSettings struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// RunSettings configuration for the run watchdog
type RunSettings struct {
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	StallTimeout     time.Duration `mapstructure:"stall_timeout"`
}

// EvalSettings configuration for the completion evaluator
type EvalSettings struct {
	Provider    string  `mapstructure:"provider"` // EvalProviderLexical or EvalProviderJudge
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Adherence   float64 `mapstructure:"adherence"`
	Relevance   float64 `mapstructure:"relevance"`
	Correctness float64 `mapstructure:"correctness"`
}

// Settings application settings
type Settings struct {
	Transport  string            `mapstructure:"transport"`
	Host       string            `mapstructure:"host"`
	Port       int               `mapstructure:"port"`
	Auth       AuthSettings      `mapstructure:"auth"`
	Engine     EngineSettings    `mapstructure:"engine"`
	Embeddings EmbeddingSettings `mapstructure:"embeddings"`
	Claims     ClaimSettings     `mapstructure:"claims"`
	Runs       RunSettings       `mapstructure:"runs"`
	Eval       EvalSettings      `mapstructure:"eval"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	v.SetDefault("engine.base_dir", defaultBaseDir())
	v.SetDefault("engine.max_results", 20)
	v.SetDefault("engine.rrf_k", 60)
	v.SetDefault("engine.fusion_depth", 100)
	v.SetDefault("engine.default_budget_tokens", 4000)

	v.SetDefault("embeddings.provider", EmbeddingProviderHash)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.dimensions", 256)

	v.SetDefault("claims.default_ttl", 10*time.Minute)

	v.SetDefault("runs.watchdog_interval", 30*time.Second)
	v.SetDefault("runs.stall_timeout", 5*time.Minute)

	v.SetDefault("eval.provider", EvalProviderLexical)
	v.SetDefault("eval.model", "gpt-4o-mini")
	v.SetDefault("eval.adherence", 0.6)
	v.SetDefault("eval.relevance", 0.5)
	v.SetDefault("eval.correctness", 0.6)

	// Environment variables
	v.SetEnvPrefix("CCX_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("auth.type", "CCX_MCP_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "CCX_MCP_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "CCX_MCP_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "CCX_MCP_AUTH_API_KEYS")

	_ = v.BindEnv("engine.base_dir", "CCX_MCP_ENGINE_BASE_DIR")
	_ = v.BindEnv("engine.max_results", "CCX_MCP_ENGINE_MAX_RESULTS")
	_ = v.BindEnv("engine.rrf_k", "CCX_MCP_ENGINE_RRF_K")
	_ = v.BindEnv("engine.fusion_depth", "CCX_MCP_ENGINE_FUSION_DEPTH")
	_ = v.BindEnv("engine.default_budget_tokens", "CCX_MCP_ENGINE_DEFAULT_BUDGET_TOKENS")

	_ = v.BindEnv("embeddings.provider", "CCX_MCP_EMBEDDINGS_PROVIDER")
	_ = v.BindEnv("embeddings.api_key", "CCX_MCP_EMBEDDINGS_API_KEY")
	_ = v.BindEnv("embeddings.base_url", "CCX_MCP_EMBEDDINGS_BASE_URL")
	_ = v.BindEnv("embeddings.model", "CCX_MCP_EMBEDDINGS_MODEL")
	_ = v.BindEnv("embeddings.dimensions", "CCX_MCP_EMBEDDINGS_DIMENSIONS")

	_ = v.BindEnv("claims.default_ttl", "CCX_MCP_CLAIMS_DEFAULT_TTL")

	_ = v.BindEnv("runs.watchdog_interval", "CCX_MCP_RUNS_WATCHDOG_INTERVAL")
	_ = v.BindEnv("runs.stall_timeout", "CCX_MCP_RUNS_STALL_TIMEOUT")

	_ = v.BindEnv("eval.provider", "CCX_MCP_EVAL_PROVIDER")
	_ = v.BindEnv("eval.api_key", "CCX_MCP_EVAL_API_KEY")
	_ = v.BindEnv("eval.base_url", "CCX_MCP_EVAL_BASE_URL")
	_ = v.BindEnv("eval.model", "CCX_MCP_EVAL_MODEL")
	_ = v.BindEnv("eval.adherence", "CCX_MCP_EVAL_ADHERENCE")
	_ = v.BindEnv("eval.relevance", "CCX_MCP_EVAL_RELEVANCE")
	_ = v.BindEnv("eval.correctness", "CCX_MCP_EVAL_CORRECTNESS")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		_ = v.BindPFlag("engine.base_dir", flags.Lookup("base-dir"))
		_ = v.BindPFlag("engine.max_results", flags.Lookup("max-results"))
		_ = v.BindPFlag("engine.rrf_k", flags.Lookup("rrf-k"))
		_ = v.BindPFlag("engine.fusion_depth", flags.Lookup("fusion-depth"))
		_ = v.BindPFlag("engine.default_budget_tokens", flags.Lookup("default-budget-tokens"))

		_ = v.BindPFlag("embeddings.provider", flags.Lookup("embeddings-provider"))
		_ = v.BindPFlag("embeddings.model", flags.Lookup("embeddings-model"))
		_ = v.BindPFlag("embeddings.dimensions", flags.Lookup("embeddings-dimensions"))

		_ = v.BindPFlag("claims.default_ttl", flags.Lookup("claim-ttl"))

		_ = v.BindPFlag("runs.watchdog_interval", flags.Lookup("watchdog-interval"))
		_ = v.BindPFlag("runs.stall_timeout", flags.Lookup("stall-timeout"))

		_ = v.BindPFlag("eval.provider", flags.Lookup("eval-provider"))
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv("CCX_MCP_AUTH_API_KEYS")
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}

	// Expand home directory in base_dir
	settings.Engine.BaseDir = expandHomeDir(settings.Engine.BaseDir)

	return &settings, nil
}

// defaultBaseDir returns the default directory for the store and indexes
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ccx-mcp"
	}
	return filepath.Join(home, ".ccx-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	if err := validateEngineSettings(&s.Engine); err != nil {
		return err
	}
	if err := validateEmbeddingSettings(&s.Embeddings); err != nil {
		return err
	}
	if err := validateRunSettings(&s.Runs); err != nil {
		return err
	}
	if err := validateEvalSettings(&s.Eval); err != nil {
		return err
	}

	if s.Claims.DefaultTTL <= 0 {
		return errors.New("claim-ttl must be positive")
	}

	return nil
}

// validateEngineSettings validates the retrieval and handoff configuration
func validateEngineSettings(e *EngineSettings) error {
	if e.BaseDir == "" {
		return errors.New("base-dir cannot be empty")
	}
	if e.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}
	if e.RRFK <= 0 {
		return errors.New("rrf-k must be positive")
	}
	if e.FusionDepth <= 0 {
		return errors.New("fusion-depth must be positive")
	}
	if e.DefaultBudgetTokens < 0 {
		return errors.New("default-budget-tokens cannot be negative")
	}
	return nil
}

// validateEmbeddingSettings validates the embedding provider configuration
func validateEmbeddingSettings(e *EmbeddingSettings) error {
	switch e.Provider {
	case EmbeddingProviderHash:
		if e.Dimensions <= 0 {
			return errors.New("embeddings-dimensions must be positive")
		}
	case EmbeddingProviderOpenAI:
		if e.APIKey == "" {
			return errors.New("embeddings-provider 'openai' requires an API key")
		}
		if e.Model == "" {
			return errors.New("embeddings-provider 'openai' requires a model")
		}
	default:
		return errors.New("unknown embeddings-provider: " + e.Provider)
	}
	return nil
}

// validateRunSettings validates the watchdog configuration
func validateRunSettings(r *RunSettings) error {
	if r.WatchdogInterval <= 0 {
		return errors.New("watchdog-interval must be positive")
	}
	if r.StallTimeout <= 0 {
		return errors.New("stall-timeout must be positive")
	}
	return nil
}

// validateEvalSettings validates the completion evaluator configuration
func validateEvalSettings(e *EvalSettings) error {
	switch e.Provider {
	case EvalProviderLexical:
	case EvalProviderJudge:
		if e.APIKey == "" {
			return errors.New("eval-provider 'judge' requires an API key")
		}
	default:
		return errors.New("unknown eval-provider: " + e.Provider)
	}
	for _, t := range []float64{e.Adherence, e.Relevance, e.Correctness} {
		if t < 0 || t > 1 {
			return errors.New("eval thresholds must be within [0, 1]")
		}
	}
	return nil
}
