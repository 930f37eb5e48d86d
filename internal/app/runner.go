package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/ccxlabs/mcp-context-server/internal/claims"
	"github.com/ccxlabs/mcp-context-server/internal/config"
	"github.com/ccxlabs/mcp-context-server/internal/embeddings"
	"github.com/ccxlabs/mcp-context-server/internal/eval"
	"github.com/ccxlabs/mcp-context-server/internal/handoff"
	"github.com/ccxlabs/mcp-context-server/internal/ingest"
	mcputil "github.com/ccxlabs/mcp-context-server/internal/mcp"
	"github.com/ccxlabs/mcp-context-server/internal/retrieval"
	"github.com/ccxlabs/mcp-context-server/internal/runstate"
	"github.com/ccxlabs/mcp-context-server/internal/store"
	"github.com/ccxlabs/mcp-context-server/internal/tokens"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting context engine MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	} else {
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(mcpServer, settings)
	}
}

// CreateMCPServer assembles the store, retrieval engine, and coordination
// services, then creates the MCP server with registered tools
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	st, err := store.Open(store.Options{
		Path:   filepath.Join(settings.Engine.BaseDir, "store"),
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder, err := newEmbedder(&settings.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	counter, err := tokens.NewCounter()
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	lexical := retrieval.NewLexicalIndex(settings.Engine.BaseDir)
	engine := retrieval.NewEngine(st, embedder, lexical,
		retrieval.WithRRFK(settings.Engine.RRFK),
		retrieval.WithFusionDepth(settings.Engine.FusionDepth))
	if err := engine.Initialize(context.Background()); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to initialize retrieval engine: %w", err)
	}

	evaluator, err := newEvaluator(&settings.Eval)
	if err != nil {
		_ = engine.Close()
		_ = st.Close()
		return nil, nil, err
	}

	ingestor := ingest.NewIngestor(st, embedder, lexical, engine, counter)
	compiler := handoff.NewCompiler(st, counter)
	machine := runstate.NewMachine(st, eval.NewGate(evaluator))
	coordinator := claims.NewCoordinator(st, settings.Claims.DefaultTTL)

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	watchdog := runstate.NewWatchdog(st, machine, settings.Runs.StallTimeout, settings.Runs.WatchdogInterval)
	go watchdog.Start(watchdogCtx)

	cleanup := func() {
		stopWatchdog()
		if err := engine.Close(); err != nil {
			slog.Error("Failed to close retrieval engine", "error", err)
		}
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:          "ccx-mcp",
		Version:       "1.0.0",
		Store:         st,
		Engine:        engine,
		Ingestor:      ingestor,
		Compiler:      compiler,
		Machine:       machine,
		Coordinator:   coordinator,
		DefaultBudget: settings.Engine.DefaultBudgetTokens,
	})

	return server, cleanup, nil
}

// newEmbedder builds the configured embedding provider.
func newEmbedder(s *config.EmbeddingSettings) (embeddings.Embedder, error) {
	switch s.Provider {
	case config.EmbeddingProviderOpenAI:
		embedder, err := embeddings.NewOpenAIEmbedder(embeddings.OpenAIConfig{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return embedder, nil
	default:
		return embeddings.NewHashEmbedder(s.Dimensions), nil
	}
}

// newEvaluator builds the configured completion evaluator.
func newEvaluator(s *config.EvalSettings) (eval.Evaluator, error) {
	thresholds := eval.Thresholds{
		Adherence:   s.Adherence,
		Relevance:   s.Relevance,
		Correctness: s.Correctness,
	}
	switch s.Provider {
	case config.EvalProviderJudge:
		evaluator, err := eval.NewJudgeEvaluator(eval.JudgeConfig{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Thresholds: thresholds,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create evaluator: %w", err)
		}
		return evaluator, nil
	default:
		return eval.NewLexicalEvaluator(thresholds), nil
	}
}
