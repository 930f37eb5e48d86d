package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/claims"
	"github.com/ccxlabs/mcp-context-server/internal/handoff"
	"github.com/ccxlabs/mcp-context-server/internal/ingest"
	"github.com/ccxlabs/mcp-context-server/internal/retrieval"
	"github.com/ccxlabs/mcp-context-server/internal/runstate"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	Store         store.Store
	Engine        *retrieval.Engine
	Ingestor      *ingest.Ingestor
	Compiler      *handoff.Compiler
	Machine       *runstate.Machine
	Coordinator   *claims.Coordinator
	DefaultBudget int
}

// CreateServer creates the MCP server and registers all engine tools
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Engine != nil {
		retrieval.RegisterSearchTool(s, cfg.Engine)
		retrieval.RegisterStatusTool(s, cfg.Engine, cfg.Store)
	}
	if cfg.Ingestor != nil {
		ingest.RegisterIndexTool(s, cfg.Ingestor)
	}
	if cfg.Compiler != nil && cfg.Engine != nil {
		handoff.RegisterCompileTool(s, cfg.Engine, cfg.Compiler, cfg.DefaultBudget)
	}
	if cfg.Machine != nil {
		runstate.RegisterRunTools(s, cfg.Machine)
	}
	if cfg.Coordinator != nil {
		claims.RegisterClaimTools(s, cfg.Coordinator)
	}

	return s
}
