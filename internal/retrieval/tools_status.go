package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

// StatusArgument defines engine status parameters.
type StatusArgument struct{}

// StatusHandler handles the engine_status MCP tool.
type StatusHandler struct {
	engine *Engine
	store  store.Store
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(engine *Engine, st store.Store) *StatusHandler {
	return &StatusHandler{engine: engine, store: st}
}

// Handle reports the active index version and readiness.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	var sb strings.Builder

	tag := h.engine.CurrentTag()
	if tag == "" {
		sb.WriteString("Engine: no index ingested yet, retrieval returns empty results\n")
	} else {
		sb.WriteString(fmt.Sprintf("Engine: ready, index version %s\n", tag))
	}

	var version store.IndexVersion
	err := h.store.Get(ctx, store.CollectionMeta, store.KeyCurrentIndexVersion, &version)
	if err == nil {
		sb.WriteString(fmt.Sprintf("Fragments: %d, symbols: %d, published %s\n",
			version.FragmentCount, version.SymbolCount, version.CreatedAt.Format("2006-01-02 15:04:05 MST")))
	} else if !isNotFound(err) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Failed to read index version: %s", err)}},
			IsError: true,
		}, nil, nil
	}

	claims := 0
	_ = h.store.Query(ctx, store.CollectionClaims, "", func(key string, value []byte) error {
		claims++
		return nil
	})
	sb.WriteString(fmt.Sprintf("Active claims: %d\n", claims))

	runs := map[domain.RunStatus]int{}
	_ = h.store.Query(ctx, store.CollectionRuns, "", func(key string, value []byte) error {
		var run domain.Run
		if err := json.Unmarshal(value, &run); err == nil {
			runs[run.Status]++
		}
		return nil
	})
	if len(runs) > 0 {
		sb.WriteString("Runs:")
		for _, status := range []domain.RunStatus{
			domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusInterrupted,
			domain.RunStatusResumed, domain.RunStatusCompleted, domain.RunStatusFailed,
		} {
			if n := runs[status]; n > 0 {
				sb.WriteString(fmt.Sprintf(" %s=%d", status, n))
			}
		}
		sb.WriteString("\n")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}},
	}, nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "engine_status",
		Description: "Report index version, fragment counts, active claims, and run totals",
	}
}

// RegisterStatusTool registers the status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, engine *Engine, st store.Store) {
	handler := NewStatusHandler(engine, st)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
