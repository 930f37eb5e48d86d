package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query  string `json:"query" jsonschema_description:"Search query"`
	K      int    `json:"k,omitempty" jsonschema_description:"Maximum number of results (default 10)"`
	RepoID string `json:"repo_id,omitempty" jsonschema_description:"Filter by repository id"`
	Kind   string `json:"kind,omitempty" jsonschema_description:"Filter by fragment kind: file, symbol, or chunk"`
}

// SearchHandler handles the search_context MCP tool.
type SearchHandler struct {
	engine *Engine
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(engine *Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Handle executes the hybrid search and returns formatted candidates.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	k := args.K
	if k <= 0 {
		k = 10
	}

	candidates, err := h.engine.Search(ctx, args.Query, k, Filters{
		RepoID: args.RepoID,
		Kind:   domain.FragmentKind(args.Kind),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			return errorResult("Query cannot be empty"), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return formatCandidates(candidates, args.Query), candidates, nil
}

// formatCandidates renders the fused ranking for the agent.
func formatCandidates(candidates []domain.RankedCandidate, queryStr string) *mcp.CallToolResult {
	if len(candidates) == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d candidates for '%s':\n\n", len(candidates), queryStr))
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("%d. %s (fused %.5f", i+1, c.FragmentID, c.FusedScore))
		if c.LexicalRank > 0 {
			sb.WriteString(fmt.Sprintf(", lexical #%d", c.LexicalRank))
		}
		if c.VectorRank > 0 {
			sb.WriteString(fmt.Sprintf(", vector #%d", c.VectorRank))
		}
		sb.WriteString(")\n")
	}
	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_context",
		Description: "Rank indexed code fragments for a query using hybrid lexical+vector retrieval",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, engine *Engine) {
	handler := NewSearchHandler(engine)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// textResult wraps plain text in a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult wraps an error message in a failed tool result.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
