package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/retrieval"
)

// CompileArgument defines handoff compilation parameters.
type CompileArgument struct {
	TaskID       string `json:"task_id" jsonschema_description:"Task identifier the handoff belongs to"`
	Query        string `json:"query" jsonschema_description:"Retrieval query describing the task context"`
	RepoID       string `json:"repo_id,omitempty" jsonschema_description:"Filter candidates by repository id"`
	BudgetTokens int    `json:"budget_tokens,omitempty" jsonschema_description:"Token budget for the compiled pack (default from server settings)"`
	Format       string `json:"format,omitempty" jsonschema_description:"Output format: summary, yaml, or markdown (default summary)"`
}

// CompileHandler handles the compile_handoff MCP tool.
type CompileHandler struct {
	engine        *retrieval.Engine
	compiler      *Compiler
	defaultBudget int
	candidateK    int
}

// NewCompileHandler creates a handoff compile handler.
func NewCompileHandler(engine *retrieval.Engine, compiler *Compiler, defaultBudget int) *CompileHandler {
	return &CompileHandler{
		engine:        engine,
		compiler:      compiler,
		defaultBudget: defaultBudget,
		candidateK:    50,
	}
}

// Handle retrieves candidates for the query and compiles them into a
// budget-constrained handoff pack.
func (h *CompileHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args CompileArgument) (*mcp.CallToolResult, any, error) {
	budget := args.BudgetTokens
	if budget <= 0 {
		budget = h.defaultBudget
	}

	candidates, err := h.engine.Search(ctx, args.Query, h.candidateK, retrieval.Filters{RepoID: args.RepoID})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			return errorResult("Query cannot be empty"), nil, nil
		}
		return errorResult(fmt.Sprintf("Retrieval failed: %s", err)), nil, nil
	}

	artifact, err := h.compiler.Compile(ctx, args.TaskID, args.Query, candidates, budget)
	if err != nil {
		return errorResult(fmt.Sprintf("Handoff compilation failed: %s", err)), nil, nil
	}

	switch args.Format {
	case "yaml":
		text, err := RenderYAML(artifact)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to render pack: %s", err)), nil, nil
		}
		return textResult(text), artifact, nil
	case "markdown":
		return textResult(RenderMarkdown(artifact)), artifact, nil
	default:
		return textResult(summarize(artifact)), artifact, nil
	}
}

// summarize renders a short report on the compiled pack.
func summarize(artifact *domain.HandoffArtifact) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Compiled handoff %s for task %s\n", artifact.ID, artifact.TaskID))
	sb.WriteString(fmt.Sprintf("Sections: %d, tokens: %d/%d\n", len(artifact.Sections), artifact.TokenEstimate, artifact.BudgetTokens))
	if artifact.Underfilled {
		sb.WriteString("Warning: pack is underfilled, no candidate fit within the budget\n")
	}
	for _, c := range artifact.Citations {
		sb.WriteString(fmt.Sprintf("- %s:%d-%d (%s)\n", c.Path, c.StartLine, c.EndLine, c.FragmentID))
	}
	return sb.String()
}

// GetToolDefinition returns the MCP tool definition.
func (h *CompileHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "compile_handoff",
		Description: "Compile ranked context fragments into a budget-constrained handoff pack with citations",
	}
}

// RegisterCompileTool registers the handoff tool with an MCP server.
func RegisterCompileTool(server *mcp.Server, engine *retrieval.Engine, compiler *Compiler, defaultBudget int) {
	handler := NewCompileHandler(engine, compiler, defaultBudget)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
