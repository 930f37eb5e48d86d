package handoff

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/embeddings"
	"github.com/ccxlabs/mcp-context-server/internal/ingest"
	"github.com/ccxlabs/mcp-context-server/internal/retrieval"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	text := ""
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

// setupCompileHandler builds a full retrieve-and-compile stack with two
// indexed fragments.
func setupCompileHandler(t *testing.T) *CompileHandler {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	embedder := embeddings.NewHashEmbedder(64)
	lexical := retrieval.NewLexicalIndex(t.TempDir())
	engine := retrieval.NewEngine(st, embedder, lexical)
	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	ingestor := ingest.NewIngestor(st, embedder, lexical, engine, nil)
	_, err = ingestor.Ingest(context.Background(), ingest.Batch{
		RepoID: "repo-a",
		Fragments: []domain.Fragment{
			{ID: "f1", Path: "retry.go", Kind: domain.FragmentKindChunk,
				Text: "retry loop with exponential backoff", StartLine: 10, EndLine: 30},
			{ID: "f2", Path: "pool.go", Kind: domain.FragmentKindChunk,
				Text: "connection pool bookkeeping", StartLine: 1, EndLine: 20},
		},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	return NewCompileHandler(engine, NewCompiler(st, nil), 4000)
}

func TestCompileHandler_Summary(t *testing.T) {
	handler := setupCompileHandler(t)

	result, out, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, CompileArgument{
		TaskID: "task-1",
		Query:  "retry loop backoff",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "Compiled handoff") || !strings.Contains(text, "for task task-1") {
		t.Errorf("Unexpected summary:\n%s", text)
	}
	if !strings.Contains(text, "retry.go:10-30 (f1)") {
		t.Errorf("Expected citation line in summary, got:\n%s", text)
	}

	artifact, ok := out.(*domain.HandoffArtifact)
	if !ok {
		t.Fatalf("Expected artifact output, got %T", out)
	}
	if artifact.TokenEstimate > artifact.BudgetTokens {
		t.Errorf("Token estimate %d exceeds budget %d", artifact.TokenEstimate, artifact.BudgetTokens)
	}
}

func TestCompileHandler_Formats(t *testing.T) {
	handler := setupCompileHandler(t)
	ctx := context.Background()

	result, _, err := handler.Handle(ctx, &mcp.CallToolRequest{}, CompileArgument{
		TaskID: "task-1", Query: "retry loop", Format: "yaml",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "task: task-1") {
		t.Errorf("Expected YAML output, got:\n%s", resultText(t, result))
	}

	result, _, err = handler.Handle(ctx, &mcp.CallToolRequest{}, CompileArgument{
		TaskID: "task-1", Query: "retry loop", Format: "markdown",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "# Handoff: task-1") {
		t.Errorf("Expected markdown output, got:\n%s", resultText(t, result))
	}
}

func TestCompileHandler_EmptyQuery(t *testing.T) {
	handler := setupCompileHandler(t)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, CompileArgument{
		TaskID: "task-1", Query: "",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result for empty query")
	}
}

func TestCompileHandler_MissingTask(t *testing.T) {
	handler := setupCompileHandler(t)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, CompileArgument{
		Query: "retry loop",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result for missing task id")
	}
}
