package ingest

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// IndexArgument defines fragment indexing parameters.
type IndexArgument struct {
	RepoID    string            `json:"repo_id" jsonschema_description:"Repository id the fragments belong to"`
	Fragments []FragmentPayload `json:"fragments" jsonschema_description:"Fragments to index"`
	Symbols   []SymbolPayload   `json:"symbols,omitempty" jsonschema_description:"Symbols extracted from the fragments"`
}

// FragmentPayload is the wire form of a fragment.
type FragmentPayload struct {
	ID        string `json:"id" jsonschema_description:"Stable fragment id"`
	Path      string `json:"path" jsonschema_description:"Repo-relative file path"`
	Kind      string `json:"kind" jsonschema_description:"Fragment kind: file, symbol, or chunk"`
	Text      string `json:"text" jsonschema_description:"Fragment text"`
	StartLine int    `json:"start_line,omitempty" jsonschema_description:"First line of the fragment"`
	EndLine   int    `json:"end_line,omitempty" jsonschema_description:"Last line of the fragment"`
}

// SymbolPayload is the wire form of a symbol.
type SymbolPayload struct {
	ID        string `json:"id,omitempty" jsonschema_description:"Stable symbol id (derived from path and name when omitted)"`
	Name      string `json:"name" jsonschema_description:"Symbol name"`
	Kind      string `json:"kind,omitempty" jsonschema_description:"Symbol kind: function, method, class, type, or variable"`
	Signature string `json:"signature,omitempty" jsonschema_description:"Symbol signature"`
	Path      string `json:"path" jsonschema_description:"Repo-relative file path"`
	StartLine int    `json:"start_line,omitempty" jsonschema_description:"First line of the symbol"`
	EndLine   int    `json:"end_line,omitempty" jsonschema_description:"Last line of the symbol"`
}

// IndexHandler handles the index_fragments MCP tool.
type IndexHandler struct {
	ingestor *Ingestor
}

// NewIndexHandler creates an index handler.
func NewIndexHandler(ingestor *Ingestor) *IndexHandler {
	return &IndexHandler{ingestor: ingestor}
}

// Handle ingests a fragment batch and publishes a new index version.
func (h *IndexHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args IndexArgument) (*mcp.CallToolResult, any, error) {
	batch := Batch{RepoID: args.RepoID}
	for _, f := range args.Fragments {
		batch.Fragments = append(batch.Fragments, domain.Fragment{
			ID:        f.ID,
			RepoID:    args.RepoID,
			Path:      f.Path,
			Kind:      domain.FragmentKind(f.Kind),
			Text:      f.Text,
			StartLine: f.StartLine,
			EndLine:   f.EndLine,
		})
	}
	for _, s := range args.Symbols {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("%s#%s", s.Path, s.Name)
		}
		batch.Symbols = append(batch.Symbols, domain.Symbol{
			ID:        id,
			RepoID:    args.RepoID,
			Path:      s.Path,
			Kind:      domain.SymbolKind(s.Kind),
			Name:      s.Name,
			Signature: s.Signature,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		})
	}

	version, err := h.ingestor.Ingest(ctx, batch)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Indexing failed: %s", err)}},
			IsError: true,
		}, nil, nil
	}

	text := fmt.Sprintf("Indexed %d fragments and %d symbols for %s (index version %s, %d fragments total)",
		len(batch.Fragments), len(batch.Symbols), args.RepoID, version.Tag, version.FragmentCount)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, version, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *IndexHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "index_fragments",
		Description: "Index a batch of code fragments for a repository, replacing its previous fragments atomically",
	}
}

// RegisterIndexTool registers the indexing tool with an MCP server.
func RegisterIndexTool(server *mcp.Server, ingestor *Ingestor) {
	handler := NewIndexHandler(ingestor)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
