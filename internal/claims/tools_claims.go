package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// ClaimArgument defines claim parameters shared by acquire and renew.
type ClaimArgument struct {
	RepoID     string `json:"repo_id" jsonschema_description:"Repository id"`
	Path       string `json:"path" jsonschema_description:"Repo-relative file path to claim"`
	SessionID  string `json:"session_id" jsonschema_description:"Claiming agent session id"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" jsonschema_description:"Lease duration in seconds (default from server settings)"`
}

// ReleaseArgument defines release parameters.
type ReleaseArgument struct {
	RepoID    string `json:"repo_id" jsonschema_description:"Repository id"`
	Path      string `json:"path" jsonschema_description:"Repo-relative file path"`
	SessionID string `json:"session_id" jsonschema_description:"Session that holds the claim"`
}

// ClaimHandler handles the file claim MCP tools.
type ClaimHandler struct {
	coordinator *Coordinator
}

// NewClaimHandler creates a claim handler.
func NewClaimHandler(coordinator *Coordinator) *ClaimHandler {
	return &ClaimHandler{coordinator: coordinator}
}

// HandleAcquire acquires an exclusive lease on a file.
func (h *ClaimHandler) HandleAcquire(ctx context.Context, req *mcp.CallToolRequest, args ClaimArgument) (*mcp.CallToolResult, any, error) {
	claim, err := h.coordinator.Acquire(ctx, args.RepoID, args.Path, args.SessionID, ttlFrom(args.TTLSeconds))
	if err != nil {
		var conflict *domain.ClaimConflictError
		if errors.As(err, &conflict) {
			text := fmt.Sprintf("Claim denied: %s in %s is held by %s for another %s",
				conflict.Path, conflict.RepoID, conflict.HolderID, conflict.RemainingTTL.Round(time.Second))
			return claimError(text), conflict, nil
		}
		return claimError(fmt.Sprintf("Failed to acquire claim: %s", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Claimed %s in %s for %s until %s",
		claim.Path, claim.RepoID, claim.SessionID, claim.ExpiresAt.Format(time.RFC3339))), claim, nil
}

// HandleRenew extends a held lease.
func (h *ClaimHandler) HandleRenew(ctx context.Context, req *mcp.CallToolRequest, args ClaimArgument) (*mcp.CallToolResult, any, error) {
	claim, err := h.coordinator.Renew(ctx, args.RepoID, args.Path, args.SessionID, ttlFrom(args.TTLSeconds))
	if err != nil {
		if errors.Is(err, ErrNotHeld) {
			return claimError(fmt.Sprintf("Cannot renew: %s holds no live claim on %s", args.SessionID, args.Path)), nil, nil
		}
		return claimError(fmt.Sprintf("Failed to renew claim: %s", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Renewed %s until %s", claim.Path, claim.ExpiresAt.Format(time.RFC3339))), claim, nil
}

// HandleRelease releases a held lease. Releasing an absent claim is a
// no-op.
func (h *ClaimHandler) HandleRelease(ctx context.Context, req *mcp.CallToolRequest, args ReleaseArgument) (*mcp.CallToolResult, any, error) {
	if err := h.coordinator.Release(ctx, args.RepoID, args.Path, args.SessionID); err != nil {
		return claimError(fmt.Sprintf("Failed to release claim: %s", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Released %s in %s", args.Path, args.RepoID)), nil, nil
}

func ttlFrom(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func claimError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// RegisterClaimTools registers the file claim tools with an MCP server.
func RegisterClaimTools(server *mcp.Server, coordinator *Coordinator) {
	handler := NewClaimHandler(coordinator)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "claim_acquire",
		Description: "Acquire an exclusive time-limited claim on a file, failing fast if another session holds it",
	}, handler.HandleAcquire)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "claim_renew",
		Description: "Extend a held file claim before it expires",
	}, handler.HandleRenew)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "claim_release",
		Description: "Release a held file claim",
	}, handler.HandleRelease)
}
