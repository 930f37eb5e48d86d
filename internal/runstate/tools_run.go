package runstate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// CreateRunArgument defines run creation parameters.
type CreateRunArgument struct {
	RepoID string        `json:"repo_id" jsonschema_description:"Repository the run operates on"`
	Plan   []StepPayload `json:"plan" jsonschema_description:"Ordered plan steps"`
}

// StepPayload is the wire form of a plan step.
type StepPayload struct {
	Kind        string            `json:"kind" jsonschema_description:"Step kind: edit, test, commit, or note"`
	Description string            `json:"description" jsonschema_description:"What the step does"`
	Params      map[string]string `json:"params,omitempty" jsonschema_description:"Step parameters"`
}

// RunArgument identifies an existing run.
type RunArgument struct {
	RunID string `json:"run_id" jsonschema_description:"Run identifier"`
}

// AdvanceArgument records a step outcome.
type AdvanceArgument struct {
	RunID   string `json:"run_id" jsonschema_description:"Run identifier"`
	Success bool   `json:"success" jsonschema_description:"Whether the step succeeded"`
	Summary string `json:"summary,omitempty" jsonschema_description:"Short outcome summary"`
}

// FailArgument marks a run failed.
type FailArgument struct {
	RunID  string `json:"run_id" jsonschema_description:"Run identifier"`
	Reason string `json:"reason" jsonschema_description:"Why the run failed"`
}

// RunHandler handles the run lifecycle MCP tools.
type RunHandler struct {
	machine *Machine
}

// NewRunHandler creates a run handler.
func NewRunHandler(machine *Machine) *RunHandler {
	return &RunHandler{machine: machine}
}

// HandleCreate creates a pending run from a plan.
func (h *RunHandler) HandleCreate(ctx context.Context, req *mcp.CallToolRequest, args CreateRunArgument) (*mcp.CallToolResult, any, error) {
	plan := make([]domain.Step, 0, len(args.Plan))
	for _, s := range args.Plan {
		plan = append(plan, domain.Step{
			Kind:        domain.StepKind(s.Kind),
			Description: s.Description,
			Params:      s.Params,
		})
	}

	run, err := h.machine.Create(ctx, args.RepoID, plan)
	if err != nil {
		return runError("Failed to create run", err), nil, nil
	}
	return textResult(fmt.Sprintf("Created run %s with %d steps", run.RunID, len(run.Plan))), run, nil
}

// HandleStart transitions a run to running.
func (h *RunHandler) HandleStart(ctx context.Context, req *mcp.CallToolRequest, args RunArgument) (*mcp.CallToolResult, any, error) {
	run, err := h.machine.Start(ctx, args.RunID)
	if err != nil {
		return runError("Failed to start run", err), nil, nil
	}
	return textResult(fmt.Sprintf("Run %s is running, next step: %s", run.RunID, describeStep(run.NextStep()))), run, nil
}

// HandleAdvance records a step result and moves the cursor.
func (h *RunHandler) HandleAdvance(ctx context.Context, req *mcp.CallToolRequest, args AdvanceArgument) (*mcp.CallToolResult, any, error) {
	run, err := h.machine.Advance(ctx, args.RunID, domain.StepResult{
		Success:    args.Success,
		Summary:    args.Summary,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		return runError("Failed to advance run", err), nil, nil
	}

	switch run.Status {
	case domain.RunStatusCompleted:
		return textResult(fmt.Sprintf("Run %s completed after %d steps", run.RunID, run.Cursor)), run, nil
	case domain.RunStatusFailed:
		return textResult(fmt.Sprintf("Run %s failed: %s", run.RunID, run.FailReason)), run, nil
	default:
		return textResult(fmt.Sprintf("Run %s at step %d/%d, next: %s", run.RunID, run.Cursor, len(run.Plan), describeStep(run.NextStep()))), run, nil
	}
}

// HandleInterrupt marks a running run interrupted.
func (h *RunHandler) HandleInterrupt(ctx context.Context, req *mcp.CallToolRequest, args RunArgument) (*mcp.CallToolResult, any, error) {
	run, err := h.machine.MarkInterrupted(ctx, args.RunID)
	if err != nil {
		return runError("Failed to interrupt run", err), nil, nil
	}
	return textResult(fmt.Sprintf("Run %s interrupted at step %d/%d", run.RunID, run.Cursor, len(run.Plan))), run, nil
}

// HandleResume resumes an interrupted run at its saved cursor.
func (h *RunHandler) HandleResume(ctx context.Context, req *mcp.CallToolRequest, args RunArgument) (*mcp.CallToolResult, any, error) {
	run, next, err := h.machine.Resume(ctx, args.RunID)
	if err != nil {
		return runError("Failed to resume run", err), nil, nil
	}
	return textResult(fmt.Sprintf("Run %s resumed at step %d/%d, next: %s", run.RunID, run.Cursor, len(run.Plan), describeStep(next))), run, nil
}

// HandleFail marks a run failed with a reason.
func (h *RunHandler) HandleFail(ctx context.Context, req *mcp.CallToolRequest, args FailArgument) (*mcp.CallToolResult, any, error) {
	run, err := h.machine.Fail(ctx, args.RunID, args.Reason)
	if err != nil {
		return runError("Failed to fail run", err), nil, nil
	}
	return textResult(fmt.Sprintf("Run %s marked failed: %s", run.RunID, run.FailReason)), run, nil
}

// HandleStatus reports the current run record.
func (h *RunHandler) HandleStatus(ctx context.Context, req *mcp.CallToolRequest, args RunArgument) (*mcp.CallToolResult, any, error) {
	run, err := h.machine.Get(ctx, args.RunID)
	if err != nil {
		return runError("Failed to load run", err), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run %s (%s): %s, step %d/%d\n", run.RunID, run.RepoID, run.Status, run.Cursor, len(run.Plan)))
	for i, s := range run.Plan {
		marker := " "
		if i < run.Cursor {
			marker = "x"
			if !run.StepResults[i].Success {
				marker = "!"
			}
		}
		sb.WriteString(fmt.Sprintf("[%s] %d. %s: %s\n", marker, i+1, s.Kind, s.Description))
	}
	if run.FailReason != "" {
		sb.WriteString(fmt.Sprintf("Fail reason: %s\n", run.FailReason))
	}
	return textResult(sb.String()), run, nil
}

func describeStep(step *domain.Step) string {
	if step == nil {
		return "none"
	}
	return fmt.Sprintf("%s: %s", step.Kind, step.Description)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func runError(prefix string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s", prefix, err)}},
		IsError: true,
	}
}

// RegisterRunTools registers the run lifecycle tools with an MCP server.
func RegisterRunTools(server *mcp.Server, machine *Machine) {
	handler := NewRunHandler(machine)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_create",
		Description: "Create a pending run from an ordered step plan",
	}, handler.HandleCreate)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_start",
		Description: "Start a pending or resumed run",
	}, handler.HandleStart)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_advance",
		Description: "Record a step result and advance the run cursor",
	}, handler.HandleAdvance)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_interrupt",
		Description: "Interrupt a running run, preserving its cursor and results",
	}, handler.HandleInterrupt)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_resume",
		Description: "Resume an interrupted run at its saved cursor",
	}, handler.HandleResume)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_fail",
		Description: "Mark a run failed with a reason",
	}, handler.HandleFail)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_status",
		Description: "Report a run's status, cursor, and step results",
	}, handler.HandleStatus)
}
