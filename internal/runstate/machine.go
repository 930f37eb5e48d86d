// Package runstate tracks multi-step task execution and survives
// process death. Every transition is a single conditional write against
// the store, so two agents racing on the same run cannot lose updates:
// one wins, the other observes a version mismatch.
package runstate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

// CompletionGate is consulted before a run transitions to completed.
// Denial fails the run with the returned reason; an error aborts the
// transition without touching the run so the caller can retry.
type CompletionGate interface {
	Approve(ctx context.Context, run *domain.Run) (approved bool, reason string, err error)
}

// Machine executes run lifecycle transitions against the store.
type Machine struct {
	store store.Store
	gate  CompletionGate
}

// NewMachine creates a run state machine. The gate may be nil, in which
// case runs complete without evaluation.
func NewMachine(st store.Store, gate CompletionGate) *Machine {
	return &Machine{store: st, gate: gate}
}

// Create initializes a run with cursor 0 and status pending.
func (m *Machine) Create(ctx context.Context, repoID string, plan []domain.Step) (*domain.Run, error) {
	if len(plan) == 0 {
		return nil, fmt.Errorf("plan must contain at least one step")
	}
	for i, step := range plan {
		switch step.Kind {
		case domain.StepKindEdit, domain.StepKindTest, domain.StepKindCommit, domain.StepKindNote:
		default:
			return nil, fmt.Errorf("step %d has unknown kind %q", i, step.Kind)
		}
	}

	now := time.Now().UTC()
	run := &domain.Run{
		RunID:       uuid.NewString(),
		RepoID:      repoID,
		Plan:        plan,
		Cursor:      0,
		Status:      domain.RunStatusPending,
		StepResults: []domain.StepResult{},
		CreatedAt:   now,
		Heartbeat:   now,
		Version:     1,
	}

	if err := m.store.AtomicUpdate(ctx, store.CollectionRuns, run.RunID, 0, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// Get loads a run by id.
func (m *Machine) Get(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	if err := m.store.Get(ctx, store.CollectionRuns, runID, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Start moves a pending or resumed run to running.
func (m *Machine) Start(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := m.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusPending && run.Status != domain.RunStatusResumed {
		return nil, &domain.StaleRunTransitionError{RunID: runID, Operation: "start", Status: run.Status}
	}
	run.Status = domain.RunStatusRunning
	return m.write(ctx, run)
}

// Advance appends a step result and increments the cursor. When the
// plan is exhausted the completion gate (if any) decides between
// completed and failed. Requires status running.
func (m *Machine) Advance(ctx context.Context, runID string, result domain.StepResult) (*domain.Run, error) {
	run, err := m.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusRunning {
		return nil, &domain.StaleRunTransitionError{RunID: runID, Operation: "advance", Status: run.Status}
	}
	if run.Cursor >= len(run.Plan) {
		return nil, &domain.StaleRunTransitionError{RunID: runID, Operation: "advance", Status: run.Status}
	}

	result.StepIndex = run.Cursor
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}
	run.StepResults = append(run.StepResults, result)
	run.Cursor++

	if run.Cursor == len(run.Plan) {
		if m.gate != nil {
			approved, reason, err := m.gate.Approve(ctx, run)
			if err != nil {
				return nil, fmt.Errorf("completion gate failed: %w", err)
			}
			if !approved {
				run.Status = domain.RunStatusFailed
				run.FailReason = reason
				return m.write(ctx, run)
			}
		}
		run.Status = domain.RunStatusCompleted
	}
	return m.write(ctx, run)
}

// MarkInterrupted flags a running run as interrupted, e.g. when a
// watchdog detects the executing process vanished. Cursor and
// step_results are untouched: no completed step is ever re-done and no
// recorded result is lost.
func (m *Machine) MarkInterrupted(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := m.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusRunning {
		return nil, &domain.StaleRunTransitionError{RunID: runID, Operation: "mark_interrupted", Status: run.Status}
	}
	run.Status = domain.RunStatusInterrupted
	return m.write(ctx, run)
}

// Resume moves an interrupted run to resumed and returns the step to
// re-attempt. The caller then calls Start and, on success, Advance.
func (m *Machine) Resume(ctx context.Context, runID string) (*domain.Run, *domain.Step, error) {
	run, err := m.Get(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != domain.RunStatusInterrupted {
		return nil, nil, &domain.StaleRunTransitionError{RunID: runID, Operation: "resume", Status: run.Status}
	}
	run.Status = domain.RunStatusResumed
	updated, err := m.write(ctx, run)
	if err != nil {
		return nil, nil, err
	}
	return updated, updated.NextStep(), nil
}

// Fail moves any non-terminal run to failed, recording the reason.
func (m *Machine) Fail(ctx context.Context, runID, reason string) (*domain.Run, error) {
	run, err := m.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, &domain.StaleRunTransitionError{RunID: runID, Operation: "fail", Status: run.Status}
	}
	run.Status = domain.RunStatusFailed
	run.FailReason = reason
	return m.write(ctx, run)
}

// write performs the conditional store update, bumping version and
// heartbeat.
func (m *Machine) write(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	expected := run.Version
	run.Version = expected + 1
	run.Heartbeat = time.Now().UTC()

	if err := m.store.AtomicUpdate(ctx, store.CollectionRuns, run.RunID, expected, run); err != nil {
		return nil, err
	}
	return run, nil
}
