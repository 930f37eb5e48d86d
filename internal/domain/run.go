package domain

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusResumed     RunStatus = "resumed"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
)

// Terminal reports whether no transition leaves this status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// StepKind is the closed set of plan step variants.
type StepKind string

const (
	StepKindEdit   StepKind = "edit"
	StepKindTest   StepKind = "test"
	StepKindCommit StepKind = "commit"
	StepKindNote   StepKind = "note"
)

// Step is one descriptor in a run plan.
type Step struct {
	Kind        StepKind          `json:"kind"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`

	// ArtifactID optionally references the handoff artifact compiled
	// for this step.
	ArtifactID string `json:"artifact_id,omitempty"`
}

// StepResult records the outcome of one executed step. Results are
// append-only; resuming never truncates them.
type StepResult struct {
	StepIndex  int       `json:"step_index"`
	Success    bool      `json:"success"`
	Summary    string    `json:"summary,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run is the persisted execution record of one multi-step task.
//
// Invariants: Cursor never decreases, len(StepResults) == Cursor at all
// times, and Status == completed implies Cursor == len(Plan).
type Run struct {
	RunID       string       `json:"run_id"`
	RepoID      string       `json:"repo_id"`
	Plan        []Step       `json:"plan"`
	Cursor      int          `json:"cursor"`
	Status      RunStatus    `json:"status"`
	StepResults []StepResult `json:"step_results"`
	CommitRef   string       `json:"commit_ref,omitempty"`
	FailReason  string       `json:"fail_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Heartbeat is refreshed on every successful transition. The
	// watchdog marks running runs with a stale heartbeat interrupted.
	Heartbeat time.Time `json:"heartbeat"`

	// Version supports conditional writes against the store.
	Version uint64 `json:"version"`
}

// NextStep returns the next unexecuted step, or nil when the plan is
// exhausted.
func (r *Run) NextStep() *Step {
	if r.Cursor < 0 || r.Cursor >= len(r.Plan) {
		return nil
	}
	return &r.Plan[r.Cursor]
}
