package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestIsClaimConflict(t *testing.T) {
	conflict := &ClaimConflictError{
		RepoID:       "repo-a",
		Path:         "pkg/server.go",
		HolderID:     "session-1",
		RemainingTTL: 30 * time.Second,
	}

	if !IsClaimConflict(conflict) {
		t.Error("Expected IsClaimConflict true for ClaimConflictError")
	}
	if !IsClaimConflict(fmt.Errorf("acquire failed: %w", conflict)) {
		t.Error("Expected IsClaimConflict true for wrapped ClaimConflictError")
	}
	if IsClaimConflict(errors.New("other")) {
		t.Error("Expected IsClaimConflict false for unrelated error")
	}
	if IsClaimConflict(nil) {
		t.Error("Expected IsClaimConflict false for nil")
	}
}

func TestClaimConflictError_Message(t *testing.T) {
	conflict := &ClaimConflictError{
		RepoID:       "repo-a",
		Path:         "pkg/server.go",
		HolderID:     "session-1",
		RemainingTTL: 90 * time.Second,
	}

	msg := conflict.Error()
	for _, want := range []string{"repo-a", "pkg/server.go", "session-1", "1m30s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in error message, got: %s", want, msg)
		}
	}
}

func TestIsStaleRunTransition(t *testing.T) {
	stale := &StaleRunTransitionError{RunID: "run-1", Operation: "advance", Status: RunStatusCompleted}

	if !IsStaleRunTransition(stale) {
		t.Error("Expected IsStaleRunTransition true for StaleRunTransitionError")
	}
	if !IsStaleRunTransition(fmt.Errorf("advance failed: %w", stale)) {
		t.Error("Expected IsStaleRunTransition true for wrapped error")
	}
	if IsStaleRunTransition(ErrNotFound) {
		t.Error("Expected IsStaleRunTransition false for unrelated error")
	}
}
