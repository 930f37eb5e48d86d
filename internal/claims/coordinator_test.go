package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewCoordinator(st, 10*time.Minute)
}

func TestCoordinator_AcquireAndConflict(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	claim, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if claim.SessionID != "session-a" {
		t.Errorf("Expected holder session-a, got %s", claim.SessionID)
	}

	_, err = coord.Acquire(ctx, "repo-a", "src/auth.go", "session-b", 10*time.Minute)
	var conflict *domain.ClaimConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ClaimConflictError, got: %v", err)
	}
	if conflict.HolderID != "session-a" {
		t.Errorf("Expected conflict to name session-a, got %s", conflict.HolderID)
	}
	if conflict.RemainingTTL <= 0 || conflict.RemainingTTL > 10*time.Minute {
		t.Errorf("Expected remaining TTL within (0, 10m], got %v", conflict.RemainingTTL)
	}

	// A different path is independent.
	if _, err := coord.Acquire(ctx, "repo-a", "src/other.go", "session-b", 10*time.Minute); err != nil {
		t.Errorf("Acquire on a different path failed: %v", err)
	}
}

func TestCoordinator_ReacquireBySameSessionExtends(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	coord.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	second, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("Re-acquire failed: %v", err)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("Expected re-acquire to extend expiry: %v vs %v", second.ExpiresAt, first.ExpiresAt)
	}
	if second.Version != first.Version+1 {
		t.Errorf("Expected version bump on renewal, got %d after %d", second.Version, first.Version)
	}
}

func TestCoordinator_ExpiredClaimIsReclaimable(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Advance past the expiry; session-b may now take the claim.
	coord.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	claim, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-b", 10*time.Minute)
	if err != nil {
		t.Fatalf("Expected reclaim of expired claim, got: %v", err)
	}
	if claim.SessionID != "session-b" {
		t.Errorf("Expected session-b to hold the reclaimed path, got %s", claim.SessionID)
	}
}

func TestCoordinator_Acquire_Validation(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.Acquire(ctx, "", "p", "s", time.Minute); err == nil {
		t.Error("Expected error for missing repo_id")
	}
	if _, err := coord.Acquire(ctx, "r", "", "s", time.Minute); err == nil {
		t.Error("Expected error for missing path")
	}
	if _, err := coord.Acquire(ctx, "r", "p", "", time.Minute); err == nil {
		t.Error("Expected error for missing session_id")
	}
}

func TestCoordinator_Acquire_DefaultTTL(t *testing.T) {
	coord := newTestCoordinator(t)

	claim, err := coord.Acquire(context.Background(), "repo-a", "src/auth.go", "session-a", 0)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	lease := claim.ExpiresAt.Sub(claim.ClaimedAt)
	if lease != 10*time.Minute {
		t.Errorf("Expected default 10m lease, got %v", lease)
	}
}

func TestCoordinator_Renew(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	renewed, err := coord.Renew(ctx, "repo-a", "src/auth.go", "session-a", 20*time.Minute)
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if renewed.SessionID != "session-a" {
		t.Errorf("Expected session-a to keep the claim, got %s", renewed.SessionID)
	}

	// Another session cannot renew.
	_, err = coord.Renew(ctx, "repo-a", "src/auth.go", "session-b", 10*time.Minute)
	var conflict *domain.ClaimConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Expected ClaimConflictError for foreign renew, got: %v", err)
	}

	// Renew of an unclaimed path fails.
	_, err = coord.Renew(ctx, "repo-a", "src/unclaimed.go", "session-a", 10*time.Minute)
	if !errors.Is(err, ErrNotHeld) {
		t.Errorf("Expected ErrNotHeld, got: %v", err)
	}
}

func TestCoordinator_Renew_ExpiredClaim(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	coord.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err := coord.Renew(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute)
	if !errors.Is(err, ErrNotHeld) {
		t.Errorf("Expected ErrNotHeld for expired claim, got: %v", err)
	}
}

func TestCoordinator_Release(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Only the holder can release.
	err := coord.Release(ctx, "repo-a", "src/auth.go", "session-b")
	if !errors.Is(err, ErrNotHeld) {
		t.Errorf("Expected ErrNotHeld for foreign release, got: %v", err)
	}

	if err := coord.Release(ctx, "repo-a", "src/auth.go", "session-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Released paths are immediately acquirable and re-release is a no-op.
	if _, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-b", 10*time.Minute); err != nil {
		t.Errorf("Acquire after release failed: %v", err)
	}
	if err := coord.Release(ctx, "repo-a", "src/never-claimed.go", "session-a"); err != nil {
		t.Errorf("Expected idempotent release of unclaimed path, got: %v", err)
	}
}

func TestCoordinator_Holder(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	holder, err := coord.Holder(ctx, "repo-a", "src/auth.go")
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if holder != nil {
		t.Errorf("Expected nil holder for unclaimed path, got %+v", holder)
	}

	if _, err := coord.Acquire(ctx, "repo-a", "src/auth.go", "session-a", 10*time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	holder, err = coord.Holder(ctx, "repo-a", "src/auth.go")
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if holder == nil || holder.SessionID != "session-a" {
		t.Errorf("Expected session-a as holder, got %+v", holder)
	}

	// An expired claim has no holder.
	coord.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	holder, err = coord.Holder(ctx, "repo-a", "src/auth.go")
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if holder != nil {
		t.Errorf("Expected nil holder after expiry, got %+v", holder)
	}
}
