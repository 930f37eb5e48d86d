// Package claims grants time-bounded exclusive edit leases on file
// paths. A claim is plain data plus a conditional store write, not a
// distributed lock: expiry is advisory-enforced by the store's TTL and
// re-checked here on every acquire, so a crashed holder blocks others
// for at most one TTL window.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

// ErrNotHeld indicates a release or renew by a session that does not
// hold a live claim on the path.
var ErrNotHeld = errors.New("claim not held by session")

// Coordinator manages file claims against the store.
type Coordinator struct {
	store      store.Store
	defaultTTL time.Duration

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewCoordinator creates a claim coordinator. defaultTTL applies when a
// caller passes a non-positive ttl.
func NewCoordinator(st store.Store, defaultTTL time.Duration) *Coordinator {
	return &Coordinator{
		store:      st,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func claimKey(repoID, path string) string {
	return repoID + "/" + path
}

// Acquire grants an exclusive claim on (repoID, path) to sessionID, or
// fails with a ClaimConflictError carrying the holder and remaining TTL
// so the caller can decide to wait, queue, or abort. Acquiring a path
// already held by the same session is an idempotent renewal. Expired
// claims are reclaimable by anyone.
func (c *Coordinator) Acquire(ctx context.Context, repoID, path, sessionID string, ttl time.Duration) (*domain.FileClaim, error) {
	if repoID == "" || path == "" || sessionID == "" {
		return nil, fmt.Errorf("repo_id, path, and session_id are required")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now().UTC()
	key := claimKey(repoID, path)

	var existing domain.FileClaim
	err := c.store.Get(ctx, store.CollectionClaims, key, &existing)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.write(ctx, key, repoID, path, sessionID, now, ttl, 0)

	case err != nil:
		return nil, err

	case existing.Expired(now):
		// Reclaim: the previous holder's expiry has passed.
		return c.write(ctx, key, repoID, path, sessionID, now, ttl, existing.Version)

	case existing.SessionID == sessionID:
		// Idempotent renewal.
		return c.extend(ctx, key, &existing, now, ttl)

	default:
		return nil, &domain.ClaimConflictError{
			RepoID:       repoID,
			Path:         path,
			HolderID:     existing.SessionID,
			RemainingTTL: existing.Remaining(now),
		}
	}
}

// Renew extends the expiry of a live claim held by sessionID.
func (c *Coordinator) Renew(ctx context.Context, repoID, path, sessionID string, ttl time.Duration) (*domain.FileClaim, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now().UTC()
	key := claimKey(repoID, path)

	var existing domain.FileClaim
	err := c.store.Get(ctx, store.CollectionClaims, key, &existing)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%s/%s: %w", repoID, path, ErrNotHeld)
	case err != nil:
		return nil, err
	case existing.Expired(now):
		return nil, fmt.Errorf("%s/%s: claim expired: %w", repoID, path, ErrNotHeld)
	case existing.SessionID != sessionID:
		return nil, &domain.ClaimConflictError{
			RepoID:       repoID,
			Path:         path,
			HolderID:     existing.SessionID,
			RemainingTTL: existing.Remaining(now),
		}
	}
	return c.extend(ctx, key, &existing, now, ttl)
}

// Release deletes the claim, but only if sessionID holds it. There is
// no cross-session release.
func (c *Coordinator) Release(ctx context.Context, repoID, path, sessionID string) error {
	key := claimKey(repoID, path)

	var existing domain.FileClaim
	err := c.store.Get(ctx, store.CollectionClaims, key, &existing)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil // already gone, release is idempotent
	case err != nil:
		return err
	case existing.SessionID != sessionID:
		return fmt.Errorf("%s/%s held by session %s: %w", repoID, path, existing.SessionID, ErrNotHeld)
	}
	return c.store.Delete(ctx, store.CollectionClaims, key)
}

// Holder returns the live claim on (repoID, path), or nil when
// unclaimed or expired.
func (c *Coordinator) Holder(ctx context.Context, repoID, path string) (*domain.FileClaim, error) {
	var existing domain.FileClaim
	err := c.store.Get(ctx, store.CollectionClaims, claimKey(repoID, path), &existing)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Expired(c.now().UTC()) {
		return nil, nil
	}
	return &existing, nil
}

// write installs a fresh claim with a conditional store write. A racing
// acquirer surfaces as a conflict rather than a lost update.
func (c *Coordinator) write(ctx context.Context, key, repoID, path, sessionID string, now time.Time, ttl time.Duration, expectedVersion uint64) (*domain.FileClaim, error) {
	claim := &domain.FileClaim{
		RepoID:    repoID,
		Path:      path,
		SessionID: sessionID,
		ClaimedAt: now,
		ExpiresAt: now.Add(ttl),
		Version:   expectedVersion + 1,
	}
	err := c.store.AtomicUpdateWithTTL(ctx, store.CollectionClaims, key, expectedVersion, claim, ttl)
	if errors.Is(err, domain.ErrVersionMismatch) {
		return nil, c.conflictFor(ctx, key, repoID, path, now)
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// extend pushes out the expiry of an existing claim.
func (c *Coordinator) extend(ctx context.Context, key string, existing *domain.FileClaim, now time.Time, ttl time.Duration) (*domain.FileClaim, error) {
	renewed := *existing
	renewed.ExpiresAt = now.Add(ttl)
	renewed.Version = existing.Version + 1

	err := c.store.AtomicUpdateWithTTL(ctx, store.CollectionClaims, key, existing.Version, &renewed, ttl)
	if errors.Is(err, domain.ErrVersionMismatch) {
		return nil, c.conflictFor(ctx, key, renewed.RepoID, renewed.Path, now)
	}
	if err != nil {
		return nil, err
	}
	return &renewed, nil
}

// conflictFor re-reads after a lost race to report the winning holder.
func (c *Coordinator) conflictFor(ctx context.Context, key, repoID, path string, now time.Time) error {
	var winner domain.FileClaim
	if err := c.store.Get(ctx, store.CollectionClaims, key, &winner); err != nil {
		return &domain.ClaimConflictError{RepoID: repoID, Path: path, HolderID: "unknown"}
	}
	return &domain.ClaimConflictError{
		RepoID:       repoID,
		Path:         path,
		HolderID:     winner.SessionID,
		RemainingTTL: winner.Remaining(now),
	}
}
