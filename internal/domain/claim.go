package domain

import "time"

// FileClaim is a time-bounded exclusive edit lease on one file path.
// At most one live (non-expired) claim exists per (repo_id, path).
// Expiry is advisory-enforced by the store and re-checked on acquire,
// so a crashed holder blocks others for at most one TTL window.
type FileClaim struct {
	RepoID    string    `json:"repo_id"`
	Path      string    `json:"path"`
	SessionID string    `json:"session_id"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Version supports conditional writes against the store.
	Version uint64 `json:"version"`
}

// Expired reports whether the claim has passed its expiry at the given
// instant.
func (c *FileClaim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Remaining returns the TTL left at the given instant, or zero if
// expired.
func (c *FileClaim) Remaining(now time.Time) time.Duration {
	if c.Expired(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
