// Package store provides the durable keyed collections backing the
// engine: point lookups, prefix scans, conditional writes, TTL entries,
// and a vector-similarity query primitive.
package store

import (
	"context"
	"time"
)

// Collection name constants. Collections map to key prefixes in the
// backing database.
const (
	CollectionFragments = "fragments"
	CollectionSymbols   = "symbols"
	CollectionHandoffs  = "handoffs"
	CollectionRuns      = "runs"
	CollectionClaims    = "claims"
	CollectionMeta      = "meta"
)

// KeyCurrentIndexVersion is the meta key holding the current index
// version pointer. Re-indexing writes fragments under a fresh version
// tag and flips this pointer atomically, so concurrent searches never
// observe a partial index.
const KeyCurrentIndexVersion = "current_index_version"

// IndexVersion is the meta record behind KeyCurrentIndexVersion.
type IndexVersion struct {
	Tag           string    `json:"tag"`
	FragmentCount int       `json:"fragment_count"`
	SymbolCount   int       `json:"symbol_count"`
	CreatedAt     time.Time `json:"created_at"`
	Version       uint64    `json:"version"`
}

// VectorMatch is one result of a vector-similarity query.
type VectorMatch struct {
	Key   string
	Score float64
}

// Store is the persistence contract the engine requires. Implementations
// must make AtomicUpdate a single conditional write: the new value is
// stored only if the current record version equals expectedVersion.
type Store interface {
	// Get unmarshals the value at (collection, key) into out.
	// Returns domain.ErrNotFound if the key does not exist.
	Get(ctx context.Context, collection, key string, out any) error

	// Put stores value at (collection, key), overwriting any existing
	// value unconditionally.
	Put(ctx context.Context, collection, key string, value any) error

	// PutWithTTL stores value with an advisory expiry. The entry is
	// deleted by the store after ttl elapses; callers must still
	// re-check logical expiry on read.
	PutWithTTL(ctx context.Context, collection, key string, value any, ttl time.Duration) error

	// Delete removes the value at (collection, key). Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Query scans all entries in collection whose key starts with
	// prefix, invoking fn for each. Returning an error from fn stops
	// the scan.
	Query(ctx context.Context, collection, prefix string, fn func(key string, value []byte) error) error

	// AtomicUpdate writes value at (collection, key) only if the stored
	// record's version equals expectedVersion (0 means the key must not
	// exist). Returns domain.ErrVersionMismatch otherwise.
	AtomicUpdate(ctx context.Context, collection, key string, expectedVersion uint64, value any) error

	// AtomicUpdateWithTTL is AtomicUpdate with an advisory expiry on
	// the written entry.
	AtomicUpdateWithTTL(ctx context.Context, collection, key string, expectedVersion uint64, value any, ttl time.Duration) error

	// VectorQuery returns the topN entries of collection under prefix
	// most similar to vector by cosine similarity, ordered by
	// descending score with ties broken by key.
	VectorQuery(ctx context.Context, collection, prefix string, vector []float32, topN int) ([]VectorMatch, error)

	// Close releases all resources.
	Close() error
}

// versionEnvelope extracts the version counter from a stored record
// without knowing its full shape.
type versionEnvelope struct {
	Version uint64 `json:"version"`
}

// vectorEnvelope extracts the embedding from a stored record for
// similarity scans.
type vectorEnvelope struct {
	Vector []float32 `json:"vector"`
}
