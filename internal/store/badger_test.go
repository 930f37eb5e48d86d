package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

type record struct {
	Name    string    `json:"name"`
	Vector  []float32 `json:"vector,omitempty"`
	Version uint64    `json:"version"`
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	st, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return st
}

func TestBadgerStore_PutGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := record{Name: "alpha", Version: 1}
	if err := st.Put(ctx, CollectionMeta, "key1", &in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var out record
	if err := st.Get(ctx, CollectionMeta, "key1", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.Name != "alpha" {
		t.Errorf("Expected name 'alpha', got '%s'", out.Name)
	}
}

func TestBadgerStore_GetMissing(t *testing.T) {
	st := newTestStore(t)

	var out record
	err := st.Get(context.Background(), CollectionMeta, "missing", &out)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestBadgerStore_CollectionsAreIsolated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, CollectionRuns, "shared-key", &record{Name: "run"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put(ctx, CollectionClaims, "shared-key", &record{Name: "claim"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var out record
	if err := st.Get(ctx, CollectionRuns, "shared-key", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.Name != "run" {
		t.Errorf("Expected 'run' from runs collection, got '%s'", out.Name)
	}
}

func TestBadgerStore_Delete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, CollectionMeta, "key1", &record{Name: "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Delete(ctx, CollectionMeta, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var out record
	if err := st.Get(ctx, CollectionMeta, "key1", &out); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}

	// Deleting a missing key is not an error
	if err := st.Delete(ctx, CollectionMeta, "never-existed"); err != nil {
		t.Errorf("Expected no error deleting missing key, got: %v", err)
	}
}

func TestBadgerStore_QueryPrefix(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("tag-a/frag-%d", i)
		if err := st.Put(ctx, CollectionFragments, key, &record{Name: key}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := st.Put(ctx, CollectionFragments, "tag-b/frag-0", &record{Name: "other"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var keys []string
	err := st.Query(ctx, CollectionFragments, "tag-a/", func(key string, value []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("Expected 3 keys under tag-a/, got %d: %v", len(keys), keys)
	}
}

func TestBadgerStore_QueryStopsOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := st.Put(ctx, CollectionFragments, fmt.Sprintf("k%d", i), &record{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	sentinel := errors.New("stop here")
	seen := 0
	err := st.Query(ctx, CollectionFragments, "", func(key string, value []byte) error {
		seen++
		if seen == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected callback error to propagate, got: %v", err)
	}
	if seen != 2 {
		t.Errorf("Expected scan to stop after 2 entries, saw %d", seen)
	}
}

func TestBadgerStore_AtomicUpdate_CreateAndBump(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// expectedVersion 0 means the key must not exist
	v1 := record{Name: "first", Version: 1}
	if err := st.AtomicUpdate(ctx, CollectionRuns, "run-1", 0, &v1); err != nil {
		t.Fatalf("Initial AtomicUpdate failed: %v", err)
	}

	v2 := record{Name: "second", Version: 2}
	if err := st.AtomicUpdate(ctx, CollectionRuns, "run-1", 1, &v2); err != nil {
		t.Fatalf("Conditional AtomicUpdate failed: %v", err)
	}

	var out record
	if err := st.Get(ctx, CollectionRuns, "run-1", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.Name != "second" || out.Version != 2 {
		t.Errorf("Expected second/2, got %s/%d", out.Name, out.Version)
	}
}

func TestBadgerStore_AtomicUpdate_VersionMismatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.AtomicUpdate(ctx, CollectionRuns, "run-1", 0, &record{Version: 1}); err != nil {
		t.Fatalf("Initial AtomicUpdate failed: %v", err)
	}

	// Wrong expected version loses
	err := st.AtomicUpdate(ctx, CollectionRuns, "run-1", 5, &record{Version: 6})
	if !errors.Is(err, domain.ErrVersionMismatch) {
		t.Errorf("Expected ErrVersionMismatch, got: %v", err)
	}

	// Create-only write against an existing key loses
	err = st.AtomicUpdate(ctx, CollectionRuns, "run-1", 0, &record{Version: 1})
	if !errors.Is(err, domain.ErrVersionMismatch) {
		t.Errorf("Expected ErrVersionMismatch for create on existing key, got: %v", err)
	}

	// Missing key with non-zero expected version loses
	err = st.AtomicUpdate(ctx, CollectionRuns, "run-2", 3, &record{Version: 4})
	if !errors.Is(err, domain.ErrVersionMismatch) {
		t.Errorf("Expected ErrVersionMismatch for missing key, got: %v", err)
	}
}

func TestBadgerStore_PutWithTTL_Expires(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.PutWithTTL(ctx, CollectionClaims, "lease", &record{Name: "short"}, 50*time.Millisecond); err != nil {
		t.Fatalf("PutWithTTL failed: %v", err)
	}

	var out record
	if err := st.Get(ctx, CollectionClaims, "lease", &out); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := st.Get(ctx, CollectionClaims, "lease", &out); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after TTL, got: %v", err)
	}
}

func TestBadgerStore_VectorQuery_OrderAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"tag/a": {1, 0, 0},
		"tag/b": {0.9, 0.1, 0},
		"tag/c": {0, 1, 0},
		"tag/d": {0, 0, 1},
	}
	for key, vec := range vectors {
		if err := st.Put(ctx, CollectionFragments, key, &record{Name: key, Vector: vec}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	matches, err := st.VectorQuery(ctx, CollectionFragments, "tag/", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorQuery failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Key != "tag/a" {
		t.Errorf("Expected best match tag/a, got %s", matches[0].Key)
	}
	if matches[1].Key != "tag/b" {
		t.Errorf("Expected second match tag/b, got %s", matches[1].Key)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("Expected matches ordered by descending score")
	}
}

func TestBadgerStore_VectorQuery_SkipsDimensionMismatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, CollectionFragments, "tag/good", &record{Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put(ctx, CollectionFragments, "tag/bad", &record{Vector: []float32{1, 0, 0}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put(ctx, CollectionFragments, "tag/none", &record{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	matches, err := st.VectorQuery(ctx, CollectionFragments, "tag/", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("VectorQuery failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Key != "tag/good" {
		t.Errorf("Expected only tag/good, got %v", matches)
	}
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := st.Put(ctx, CollectionMeta, "k", &record{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Put, got: %v", err)
	}
	var out record
	if err := st.Get(ctx, CollectionMeta, "k", &out); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Get, got: %v", err)
	}
}
