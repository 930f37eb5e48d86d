// Package ingest loads already-structured fragment and symbol records
// into the store and the lexical index. Records come from an upstream
// parser; the engine does not walk file systems or parse source.
//
// Each ingest writes under a fresh index version tag and flips the
// current-version pointer atomically, so concurrent searches never see
// a partially written index.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/embeddings"
	"github.com/ccxlabs/mcp-context-server/internal/retrieval"
	"github.com/ccxlabs/mcp-context-server/internal/store"
	"github.com/ccxlabs/mcp-context-server/internal/tokens"
)

// Batch is one repository's worth of records to ingest. Fragments for
// the batch's repository replace that repository's previous fragments
// wholesale; other repositories' fragments carry forward unchanged.
type Batch struct {
	RepoID    string
	Fragments []domain.Fragment
	Symbols   []domain.Symbol
}

// Ingestor coordinates embedding, storage, index build, and the
// version flip.
type Ingestor struct {
	store    store.Store
	embedder embeddings.Embedder
	lexical  *retrieval.LexicalIndex
	engine   *retrieval.Engine
	counter  *tokens.Counter
}

// NewIngestor creates an ingestor. The engine is reloaded after every
// successful version flip; it may be nil in tests.
func NewIngestor(st store.Store, embedder embeddings.Embedder, lexical *retrieval.LexicalIndex, engine *retrieval.Engine, counter *tokens.Counter) *Ingestor {
	return &Ingestor{
		store:    st,
		embedder: embedder,
		lexical:  lexical,
		engine:   engine,
		counter:  counter,
	}
}

// Ingest loads a batch and returns the new current index version.
func (in *Ingestor) Ingest(ctx context.Context, batch Batch) (*store.IndexVersion, error) {
	if batch.RepoID == "" {
		return nil, fmt.Errorf("repo_id is required")
	}
	for i := range batch.Fragments {
		if batch.Fragments[i].RepoID == "" {
			batch.Fragments[i].RepoID = batch.RepoID
		}
		if batch.Fragments[i].RepoID != batch.RepoID {
			return nil, fmt.Errorf("fragment %s belongs to repo %q, batch is for %q",
				batch.Fragments[i].ID, batch.Fragments[i].RepoID, batch.RepoID)
		}
	}

	if err := in.prepare(ctx, batch.Fragments); err != nil {
		return nil, err
	}

	previous, err := in.currentVersion(ctx)
	if err != nil {
		return nil, err
	}

	fragments, symbols, err := in.carryForward(ctx, previous, batch)
	if err != nil {
		return nil, err
	}

	tag := uuid.NewString()
	if err := in.writeVersion(ctx, tag, fragments, symbols); err != nil {
		in.cleanup(ctx, tag)
		return nil, err
	}

	next := store.IndexVersion{
		Tag:           tag,
		FragmentCount: len(fragments),
		SymbolCount:   len(symbols),
		CreatedAt:     time.Now().UTC(),
	}
	var expected uint64
	if previous != nil {
		expected = previous.Version
	}
	next.Version = expected + 1

	if err := in.store.AtomicUpdate(ctx, store.CollectionMeta, store.KeyCurrentIndexVersion, expected, &next); err != nil {
		in.cleanup(ctx, tag)
		return nil, fmt.Errorf("failed to flip index version: %w", err)
	}

	if in.engine != nil {
		if err := in.engine.Reload(ctx); err != nil {
			slog.Error("Failed to reload retrieval engine after ingest", "error", err)
		}
	}

	if previous != nil {
		in.cleanup(ctx, previous.Tag)
	}

	slog.Info("Ingest complete", "repo_id", batch.RepoID, "tag", tag,
		"fragments", len(fragments), "symbols", len(symbols))
	return &next, nil
}

// prepare fills in missing embeddings and token counts on the new
// fragments.
func (in *Ingestor) prepare(ctx context.Context, fragments []domain.Fragment) error {
	for i := range fragments {
		f := &fragments[i]
		if f.ID == "" {
			return fmt.Errorf("fragment at index %d has no id", i)
		}
		if f.TokenCount == 0 {
			f.TokenCount = in.counter.Count(f.Text)
		}
		if len(f.Vector) == 0 && in.embedder != nil {
			vec, err := in.embedder.Embed(ctx, f.Text, embeddings.ModeDocument)
			if err != nil {
				return fmt.Errorf("failed to embed fragment %s: %w", f.ID, err)
			}
			f.Vector = vec
		}
	}
	return nil
}

// currentVersion reads the current version pointer, or nil when no
// ingest has happened yet.
func (in *Ingestor) currentVersion(ctx context.Context) (*store.IndexVersion, error) {
	var version store.IndexVersion
	err := in.store.Get(ctx, store.CollectionMeta, store.KeyCurrentIndexVersion, &version)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index version: %w", err)
	}
	return &version, nil
}

// carryForward merges the batch with the previous version's records
// for other repositories.
func (in *Ingestor) carryForward(ctx context.Context, previous *store.IndexVersion, batch Batch) ([]domain.Fragment, []domain.Symbol, error) {
	fragments := append([]domain.Fragment(nil), batch.Fragments...)
	symbols := append([]domain.Symbol(nil), batch.Symbols...)

	if previous == nil {
		return fragments, symbols, nil
	}

	err := in.store.Query(ctx, store.CollectionFragments, previous.Tag+"/", func(key string, value []byte) error {
		var f domain.Fragment
		if err := json.Unmarshal(value, &f); err != nil {
			return err
		}
		if f.RepoID != batch.RepoID {
			fragments = append(fragments, f)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to carry forward fragments: %w", err)
	}

	err = in.store.Query(ctx, store.CollectionSymbols, previous.Tag+"/", func(key string, value []byte) error {
		var s domain.Symbol
		if err := json.Unmarshal(value, &s); err != nil {
			return err
		}
		if s.RepoID != batch.RepoID {
			symbols = append(symbols, s)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to carry forward symbols: %w", err)
	}

	return fragments, symbols, nil
}

// writeVersion persists all records under the new tag and builds its
// lexical index.
func (in *Ingestor) writeVersion(ctx context.Context, tag string, fragments []domain.Fragment, symbols []domain.Symbol) error {
	for i := range fragments {
		key := tag + "/" + fragments[i].ID
		if err := in.store.Put(ctx, store.CollectionFragments, key, &fragments[i]); err != nil {
			return fmt.Errorf("failed to store fragment %s: %w", fragments[i].ID, err)
		}
	}
	for i := range symbols {
		key := tag + "/" + symbols[i].ID
		if err := in.store.Put(ctx, store.CollectionSymbols, key, &symbols[i]); err != nil {
			return fmt.Errorf("failed to store symbol %s: %w", symbols[i].ID, err)
		}
	}

	index, err := in.lexical.Create(tag)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := index.Close(); cerr != nil {
			slog.Error("Failed to close index after build", "tag", tag, "error", cerr)
		}
	}()

	return in.lexical.IndexFragments(index, fragments, symbolNames(fragments, symbols))
}

// symbolNames maps each fragment ID to the space-joined names of
// symbols overlapping its span, used for the boosted symbols field.
func symbolNames(fragments []domain.Fragment, symbols []domain.Symbol) map[string]string {
	names := make(map[string]string, len(fragments))
	for i := range fragments {
		f := &fragments[i]
		var matched []string
		for j := range symbols {
			s := &symbols[j]
			if s.RepoID != f.RepoID || s.Path != f.Path {
				continue
			}
			if s.StartLine <= f.EndLine && f.StartLine <= s.EndLine {
				matched = append(matched, s.Name)
			}
		}
		if len(matched) > 0 {
			names[f.ID] = strings.Join(matched, " ")
		}
	}
	return names
}

// cleanup removes a version's records and index. Failures are logged,
// not fatal: an orphaned version is garbage, not corruption.
func (in *Ingestor) cleanup(ctx context.Context, tag string) {
	var keys []string
	_ = in.store.Query(ctx, store.CollectionFragments, tag+"/", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	for _, key := range keys {
		if err := in.store.Delete(ctx, store.CollectionFragments, key); err != nil {
			slog.Warn("Failed to delete stale fragment", "key", key, "error", err)
		}
	}

	keys = keys[:0]
	_ = in.store.Query(ctx, store.CollectionSymbols, tag+"/", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	for _, key := range keys {
		if err := in.store.Delete(ctx, store.CollectionSymbols, key); err != nil {
			slog.Warn("Failed to delete stale symbol", "key", key, "error", err)
		}
	}

	if err := in.lexical.Delete(tag); err != nil {
		slog.Warn("Failed to delete stale index", "tag", tag, "error", err)
	}
}
