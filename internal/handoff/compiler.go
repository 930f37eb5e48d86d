// Package handoff compiles ranked retrieval candidates into a bounded,
// citation-backed artifact under a hard token ceiling.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/store"
	"github.com/ccxlabs/mcp-context-server/internal/tokens"
)

// Compiler turns ranked candidates into handoff artifacts. Selection is
// deterministic: no randomness, no wall-clock dependence outside the
// created_at timestamp.
type Compiler struct {
	store   store.Store
	counter *tokens.Counter
}

// NewCompiler creates a compiler.
func NewCompiler(st store.Store, counter *tokens.Counter) *Compiler {
	return &Compiler{store: st, counter: counter}
}

// Compile selects candidates in fused-score order under budgetTokens
// and persists the resulting artifact. Candidates that do not fit are
// skipped, not truncated: a partial fragment would produce a misleading
// citation, and a later, shorter fragment may still fit. Fragments
// overlapping an already-included span are dropped in favor of the
// higher-scored one.
//
// If nothing fits, the artifact comes back well-formed with empty
// sections and Underfilled set; that is a result, not an error.
func (c *Compiler) Compile(ctx context.Context, taskID, query string, candidates []domain.RankedCandidate, budgetTokens int) (*domain.HandoffArtifact, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	if budgetTokens < 0 {
		return nil, fmt.Errorf("budget must be non-negative, got %d", budgetTokens)
	}

	tag, err := c.currentTag(ctx)
	if err != nil {
		return nil, err
	}

	artifact := &domain.HandoffArtifact{
		ID:           uuid.NewString(),
		TaskID:       taskID,
		Query:        query,
		BudgetTokens: budgetTokens,
		Sections:     []domain.Section{},
		Citations:    []domain.Citation{},
		CreatedAt:    time.Now().UTC(),
	}

	var included []*domain.Fragment
	runningTotal := 0

	for _, cand := range candidates {
		frag, err := c.resolveFragment(ctx, tag, cand.FragmentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // superseded between search and compile
			}
			return nil, err
		}

		tokenCount := frag.TokenCount
		if tokenCount == 0 {
			tokenCount = c.counter.Count(frag.Text)
		}

		if runningTotal+tokenCount > budgetTokens {
			continue // skip and keep going; a shorter fragment may fit
		}

		if overlapsAny(frag, included) {
			continue // an earlier, higher-scored fragment covers this span
		}

		included = append(included, frag)
		runningTotal += tokenCount
		if artifact.RepoID == "" {
			artifact.RepoID = frag.RepoID
		}

		artifact.Sections = append(artifact.Sections, domain.Section{
			FragmentID:   frag.ID,
			IncludedText: frag.Text,
			Reason:       selectionReason(cand),
			TokenCount:   tokenCount,
		})
		artifact.Citations = append(artifact.Citations, domain.Citation{
			FragmentID: frag.ID,
			Path:       frag.Path,
			StartLine:  frag.StartLine,
			EndLine:    frag.EndLine,
		})
	}

	artifact.TokenEstimate = runningTotal
	artifact.Underfilled = len(artifact.Sections) == 0 && len(candidates) > 0

	key := taskID + "/" + artifact.ID
	if err := c.store.Put(ctx, store.CollectionHandoffs, key, artifact); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}
	return artifact, nil
}

// Get loads a stored artifact by task and artifact id.
func (c *Compiler) Get(ctx context.Context, taskID, artifactID string) (*domain.HandoffArtifact, error) {
	var artifact domain.HandoffArtifact
	if err := c.store.Get(ctx, store.CollectionHandoffs, taskID+"/"+artifactID, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// currentTag reads the active index version tag. Compilation with no
// index yet yields empty-section artifacts, not an error.
func (c *Compiler) currentTag(ctx context.Context) (string, error) {
	var version store.IndexVersion
	err := c.store.Get(ctx, store.CollectionMeta, store.KeyCurrentIndexVersion, &version)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read index version: %w", err)
	}
	return version.Tag, nil
}

func (c *Compiler) resolveFragment(ctx context.Context, tag, fragmentID string) (*domain.Fragment, error) {
	if tag == "" {
		return nil, domain.ErrNotFound
	}
	var frag domain.Fragment
	if err := c.store.Get(ctx, store.CollectionFragments, tag+"/"+fragmentID, &frag); err != nil {
		return nil, err
	}
	return &frag, nil
}

func overlapsAny(frag *domain.Fragment, included []*domain.Fragment) bool {
	for _, other := range included {
		if frag.Overlaps(other) {
			return true
		}
	}
	return false
}

// selectionReason records why a fragment made the cut, phrased for the
// agent reading the pack.
func selectionReason(c domain.RankedCandidate) string {
	switch {
	case c.LexicalRank > 0 && c.VectorRank > 0:
		return fmt.Sprintf("lexical rank %d, vector rank %d (fused %.5f)", c.LexicalRank, c.VectorRank, c.FusedScore)
	case c.LexicalRank > 0:
		return fmt.Sprintf("lexical rank %d (fused %.5f)", c.LexicalRank, c.FusedScore)
	case c.VectorRank > 0:
		return fmt.Sprintf("vector rank %d (fused %.5f)", c.VectorRank, c.FusedScore)
	default:
		return fmt.Sprintf("fused %.5f", c.FusedScore)
	}
}
