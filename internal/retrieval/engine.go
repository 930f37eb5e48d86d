// Package retrieval implements the hybrid lexical+semantic retrieval
// engine. A query is ranked independently against a bleve full-text
// index and the store's vector-similarity primitive, and the two rank
// lists are fused with reciprocal rank fusion.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/embeddings"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

const (
	// DefaultRRFK is the reciprocal rank fusion smoothing constant.
	DefaultRRFK = 60

	// DefaultFusionDepth is how deep each ranking goes before fusion.
	DefaultFusionDepth = 100
)

// Filters narrows the fragment universe for one search call.
type Filters struct {
	RepoID string
	Kind   domain.FragmentKind
}

// Engine ranks fragments for a query. It is stateless per call beyond
// the swappable index alias; any number of callers may search
// concurrently.
type Engine struct {
	store    store.Store
	embedder embeddings.Embedder
	lexical  *LexicalIndex

	rrfK        int
	fusionDepth int

	alias      bleve.IndexAlias
	current    bleve.Index
	currentTag string
	ready      bool
	mu         sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRRFK overrides the fusion smoothing constant.
func WithRRFK(k int) Option {
	return func(e *Engine) { e.rrfK = k }
}

// WithFusionDepth overrides the per-ranking depth.
func WithFusionDepth(depth int) Option {
	return func(e *Engine) { e.fusionDepth = depth }
}

// NewEngine creates a retrieval engine. The embedder may be nil, in
// which case only the lexical ranking contributes.
func NewEngine(st store.Store, embedder embeddings.Embedder, lexical *LexicalIndex, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		embedder:    embedder,
		lexical:     lexical,
		rrfK:        DefaultRRFK,
		fusionDepth: DefaultFusionDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize loads the current index version and opens its lexical
// index. A missing version pointer is not an error: the engine starts
// empty and becomes ready after the first ingest.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.Reload(ctx)
}

// Reload re-reads the current version pointer and swaps the lexical
// alias to the new version's index. Concurrent searches see either the
// old or the new index, never a mix.
func (e *Engine) Reload(ctx context.Context) error {
	var version store.IndexVersion
	err := e.store.Get(ctx, store.CollectionMeta, store.KeyCurrentIndexVersion, &version)
	if err != nil {
		if isNotFound(err) {
			slog.Info("No index version yet, retrieval starts empty")
			return nil
		}
		return fmt.Errorf("failed to read index version: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready && e.currentTag == version.Tag {
		return nil
	}

	index, err := e.lexical.OpenForRead(version.Tag)
	if err != nil {
		return err
	}

	if e.alias == nil {
		e.alias = bleve.NewIndexAlias(index)
	} else {
		e.alias.Swap([]bleve.Index{index}, []bleve.Index{e.current})
		_ = e.current.Close()
	}

	e.current = index
	e.currentTag = version.Tag
	e.ready = true
	slog.Info("Retrieval index ready", "tag", version.Tag, "fragments", version.FragmentCount)
	return nil
}

// CurrentTag returns the active index version tag, or empty when no
// index has been ingested yet.
func (e *Engine) CurrentTag() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentTag
}

// Search ranks fragments for the query and returns at most k
// candidates ordered by descending fused score. An empty query is a
// caller error; an empty result set is not.
func (e *Engine) Search(ctx context.Context, queryStr string, k int, filters Filters) ([]domain.RankedCandidate, error) {
	if strings.TrimSpace(queryStr) == "" {
		return nil, domain.ErrInvalidQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidQuery)
	}

	e.mu.RLock()
	ready := e.ready
	alias := e.alias
	tag := e.currentTag
	e.mu.RUnlock()

	if !ready {
		return []domain.RankedCandidate{}, nil
	}

	lexicalRanks, err := e.lexicalRanking(alias, queryStr, filters)
	if err != nil {
		return nil, err
	}

	vectorRanks, err := e.vectorRanking(ctx, tag, queryStr, filters)
	if err != nil {
		return nil, err
	}

	fused := e.fuse(lexicalRanks, vectorRanks)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

// lexicalRanking runs the bleve match query and returns fragment ID →
// 1-based rank position.
func (e *Engine) lexicalRanking(alias bleve.IndexAlias, queryStr string, filters Filters) (map[string]int, error) {
	searchReq := bleve.NewSearchRequest(e.buildQuery(queryStr, filters))
	searchReq.Size = e.fusionDepth
	searchReq.Fields = []string{domain.FragmentFieldID}

	results, err := alias.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	ranks := make(map[string]int, len(results.Hits))
	for i, hit := range results.Hits {
		ranks[hit.ID] = i + 1
	}
	return ranks, nil
}

// buildQuery constructs the bleve query: text match OR boosted symbol
// match, conjoined with any filters.
func (e *Engine) buildQuery(queryStr string, filters Filters) query.Query {
	textQuery := bleve.NewMatchQuery(queryStr)
	textQuery.SetField(domain.FragmentFieldText)

	symbolsQuery := bleve.NewMatchQuery(queryStr)
	symbolsQuery.SetField(domain.FragmentFieldSymbols)
	symbolsQuery.SetBoost(5.0)

	searchQuery := bleve.NewDisjunctionQuery(textQuery, symbolsQuery)

	if filters.RepoID == "" && filters.Kind == "" {
		return searchQuery
	}

	must := []query.Query{searchQuery}
	if filters.RepoID != "" {
		repoQuery := bleve.NewTermQuery(filters.RepoID)
		repoQuery.SetField(domain.FragmentFieldRepoID)
		must = append(must, repoQuery)
	}
	if filters.Kind != "" {
		kindQuery := bleve.NewTermQuery(string(filters.Kind))
		kindQuery.SetField(domain.FragmentFieldKind)
		must = append(must, kindQuery)
	}
	return bleve.NewConjunctionQuery(must...)
}

// vectorRanking embeds the query and ranks fragments by similarity.
// Returns fragment ID → 1-based rank position. Without an embedder the
// ranking is empty, which fusion treats as zero contribution.
func (e *Engine) vectorRanking(ctx context.Context, tag, queryStr string, filters Filters) (map[string]int, error) {
	if e.embedder == nil || tag == "" {
		return map[string]int{}, nil
	}

	queryVec, err := e.embedder.Embed(ctx, queryStr, embeddings.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	// Over-fetch when filtering, since matches are filtered after the
	// similarity scan.
	topN := e.fusionDepth
	filtered := filters.RepoID != "" || filters.Kind != ""
	if filtered {
		topN *= 4
	}

	matches, err := e.store.VectorQuery(ctx, store.CollectionFragments, tag+"/", queryVec, topN)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	ranks := make(map[string]int, len(matches))
	pos := 0
	for _, m := range matches {
		fragID := strings.TrimPrefix(m.Key, tag+"/")
		if filtered {
			var frag domain.Fragment
			if err := e.store.Get(ctx, store.CollectionFragments, m.Key, &frag); err != nil {
				continue
			}
			if filters.RepoID != "" && frag.RepoID != filters.RepoID {
				continue
			}
			if filters.Kind != "" && frag.Kind != filters.Kind {
				continue
			}
		}
		pos++
		ranks[fragID] = pos
		if pos >= e.fusionDepth {
			break
		}
	}
	return ranks, nil
}

// fuse combines the two rankings with reciprocal rank fusion: each
// list contributes 1/(κ+position) for fragments it contains, absent
// fragments contribute 0. Ties break by lexical rank, then fragment ID.
func (e *Engine) fuse(lexicalRanks, vectorRanks map[string]int) []domain.RankedCandidate {
	candidates := make(map[string]*domain.RankedCandidate)

	for fragID, rank := range lexicalRanks {
		candidates[fragID] = &domain.RankedCandidate{FragmentID: fragID, LexicalRank: rank}
	}
	for fragID, rank := range vectorRanks {
		c, ok := candidates[fragID]
		if !ok {
			c = &domain.RankedCandidate{FragmentID: fragID}
			candidates[fragID] = c
		}
		c.VectorRank = rank
	}

	fused := make([]domain.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		if c.LexicalRank > 0 {
			score += 1 / float64(e.rrfK+c.LexicalRank)
		}
		if c.VectorRank > 0 {
			score += 1 / float64(e.rrfK+c.VectorRank)
		}
		c.FusedScore = score
		fused = append(fused, *c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		li, lj := effectiveLexicalRank(fused[i]), effectiveLexicalRank(fused[j])
		if li != lj {
			return li < lj
		}
		return fused[i].FragmentID < fused[j].FragmentID
	})
	return fused
}

// effectiveLexicalRank treats absence from the lexical ranking as the
// worst possible position for tie-breaking.
func effectiveLexicalRank(c domain.RankedCandidate) int {
	if c.LexicalRank == 0 {
		return math.MaxInt
	}
	return c.LexicalRank
}

// Close releases the lexical alias.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.alias != nil {
		if err := e.alias.Close(); err != nil {
			return fmt.Errorf("failed to close index alias: %w", err)
		}
		e.alias = nil
	}
	if e.current != nil {
		_ = e.current.Close()
		e.current = nil
	}
	e.ready = false
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
