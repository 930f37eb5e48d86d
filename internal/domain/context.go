package domain

import "time"

// FragmentKind classifies the granularity of a retrievable fragment.
type FragmentKind string

const (
	FragmentKindFile   FragmentKind = "file"
	FragmentKindSymbol FragmentKind = "symbol"
	FragmentKindChunk  FragmentKind = "chunk"
)

// Fragment is a unit of retrievable content with a precomputed embedding.
// Fragments are immutable once stored; re-indexing replaces them wholesale
// under a new index version.
type Fragment struct {
	// ID uniquely identifies the fragment within a repository.
	// Format: "<repo_id>/<path>#<start>-<end>"
	ID string `json:"id"`

	// RepoID is the repository the fragment belongs to.
	RepoID string `json:"repo_id"`

	// Path is the file path relative to the repository root.
	Path string `json:"path"`

	// Kind is the fragment granularity: file, symbol, or chunk.
	Kind FragmentKind `json:"kind"`

	// Text is the fragment content used for indexing and inclusion.
	Text string `json:"text"`

	// Vector is the fixed-dimension embedding of Text (document mode).
	Vector []float32 `json:"vector,omitempty"`

	// StartLine and EndLine locate the fragment within Path (1-based,
	// inclusive). A whole-file fragment spans 1..line count.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// TokenCount is the precomputed token count of Text. Zero means
	// unknown; the compiler estimates it.
	TokenCount int `json:"token_count"`
}

// SymbolKind classifies a named code entity.
type SymbolKind string

const (
	SymbolKindFunction SymbolKind = "function"
	SymbolKindMethod   SymbolKind = "method"
	SymbolKindClass    SymbolKind = "class"
	SymbolKindType     SymbolKind = "type"
	SymbolKindVariable SymbolKind = "variable"
)

// Symbol is a named code entity produced by an upstream parser.
// The engine consumes symbols read-only.
type Symbol struct {
	ID        string     `json:"id"`
	RepoID    string     `json:"repo_id"`
	Path      string     `json:"path"`
	Kind      SymbolKind `json:"kind"`
	Name      string     `json:"name"`
	Signature string     `json:"signature,omitempty"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
}

// RankedCandidate is the ephemeral result of one hybrid retrieval call.
// Rank positions are 1-based; zero means the fragment was absent from
// that ranking.
type RankedCandidate struct {
	FragmentID  string  `json:"fragment_id"`
	LexicalRank int     `json:"lexical_rank"`
	VectorRank  int     `json:"vector_rank"`
	FusedScore  float64 `json:"fused_score"`
}

// Section is one included fragment in a handoff artifact, ordered by
// descending fused score.
type Section struct {
	FragmentID   string `json:"fragment_id"`
	IncludedText string `json:"included_text"`
	Reason       string `json:"reason"`
	TokenCount   int    `json:"token_count"`
}

// Citation makes a section traceable to a stored fragment.
type Citation struct {
	FragmentID string `json:"fragment_id"`
	Path       string `json:"path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// HandoffArtifact is the compiled, budget-constrained context package
// for one task. Artifacts are immutable; later compilations for the same
// task supersede, never mutate, earlier ones.
type HandoffArtifact struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	RepoID        string     `json:"repo_id"`
	Query         string     `json:"query"`
	Sections      []Section  `json:"sections"`
	Citations     []Citation `json:"citations"`
	TokenEstimate int        `json:"token_estimate"`
	BudgetTokens  int        `json:"budget_tokens"`

	// Underfilled is set when candidates were offered but none fit the
	// budget. An underfilled artifact is well-formed, not an error.
	Underfilled bool `json:"underfilled"`

	CreatedAt time.Time `json:"created_at"`
}

// Bleve field name constants for the fragment index.
const (
	FragmentFieldID      = "id"
	FragmentFieldRepoID  = "repo_id"
	FragmentFieldPath    = "path"
	FragmentFieldKind    = "kind"
	FragmentFieldText    = "text"
	FragmentFieldSymbols = "symbols"
)

// Overlaps reports whether two fragments cover overlapping line ranges
// of the same file.
func (f *Fragment) Overlaps(other *Fragment) bool {
	if f.RepoID != other.RepoID || f.Path != other.Path {
		return false
	}
	return f.StartLine <= other.EndLine && other.StartLine <= f.EndLine
}
