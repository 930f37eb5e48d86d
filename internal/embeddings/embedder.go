// Package embeddings provides the embedding collaborator contract and
// its implementations. Retrieval is asymmetric: queries and documents
// are embedded in distinct modes.
package embeddings

import "context"

// Mode distinguishes query-time from indexing-time embedding.
type Mode string

const (
	ModeQuery    Mode = "query"
	ModeDocument Mode = "document"
)

// Embedder produces fixed-length float vectors for text.
type Embedder interface {
	// Embed returns the embedding of text in the given mode.
	Embed(ctx context.Context, text string, mode Mode) ([]float32, error)

	// Dimensions returns the fixed vector length this embedder
	// produces.
	Dimensions() int
}
