package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic local embedder based on feature
// hashing: each token is hashed into one of Dimensions buckets and the
// resulting counts are L2-normalized. It needs no network access and is
// the fallback when no embedding provider is configured; it is also the
// test double. Two texts sharing tokens get proportionally similar
// vectors, which is enough for the engine's own behavior to be
// exercised end to end.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder with the given vector length.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed implements Embedder. The mode is deliberately ignored: hashed
// queries and documents live in the same space.
func (e *HashEmbedder) Embed(_ context.Context, text string, _ Mode) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// tokenize splits text into lowercased identifier-ish tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
