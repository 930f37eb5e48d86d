// Package tokens provides tiktoken-based token counting for budget
// accounting.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens in text. The zero-value fallback is a 4-chars-
// per-token estimate, so counting never fails outright.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter using the cl100k_base encoding, which
// approximates all the model families the engine hands context to.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return estimate(text)
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return n
}

// estimate is the character-based fallback: 4 chars per token.
func estimate(text string) int {
	return len(text) / 4
}
