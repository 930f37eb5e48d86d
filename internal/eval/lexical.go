package eval

import (
	"context"
	"strings"
	"unicode"
)

// LexicalEvaluator is the local fallback when no judge model is
// configured: token-overlap proxies for the three metrics. Crude, but
// deterministic and dependency-free, which is what a gate needs when
// the evaluation service is down or absent.
type LexicalEvaluator struct {
	thresholds Thresholds
}

// NewLexicalEvaluator creates the local evaluator.
func NewLexicalEvaluator(thresholds Thresholds) *LexicalEvaluator {
	return &LexicalEvaluator{thresholds: thresholds}
}

// Score implements Evaluator. Adherence is the share of response tokens
// found in the context; relevance the share of query tokens found in
// the context; correctness their mean, since the local mode has no
// ground truth.
func (e *LexicalEvaluator) Score(_ context.Context, query, contextText, response string) (*Result, error) {
	contextTokens := tokenSet(contextText)

	adherence := overlap(tokenSet(response), contextTokens)
	relevance := overlap(tokenSet(query), contextTokens)
	scores := Scores{
		Adherence:   adherence,
		Relevance:   relevance,
		Correctness: (adherence + relevance) / 2,
	}
	return apply(scores, e.thresholds), nil
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// overlap returns |a ∩ b| / |a|, or 1 when a is empty: an empty
// response can't contradict its context.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 1
	}
	hits := 0
	for token := range a {
		if _, ok := b[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
