// Package eval scores agent output quality. The three metrics mirror
// the RAG triad: adherence (is the response grounded in the context),
// relevance (is the context relevant to the query), and correctness.
// Scores gate run completion; they are consulted, never enforced
// anywhere else.
package eval

import "context"

// Scores holds the three quality metrics, each in [0, 1].
type Scores struct {
	Adherence   float64 `json:"adherence"`
	Relevance   float64 `json:"relevance"`
	Correctness float64 `json:"correctness"`
}

// Thresholds are the minimum passing scores per metric.
type Thresholds struct {
	Adherence   float64
	Relevance   float64
	Correctness float64
}

// DefaultThresholds pass middling-but-grounded output and reject
// fabrication.
func DefaultThresholds() Thresholds {
	return Thresholds{Adherence: 0.6, Relevance: 0.5, Correctness: 0.6}
}

// Result is one evaluation outcome.
type Result struct {
	Scores        Scores   `json:"scores"`
	Passed        bool     `json:"passed"`
	FailedMetrics []string `json:"failed_metrics,omitempty"`
}

// Evaluator scores a response against its query and context.
type Evaluator interface {
	Score(ctx context.Context, query, contextText, response string) (*Result, error)
}

// apply checks scores against thresholds and fills in the pass/fail
// verdict.
func apply(scores Scores, t Thresholds) *Result {
	result := &Result{Scores: scores, Passed: true}
	if scores.Adherence < t.Adherence {
		result.FailedMetrics = append(result.FailedMetrics, "adherence")
	}
	if scores.Relevance < t.Relevance {
		result.FailedMetrics = append(result.FailedMetrics, "relevance")
	}
	if scores.Correctness < t.Correctness {
		result.FailedMetrics = append(result.FailedMetrics, "correctness")
	}
	result.Passed = len(result.FailedMetrics) == 0
	return result
}
