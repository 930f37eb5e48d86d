package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// Gate adapts an Evaluator into a run completion gate: the plan is the
// query and context, the recorded step summaries are the response.
type Gate struct {
	evaluator Evaluator
}

// NewGate wraps an evaluator for run completion checks.
func NewGate(evaluator Evaluator) *Gate {
	return &Gate{evaluator: evaluator}
}

// Approve implements runstate.CompletionGate.
func (g *Gate) Approve(ctx context.Context, run *domain.Run) (bool, string, error) {
	var planLines, resultLines []string
	for _, step := range run.Plan {
		planLines = append(planLines, fmt.Sprintf("%s: %s", step.Kind, step.Description))
	}
	for _, result := range run.StepResults {
		if result.Summary != "" {
			resultLines = append(resultLines, result.Summary)
		}
	}

	query := run.RepoID
	if len(run.Plan) > 0 {
		query = run.Plan[0].Description
	}

	result, err := g.evaluator.Score(ctx, query, strings.Join(planLines, "\n"), strings.Join(resultLines, "\n"))
	if err != nil {
		return false, "", err
	}
	if !result.Passed {
		return false, fmt.Sprintf("completion gate rejected run: failed metrics %s",
			strings.Join(result.FailedMetrics, ", ")), nil
	}
	return true, "", nil
}
