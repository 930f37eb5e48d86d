package handoff

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// packHeader is the YAML front matter of a rendered handoff pack.
type packHeader struct {
	Task          string         `yaml:"task"`
	Query         string         `yaml:"query,omitempty"`
	Repo          string         `yaml:"repo,omitempty"`
	TokenEstimate int            `yaml:"token_estimate"`
	BudgetTokens  int            `yaml:"budget_tokens"`
	Underfilled   bool           `yaml:"underfilled,omitempty"`
	CreatedAt     string         `yaml:"created_at"`
	Citations     []packCitation `yaml:"citations"`
}

type packCitation struct {
	Fragment string `yaml:"fragment"`
	Path     string `yaml:"path"`
	Lines    string `yaml:"lines"`
}

// RenderYAML renders the artifact's metadata and citations as YAML.
func RenderYAML(a *domain.HandoffArtifact) (string, error) {
	header := packHeader{
		Task:          a.TaskID,
		Query:         a.Query,
		Repo:          a.RepoID,
		TokenEstimate: a.TokenEstimate,
		BudgetTokens:  a.BudgetTokens,
		Underfilled:   a.Underfilled,
		CreatedAt:     a.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	for _, c := range a.Citations {
		header.Citations = append(header.Citations, packCitation{
			Fragment: c.FragmentID,
			Path:     c.Path,
			Lines:    fmt.Sprintf("%d-%d", c.StartLine, c.EndLine),
		})
	}

	data, err := yaml.Marshal(&header)
	if err != nil {
		return "", fmt.Errorf("failed to render pack header: %w", err)
	}
	return string(data), nil
}

// RenderMarkdown renders the full pack: metadata, then every included
// section with its citation so each claim traces to a stored fragment.
func RenderMarkdown(a *domain.HandoffArtifact) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Handoff: %s\n\n", a.TaskID))
	if a.Query != "" {
		sb.WriteString(fmt.Sprintf("**Query:** %s\n", a.Query))
	}
	sb.WriteString(fmt.Sprintf("**Tokens:** %d / %d budget\n", a.TokenEstimate, a.BudgetTokens))
	if a.Underfilled {
		sb.WriteString("**Underfilled:** no candidate fit the budget\n")
	}
	sb.WriteString("\n")

	citations := make(map[string]domain.Citation, len(a.Citations))
	for _, c := range a.Citations {
		citations[c.FragmentID] = c
	}

	for i, section := range a.Sections {
		cite, ok := citations[section.FragmentID]
		if ok {
			sb.WriteString(fmt.Sprintf("## %d. %s:%d-%d\n", i+1, cite.Path, cite.StartLine, cite.EndLine))
		} else {
			sb.WriteString(fmt.Sprintf("## %d. %s\n", i+1, section.FragmentID))
		}
		sb.WriteString(fmt.Sprintf("_%s_\n\n", section.Reason))
		sb.WriteString("```\n")
		sb.WriteString(section.IncludedText)
		if !strings.HasSuffix(section.IncludedText, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")
	}

	return sb.String()
}
