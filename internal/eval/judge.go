package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const judgeSystemPrompt = `You are a strict evaluator of coding-agent output.
Given a QUERY, the CONTEXT the agent saw, and its RESPONSE, score three metrics from 0.0 to 1.0:
- adherence: is the response grounded in the context, without fabrication?
- relevance: is the context relevant to the query?
- correctness: is the response a correct answer to the query?
Return ONLY a JSON object: {"adherence": x, "relevance": y, "correctness": z}`

// JudgeEvaluator scores with a chat-completion judge on an
// OpenAI-compatible endpoint.
type JudgeEvaluator struct {
	client     *openai.Client
	model      string
	thresholds Thresholds
}

// JudgeConfig configures a JudgeEvaluator.
type JudgeConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Thresholds Thresholds
}

// NewJudgeEvaluator creates an LLM-backed evaluator.
func NewJudgeEvaluator(cfg JudgeConfig) (*JudgeEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("evaluation API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("evaluation model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &JudgeEvaluator{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		thresholds: cfg.Thresholds,
	}, nil
}

// Score implements Evaluator.
func (e *JudgeEvaluator) Score(ctx context.Context, query, contextText, response string) (*Result, error) {
	user := fmt.Sprintf("QUERY:\n%s\n\nCONTEXT:\n%s\n\nRESPONSE:\n%s", query, contextText, response)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}

	scores, err := parseScores(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return apply(scores, e.thresholds), nil
}

// parseScores extracts the JSON verdict, tolerating judges that wrap it
// in prose or code fences.
func parseScores(content string) (Scores, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Scores{}, fmt.Errorf("judge response contained no JSON object: %q", content)
	}

	var scores Scores
	if err := json.Unmarshal([]byte(content[start:end+1]), &scores); err != nil {
		return Scores{}, fmt.Errorf("failed to parse judge scores: %w", err)
	}
	return scores, nil
}
