package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/abhisek/learnloop/internal/llm"
)

// ScorerConfig holds configuration for the LLM scorer.
type ScorerConfig struct {
	MaxTokens   int
	Temperature float64
}

// DefaultScorerConfig returns sensible defaults.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MaxTokens:   256,
		Temperature: 0.2,
	}
}

// LLMScorer grades free-text responses with an LLM provider.
type LLMScorer struct {
	provider llm.Provider
	cfg      ScorerConfig
}

// NewLLMScorer creates an LLM-backed scorer.
func NewLLMScorer(provider llm.Provider, cfg ScorerConfig) *LLMScorer {
	return &LLMScorer{provider: provider, cfg: cfg}
}

// scoreOutput is the raw LLM response.
type scoreOutput struct {
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	Rationale string  `json:"rationale"`
}

// Score grades one response. The returned score is clamped to [0, 1].
func (s *LLMScorer) Score(ctx context.Context, req Request) (*Result, error) {
	ctx = llm.WithPurpose(ctx, "response-scoring")

	userMsg, err := buildScoreMessage(req)
	if err != nil {
		return nil, fmt.Errorf("build scoring prompt: %w", err)
	}

	llmReq := llm.Request{
		System:      scoreSystemPrompt,
		Prompt:      userMsg,
		Schema:      ScoreSchema,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	resp, err := s.provider.Generate(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("LLM scoring failed: %w", err)
	}

	var raw scoreOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w", err)
	}

	score := raw.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &Result{
		Score:     score,
		Feedback:  raw.Feedback,
		Rationale: raw.Rationale,
		Method:    MethodLLM,
	}, nil
}

const scoreSystemPrompt = `You are an expert learning assessor. A learner wrote a free-text response to a scenario that exercises a specific concept. Grade how well the response demonstrates understanding of that concept.

Instructions:
- Score 0.0-1.0: 0.0 means no evidence of understanding, 0.5 means partial, 1.0 means complete and well-applied.
- Judge substance over style. Do not reward length on its own.
- Feedback is for the learner: specific, encouraging, at most two sentences.
- Rationale is for the grading log: one sentence on what drove the score.`

var scoreUserTemplate = template.Must(template.New("score").Parse(`Concept: {{.Concept}}
Scenario: {{.Scenario}}

Learner's response:
{{.UserResponse}}`))

func buildScoreMessage(req Request) (string, error) {
	var buf bytes.Buffer
	if err := scoreUserTemplate.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}
