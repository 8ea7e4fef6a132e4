package scoring

import "github.com/abhisek/learnloop/internal/llm"

// ScoreSchema defines the JSON schema for LLM response-scoring output.
var ScoreSchema = &llm.Schema{
	Name:        "response-score",
	Description: "Quality score for a learner's free-text response to a scenario prompt",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "number",
				"minimum":     0.0,
				"maximum":     1.0,
				"description": "Overall quality of the response (0.0 = no understanding, 1.0 = complete)",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "One or two sentences of learner-facing feedback",
			},
			"rationale": map[string]any{
				"type":        "string",
				"description": "Brief grader-facing explanation of the score",
			},
		},
		"required":             []any{"score", "feedback", "rationale"},
		"additionalProperties": false,
	},
}
