package llm

import (
	"context"
	"encoding/json"
)

// Provider sends one grading request to an LLM and returns structured
// JSON. Free-text response scoring is the only consumer, so the
// contract is deliberately single-turn: a system rubric, one prompt,
// one answer.
type Provider interface {
	// Generate sends the prompt and returns the model's output. When the
	// request carries a Schema the provider asks for native structured
	// output and the returned Content is the schema-checked JSON.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request is one grading call.
type Request struct {
	// System sets the grader's role and rubric.
	System string

	// Prompt is the user-turn content: the concept, the scenario, and
	// the learner's response being graded.
	Prompt string

	// Schema, when set, is the JSON shape the output must conform to.
	// When nil the Content is whatever text the model produced, wrapped
	// as json.RawMessage.
	Schema *Schema

	// MaxTokens caps the response length.
	MaxTokens int

	// Temperature controls randomness, 0.0 to 1.0. Grading keeps it
	// low; zero means deterministic.
	Temperature float64
}

// Schema names a JSON shape the grader's output must match. Grading
// schemas are flat objects of numbers and strings; see
// scoring.ScoreSchema for the one shipped shape.
type Schema struct {
	// Name identifies the schema to the provider's structured-output
	// mechanism. Kebab-case, e.g. "response-score".
	Name string

	// Description is sent to the model to guide generation.
	Description string

	// Definition is the JSON Schema document as a map.
	Definition map[string]any
}

// Response is the model's graded output.
type Response struct {
	// Content is the generated JSON, schema-checked when the request
	// carried a Schema.
	Content json.RawMessage

	// Usage reports token consumption for this call.
	Usage Usage

	// Model is the model that actually served the call.
	Model string

	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
