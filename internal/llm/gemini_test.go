package llm

import (
	"testing"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.0-flash", "gemini-2.0-flash"}, // Pass-through
	}
	for _, tt := range tests {
		got := resolveModel(tt.input, geminiModels)
		if got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGeminiSchemaFromScoreShape(t *testing.T) {
	// The score schema: a flat object of one number and two strings.
	def := map[string]any{
		"type":        "object",
		"description": "Quality score for a graded learner response",
		"properties": map[string]any{
			"score":     map[string]any{"type": "number"},
			"feedback":  map[string]any{"type": "string"},
			"rationale": map[string]any{"type": "string"},
		},
		"required": []any{"score", "feedback", "rationale"},
	}

	schema := geminiSchema(def)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	if schema.Description != "Quality score for a graded learner response" {
		t.Fatalf("unexpected description: %q", schema.Description)
	}
	if len(schema.Properties) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(schema.Properties))
	}
	if schema.Properties["score"].Type != "NUMBER" {
		t.Fatalf("expected NUMBER for score, got %s", schema.Properties["score"].Type)
	}
	if schema.Properties["feedback"].Type != "STRING" {
		t.Fatalf("expected STRING for feedback, got %s", schema.Properties["feedback"].Type)
	}
	if len(schema.Required) != 3 {
		t.Fatalf("expected 3 required fields, got %d", len(schema.Required))
	}
}

func TestGeminiTypeMapping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"number", "NUMBER"},
		{"integer", "INTEGER"},
		{"boolean", "BOOLEAN"},
		{"object", "OBJECT"},
		{"string", "STRING"},
		{"anything-else", "STRING"},
	}
	for _, tt := range tests {
		if got := geminiType(tt.in); string(got) != tt.want {
			t.Errorf("geminiType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
