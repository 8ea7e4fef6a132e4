package scoring

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/learnloop/internal/llm"
)

func scoreRequest() Request {
	return Request{
		Concept:      "spacing effect",
		Scenario:     "Explain why cramming the night before fades faster than weekly review.",
		UserResponse: "Reviews spread over time force retrieval when the memory is weaker, which strengthens it more than repeating while it is still fresh.",
	}
}

func TestServiceUsesLLMScore(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"score":0.85,"feedback":"Good link to retrieval strength.","rationale":"identifies desirable difficulty"}`),
	})
	svc := NewService(NewLLMScorer(mock, DefaultScorerConfig()), nil)

	res := svc.Score(context.Background(), scoreRequest())

	require.Equal(t, MethodLLM, res.Method)
	assert.InDelta(t, 0.85, res.Score, 1e-9)
	assert.Equal(t, "Good link to retrieval strength.", res.Feedback)
	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Calls[0].Prompt, "spacing effect")
}

func TestServiceFallsBackOnProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	svc := NewService(NewLLMScorer(mock, DefaultScorerConfig()), nil)

	res := svc.Score(context.Background(), scoreRequest())

	assert.Equal(t, MethodHeuristic, res.Method)
	assert.Greater(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 0.8)
}

func TestServiceFallsBackOnMalformedJSON(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`not json`)})
	svc := NewService(NewLLMScorer(mock, DefaultScorerConfig()), nil)

	res := svc.Score(context.Background(), scoreRequest())
	assert.Equal(t, MethodHeuristic, res.Method)
}

func TestServiceWithoutScorer(t *testing.T) {
	svc := NewService(nil, nil)

	res := svc.Score(context.Background(), scoreRequest())
	assert.Equal(t, MethodHeuristic, res.Method)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Err: &llm.ErrProviderUnavailable{}},
		llm.MockResponse{Err: &llm.ErrProviderUnavailable{}},
		llm.MockResponse{Err: &llm.ErrProviderUnavailable{}},
		llm.MockResponse{Content: json.RawMessage(`{"score":0.9,"feedback":"f","rationale":"r"}`)},
	)
	svc := NewService(NewLLMScorer(mock, DefaultScorerConfig()), nil)

	for i := 0; i < 3; i++ {
		res := svc.Score(context.Background(), scoreRequest())
		assert.Equal(t, MethodHeuristic, res.Method)
	}

	// Breaker is open: the queued success is never consumed.
	res := svc.Score(context.Background(), scoreRequest())
	assert.Equal(t, MethodHeuristic, res.Method)
	assert.Equal(t, 3, mock.CallCount())
}

func TestHeuristicScore(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     float64
	}{
		{"empty", "", 0},
		{"very short", "yes", 0.2},
		{"moderate", "spaced retrieval strengthens weaker memories more than massed practice does", 0.3 + 0.5*10.0/40},
		{"long responses cap", scoreRequest().UserResponse + " " + scoreRequest().UserResponse + " " + scoreRequest().UserResponse, 0.8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := heuristicScore(Request{UserResponse: tc.response})
			assert.InDelta(t, tc.want, res.Score, 1e-9)
			assert.Equal(t, MethodHeuristic, res.Method)
		})
	}
}

func TestClampAboveOne(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"score":1.4,"feedback":"f","rationale":"r"}`),
	})
	scorer := NewLLMScorer(mock, DefaultScorerConfig())

	res, err := scorer.Score(context.Background(), scoreRequest())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)
}
