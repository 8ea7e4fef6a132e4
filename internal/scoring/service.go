package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Method records how a score was produced.
type Method string

const (
	MethodLLM       Method = "llm"
	MethodHeuristic Method = "heuristic"
)

// Request is one free-text response to grade.
type Request struct {
	Concept      string
	Scenario     string
	UserResponse string
}

// Result is the grading outcome.
type Result struct {
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	Rationale string  `json:"rationale"`
	Method    Method  `json:"method"`
}

// Service grades responses, preferring the LLM scorer behind a circuit
// breaker and falling back to the length heuristic on any failure. It
// never returns an error: scoring must not block session progress.
type Service struct {
	scorer  *LLMScorer
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewService creates a scoring service. scorer may be nil, in which
// case every request is graded by the heuristic.
func NewService(scorer *LLMScorer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-scoring",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Service{scorer: scorer, breaker: breaker, logger: logger}
}

// Score grades one response. LLM failures, open-breaker rejections and
// missing credentials all degrade to the deterministic heuristic.
func (s *Service) Score(ctx context.Context, req Request) *Result {
	if s.scorer == nil {
		return heuristicScore(req)
	}

	out, err := s.breaker.Execute(func() (any, error) {
		return s.scorer.Score(ctx, req)
	})
	if err != nil {
		s.logger.Warn("llm scoring degraded to heuristic",
			zap.String("concept", req.Concept),
			zap.Error(err),
		)
		return heuristicScore(req)
	}
	return out.(*Result)
}

// heuristicScore is the deterministic fallback: a bounded score from
// response length alone. It deliberately never reaches the top of the
// scale so externally-graded responses stay distinguishable.
func heuristicScore(req Request) *Result {
	words := len(strings.Fields(req.UserResponse))

	var score float64
	switch {
	case words == 0:
		score = 0
	case words < 5:
		score = 0.2
	default:
		score = 0.3 + 0.5*float64(words)/40
		if score > 0.8 {
			score = 0.8
		}
	}

	return &Result{
		Score:     score,
		Feedback:  "Your response was recorded. A fuller review was not available this time.",
		Rationale: "length heuristic fallback",
		Method:    MethodHeuristic,
	}
}
