package llm

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrRateLimit means the scoring provider returned 429. RetryAfter
// carries the server's hint when one was given.
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("scoring provider rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse means the grader produced output that is not valid
// JSON or does not conform to the requested score schema. Content holds
// the rejected output for the grading log.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("grader output rejected: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable means the scoring provider is down or
// unreachable. The scoring service treats it as a signal to fall back
// to the heuristic grader.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scoring provider unavailable: %v", e.Err)
	}
	return "scoring provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded means the grader's output was cut off at the
// token budget. Score payloads are small, so this points at a
// misconfigured MaxTokens rather than a transient fault.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "grader output truncated at the token budget"
}
