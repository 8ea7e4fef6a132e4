package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// retryProvider retries transient grading failures with exponential
// backoff and jitter, logging each retried attempt.
type retryProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger *zap.Logger
}

// WithRetry wraps a Provider with backoff retries. A nil logger
// silences the per-attempt log lines.
func WithRetry(p Provider, cfg RetryConfig, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryProvider{inner: p, cfg: cfg, logger: logger}
}

func (r *retryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	schemaRejected := false

	for attempt := range r.cfg.MaxAttempts {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retriable(err, &schemaRejected) {
			return nil, err
		}
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		wait := r.waitFor(attempt, err)
		r.logger.Debug("retrying grading call",
			zap.String("purpose", PurposeFrom(ctx)),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (r *retryProvider) ModelID() string {
	return r.inner.ModelID()
}

// retriable decides whether the error is worth another attempt.
// Schema-rejected output gets exactly one; repeated rejections mean the
// model is not going to produce the score shape and the scoring service
// should fall back instead.
func retriable(err error, schemaRejected *bool) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var truncated *ErrMaxTokensExceeded
	if errors.As(err, &truncated) {
		// Token budget is configuration, not weather.
		return false
	}

	var rejected *ErrInvalidResponse
	if errors.As(err, &rejected) {
		if *schemaRejected {
			return false
		}
		*schemaRejected = true
		return true
	}

	// Rate limits, provider outages, and anything else (network flakes)
	// are treated as transient.
	return true
}

// waitFor computes the backoff before the next attempt. A server-sent
// retry-after hint wins over the computed curve.
func (r *retryProvider) waitFor(attempt int, err error) time.Duration {
	var limited *ErrRateLimit
	if errors.As(err, &limited) && limited.RetryAfter > 0 {
		return limited.RetryAfter
	}

	wait := float64(r.cfg.InitialWait) * math.Pow(r.cfg.Multiplier, float64(attempt))
	wait = math.Min(wait, float64(r.cfg.MaxWait))

	// ±20% jitter keeps parallel graders from thundering in lockstep.
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
