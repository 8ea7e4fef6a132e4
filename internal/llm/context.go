package llm

import "context"

type purposeKeyType struct{}

var purposeKey purposeKeyType

// WithPurpose tags the context with a label naming what the grading
// call is for, e.g. "response-scoring". The logging decorator attaches
// it to every request log line.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom reads the purpose label, or "unscoped" when the caller
// never tagged the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unscoped"
}
