package ai

import (
	"context"
	"errors"
)

// Gateway failure taxonomy. The gateway raises these, it never retries:
// retry policy belongs to the orchestrator, which owns the per-student
// attempt budget.
var (
	// ErrRateLimited indicates the backend refused the call due to quota
	// or rate limits. Retryable.
	ErrRateLimited = errors.New("rate limited by backend")

	// ErrAuthentication indicates the API key was rejected. Not retryable.
	ErrAuthentication = errors.New("backend authentication failed")

	// ErrTimeout indicates the call exceeded its network deadline. Retryable.
	ErrTimeout = errors.New("backend call timed out")

	// ErrMalformedResponse indicates the backend returned content that could
	// not even be read as text.
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrBackendUnknown covers everything else the backend may throw.
	// Not retryable.
	ErrBackendUnknown = errors.New("unknown backend error")
)

// GradeRequest carries one fully-built grading prompt, optionally with an
// image payload for map-style answers.
type GradeRequest struct {
	Prompt    string
	ImageData []byte
	ImageMIME string
}

// Grader issues exactly one grading call per invocation and returns the raw
// response text for downstream validation.
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (string, error)
	Name() string
}
