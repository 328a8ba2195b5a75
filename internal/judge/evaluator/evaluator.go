// Package evaluator produces verdicts for submissions, preferring the external
// judge and falling back to the local sandbox.
package evaluator

import (
	"context"

	"codeblack/internal/judge/scoring"
)

// TestCase is one input/expected-output pair.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Request carries everything needed to evaluate one submission.
type Request struct {
	SubmissionID string
	Code         string
	Language     string
	TestCases    []TestCase
	TimeLimitMs  int64
	// Statement is sent to the external judge in review mode.
	Statement string
}

// Outcome is either a test-driven verdict or a static review.
type Outcome struct {
	Verdict scoring.Verdict
	// Review is set only when the external judge reviewed the code.
	Review *scoring.Review
	Source scoring.Source
}

// Evaluator produces a verdict for one submission.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Outcome, error)
}
