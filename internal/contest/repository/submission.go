// Package repository stores the submission ledger.
package repository

import (
	"context"
	"time"

	"codeblack/internal/judge/scoring"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending   Status = "pending"
	StatusEvaluated Status = "evaluated"
	StatusError     Status = "error"
)

// Submission is one competitor attempt.
type Submission struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Round         int             `json:"round"`
	ProblemIndex  int             `json:"problemIndex"`
	ProblemID     string          `json:"problemId"`
	Language      string          `json:"language"`
	Code          string          `json:"code"`
	Status        Status          `json:"status"`
	AutoSubmitted bool            `json:"autoSubmitted"`
	Strict        bool            `json:"strict"`
	RemainingMs   int64           `json:"remainingMs"`
	DurationMs    int64           `json:"roundDurationMs"`
	Score         int             `json:"score"`
	Result        *scoring.Result `json:"result,omitempty"`
	Source        scoring.Source  `json:"source,omitempty"`
	Error         string          `json:"error,omitempty"`
	ArchiveKey    string          `json:"archiveKey,omitempty"`
	SubmittedAt   time.Time       `json:"submittedAt"`
	EvaluatedAt   *time.Time      `json:"evaluatedAt,omitempty"`
}

// Timing rebuilds the scoring timing captured at submission time.
func (s Submission) Timing() scoring.Timing {
	return scoring.Timing{
		Strict:    s.Strict,
		Remaining: time.Duration(s.RemainingMs) * time.Millisecond,
		Duration:  time.Duration(s.DurationMs) * time.Millisecond,
	}
}

// Repository is the submission ledger.
type Repository interface {
	Save(ctx context.Context, sub Submission) error
	Get(ctx context.Context, id string) (Submission, error)
	// Latest returns the newest attempt for one assigned problem.
	Latest(ctx context.Context, username string, round, problemIndex int) (Submission, bool, error)
	ListByUser(ctx context.Context, username string) ([]Submission, error)
	List(ctx context.Context) ([]Submission, error)
	ListByStatus(ctx context.Context, status Status) ([]Submission, error)
	Reset(ctx context.Context) error
}
