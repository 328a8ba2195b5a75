// Package submit runs the submission pipeline: validation, duplicate
// rejection, evaluation, scoring and problem advancement.
package submit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeblack/internal/contest/problem"
	"codeblack/internal/contest/repository"
	"codeblack/internal/contest/state"
	"codeblack/internal/judge/evaluator"
	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/scoring"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultMaxCodeBytes     = 64 * 1024
	defaultBatchConcurrency = 4
	evaluationFailedMessage = "Evaluation failed, please resubmit"
)

// GradingMode selects when submissions are evaluated.
type GradingMode string

const (
	GradingImmediate GradingMode = "immediate"
	GradingDeferred  GradingMode = "deferred"
)

// Contest is the slice of the state machine the pipeline needs.
type Contest interface {
	ValidateSubmission(username string, round int) (state.RoundInfo, error)
	AssignedProblem(username string, round int) (problem.Problem, int, error)
	Advance(ctx context.Context, username string, round int) (problem.View, int, bool)
	RecordScore(ctx context.Context, username string, round, points int, finished bool) error
	Round() state.RoundInfo
	Now() time.Time
	IsRemoved(username string) bool
}

// LanguageSet reports supported languages.
type LanguageSet interface {
	Supported(language string) bool
}

// Archiver stores submission sources.
type Archiver interface {
	Archive(ctx context.Context, sub repository.Submission) (string, error)
}

// ResultPublisher announces finalized submissions.
type ResultPublisher interface {
	PublishResult(ctx context.Context, sub repository.Submission) error
}

// Config holds pipeline dependencies and settings.
type Config struct {
	Contest   Contest
	Problems  state.ProblemSource
	Evaluator evaluator.Evaluator
	Languages LanguageSet
	Repo      repository.Repository
	// Archiver and Publisher are optional.
	Archiver  Archiver
	Publisher ResultPublisher

	Policy           scoring.Policy
	Review           scoring.ReviewPolicy
	Grading          GradingMode
	MaxCodeBytes     int
	BatchConcurrency int
}

// Input is one competitor submission.
type Input struct {
	Username string
	Code     string
	Language string
	Round    int
}

// Result is what the competitor sees after submitting.
type Result struct {
	SubmissionID     string            `json:"submissionId"`
	Status           repository.Status `json:"status"`
	HasNext          bool              `json:"hasNext"`
	NextProblem      *problem.View     `json:"nextProblem,omitempty"`
	NextProblemIndex int               `json:"nextProblemIndex,omitempty"`
	Score            int               `json:"score"`
	Result           *scoring.Result   `json:"result,omitempty"`
	Message          string            `json:"message"`
}

// Draft is the latest unsent edit buffer of a competitor.
type Draft struct {
	Code      string
	Language  string
	UpdatedAt time.Time
}

type draftKey struct {
	username string
	round    int
}

// Service is the submission pipeline.
type Service struct {
	cfg Config

	drafts *xsync.MapOf[draftKey, Draft]
	locks  *xsync.MapOf[string, *sync.Mutex]
}

// NewService validates dependencies and builds the pipeline.
func NewService(cfg Config) (*Service, error) {
	if cfg.Contest == nil {
		return nil, fmt.Errorf("contest state is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem source is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language set is required")
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Policy.LanguageDeductions == nil {
		cfg.Policy = scoring.DefaultPolicy()
	}
	if cfg.Review.LanguagePenalties == nil {
		cfg.Review = scoring.DefaultReviewPolicy()
	}
	if cfg.Grading == "" {
		cfg.Grading = GradingImmediate
	}
	if cfg.Grading != GradingImmediate && cfg.Grading != GradingDeferred {
		return nil, fmt.Errorf("unknown grading mode %q", cfg.Grading)
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	return &Service{
		cfg:    cfg,
		drafts: xsync.NewMapOf[draftKey, Draft](),
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}, nil
}

// Submit validates and processes a competitor submission.
func (s *Service) Submit(ctx context.Context, in Input) (Result, error) {
	username := state.NormalizeUsername(in.Username)
	language := profile.NormalizeLanguage(in.Language)
	if username == "" {
		return Result{}, appErr.ValidationError("username", "required")
	}
	if !s.cfg.Languages.Supported(language) {
		return Result{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", in.Language)
	}
	if strings.TrimSpace(in.Code) == "" {
		return Result{}, appErr.ValidationError("code", "required")
	}
	if len(in.Code) > s.cfg.MaxCodeBytes {
		return Result{}, appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.cfg.MaxCodeBytes)
	}
	info, err := s.cfg.Contest.ValidateSubmission(username, in.Round)
	if err != nil {
		return Result{}, err
	}
	return s.process(ctx, username, language, in.Code, info, false)
}

func (s *Service) process(ctx context.Context, username, language, code string, info state.RoundInfo, auto bool) (Result, error) {
	unlock := s.lockUser(username)
	defer unlock()

	p, idx, err := s.cfg.Contest.AssignedProblem(username, info.Number)
	if err != nil {
		return Result{}, err
	}
	prior, found, err := s.cfg.Repo.Latest(ctx, username, info.Number, idx)
	if err != nil {
		return Result{}, err
	}
	if found && prior.Status != repository.StatusError {
		return Result{}, appErr.New(appErr.AlreadySubmitted)
	}

	now := s.cfg.Contest.Now()
	sub := repository.Submission{
		ID:            uuid.NewString(),
		Username:      username,
		Round:         info.Number,
		ProblemIndex:  idx,
		ProblemID:     p.ID,
		Language:      language,
		Code:          code,
		Status:        repository.StatusPending,
		AutoSubmitted: auto,
		Strict:        info.Strict,
		RemainingMs:   info.Remaining(now).Milliseconds(),
		DurationMs:    info.Duration.Milliseconds(),
		SubmittedAt:   now,
	}
	s.archive(ctx, &sub)
	if err := s.cfg.Repo.Save(ctx, sub); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "store submission failed")
	}
	s.drafts.Delete(draftKey{username: username, round: info.Number})
	logger.Info(ctx, "submission received",
		zap.String("submission_id", sub.ID),
		zap.String("username", username),
		zap.Int("round", info.Number),
		zap.Int("problem_index", idx),
		zap.String("language", language),
		zap.Bool("auto", auto),
	)

	out := Result{SubmissionID: sub.ID, Status: sub.Status}
	if s.cfg.Grading == GradingImmediate {
		if err := s.grade(ctx, &sub, p); err != nil {
			out.Status = sub.Status
			out.Message = evaluationFailedMessage
			return out, err
		}
		out.Status = sub.Status
		out.Score = sub.Score
		out.Result = sub.Result
		out.Message = fmt.Sprintf("%s: %d/%d", sub.Result.ErrorType, sub.Score, p.Points)
	} else {
		out.Message = "Submission received, awaiting evaluation"
	}

	hasNext := false
	if !auto {
		if view, next, ok := s.cfg.Contest.Advance(ctx, username, info.Number); ok {
			hasNext = true
			out.HasNext = true
			out.NextProblem = &view
			out.NextProblemIndex = next
		}
	}
	if err := s.cfg.Contest.RecordScore(ctx, username, info.Number, sub.Score, !hasNext); err != nil {
		logger.Warn(ctx, "record score failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	if sub.Status == repository.StatusEvaluated {
		s.publish(ctx, sub)
	}
	return out, nil
}

// grade evaluates and scores sub, persisting the outcome either way.
func (s *Service) grade(ctx context.Context, sub *repository.Submission, p problem.Problem) error {
	cases := make([]evaluator.TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		cases = append(cases, evaluator.TestCase{Input: tc.Input, Expected: tc.Expected})
	}
	outcome, err := s.cfg.Evaluator.Evaluate(ctx, evaluator.Request{
		SubmissionID: sub.ID,
		Code:         sub.Code,
		Language:     sub.Language,
		TestCases:    cases,
		TimeLimitMs:  p.TimeLimitMs,
		Statement:    p.Description,
	})
	if err != nil {
		logger.Error(ctx, "evaluation failed", zap.String("submission_id", sub.ID), zap.Error(err))
		sub.Status = repository.StatusError
		sub.Error = evaluationFailedMessage
		if saveErr := s.cfg.Repo.Save(ctx, *sub); saveErr != nil {
			logger.Error(ctx, "store failed submission failed", zap.String("submission_id", sub.ID), zap.Error(saveErr))
		}
		return appErr.Wrapf(err, appErr.JudgeSystemError, evaluationFailedMessage)
	}

	var res scoring.Result
	if outcome.Review != nil {
		res = s.cfg.Review.Score(p.Points, sub.Language, *outcome.Review)
	} else {
		res = s.cfg.Policy.Score(p.Points, sub.Language, outcome.Verdict, sub.Timing())
	}
	evaluatedAt := s.cfg.Contest.Now()
	sub.Status = repository.StatusEvaluated
	sub.Score = res.Score
	sub.Result = &res
	sub.Source = outcome.Source
	sub.Error = ""
	sub.EvaluatedAt = &evaluatedAt
	if err := s.cfg.Repo.Save(ctx, *sub); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "store evaluation failed")
	}
	logger.Info(ctx, "submission evaluated",
		zap.String("submission_id", sub.ID),
		zap.Int("score", res.Score),
		zap.String("error_type", res.ErrorType),
		zap.String("source", string(outcome.Source)),
	)
	return nil
}

func (s *Service) archive(ctx context.Context, sub *repository.Submission) {
	if s.cfg.Archiver == nil {
		return
	}
	key, err := s.cfg.Archiver.Archive(ctx, *sub)
	if err != nil {
		logger.Warn(ctx, "archive submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
		return
	}
	sub.ArchiveKey = key
}

func (s *Service) publish(ctx context.Context, sub repository.Submission) {
	if s.cfg.Publisher == nil {
		return
	}
	if err := s.cfg.Publisher.PublishResult(ctx, sub); err != nil {
		logger.Warn(ctx, "publish result failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
}

func (s *Service) lockUser(username string) func() {
	mu, _ := s.locks.LoadOrCompute(username, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

// ListByUser returns a competitor's submissions.
func (s *Service) ListByUser(ctx context.Context, username string) ([]repository.Submission, error) {
	return s.cfg.Repo.ListByUser(ctx, state.NormalizeUsername(username))
}

// List returns every submission.
func (s *Service) List(ctx context.Context) ([]repository.Submission, error) {
	return s.cfg.Repo.List(ctx)
}

// Reset drops drafts and the ledger.
func (s *Service) Reset(ctx context.Context) {
	s.drafts.Clear()
	if err := s.cfg.Repo.Reset(ctx); err != nil {
		logger.Warn(ctx, "reset submission ledger failed", zap.Error(err))
	}
}
