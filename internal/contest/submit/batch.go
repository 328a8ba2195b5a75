package submit

import (
	"context"
	"sync/atomic"

	"codeblack/internal/contest/repository"
	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchSummary reports one pending-evaluation pass.
type BatchSummary struct {
	Total     int `json:"total"`
	Evaluated int `json:"evaluated"`
	Failed    int `json:"failed"`
	// Skipped counts submissions another pass graded first.
	Skipped int `json:"skipped"`
}

// EvaluatePending grades every pending submission concurrently. Each submission
// is claimed under its owner's lock so overlapping passes grade it once.
// Individual failures mark the submission as error and never abort the batch.
func (s *Service) EvaluatePending(ctx context.Context) (BatchSummary, error) {
	pending, err := s.cfg.Repo.ListByStatus(ctx, repository.StatusPending)
	if err != nil {
		return BatchSummary{}, err
	}

	var (
		g         errgroup.Group
		evaluated atomic.Int32
		failed    atomic.Int32
		skipped   atomic.Int32
	)
	g.SetLimit(s.cfg.BatchConcurrency)
	for _, queued := range pending {
		g.Go(func() error {
			unlock := s.lockUser(queued.Username)
			defer unlock()
			sub, err := s.cfg.Repo.Get(ctx, queued.ID)
			if err != nil || sub.Status != repository.StatusPending {
				skipped.Add(1)
				return nil
			}
			p, ok := s.cfg.Problems.Get(sub.Round, sub.ProblemIndex)
			if !ok {
				logger.Warn(ctx, "pending submission references unknown problem",
					zap.String("submission_id", sub.ID), zap.Int("round", sub.Round), zap.Int("problem_index", sub.ProblemIndex))
				sub.Status = repository.StatusError
				sub.Error = evaluationFailedMessage
				_ = s.cfg.Repo.Save(ctx, sub)
				failed.Add(1)
				return nil
			}
			if err := s.grade(ctx, &sub, p); err != nil {
				failed.Add(1)
				return nil
			}
			if err := s.cfg.Contest.RecordScore(ctx, sub.Username, sub.Round, sub.Score, false); err != nil {
				logger.Warn(ctx, "record score failed", zap.String("submission_id", sub.ID), zap.Error(err))
			}
			s.publish(ctx, sub)
			evaluated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary := BatchSummary{
		Total:     len(pending),
		Evaluated: int(evaluated.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	logger.Info(ctx, "pending submissions evaluated",
		zap.Int("total", summary.Total), zap.Int("evaluated", summary.Evaluated), zap.Int("failed", summary.Failed), zap.Int("skipped", summary.Skipped))
	return summary, nil
}
