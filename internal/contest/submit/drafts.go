package submit

import (
	"context"
	"strings"

	"codeblack/internal/contest/state"
	"codeblack/internal/judge/sandbox/profile"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UpdateDraft keeps the latest edit buffer for the active round.
// Updates outside an active round are dropped.
func (s *Service) UpdateDraft(username, code, language string) {
	username = state.NormalizeUsername(username)
	info := s.cfg.Contest.Round()
	if username == "" || info.Status != state.StatusActive {
		return
	}
	s.drafts.Store(draftKey{username: username, round: info.Number}, Draft{
		Code:      code,
		Language:  profile.NormalizeLanguage(language),
		UpdatedAt: s.cfg.Contest.Now(),
	})
}

// DraftOf returns the stored draft for (username, round).
func (s *Service) DraftOf(username string, round int) (Draft, bool) {
	return s.drafts.Load(draftKey{username: state.NormalizeUsername(username), round: round})
}

// AutoSubmit submits every non-empty draft of round on behalf of competitors
// who have not submitted their current problem. Failures are logged only.
func (s *Service) AutoSubmit(ctx context.Context, round int) int {
	info := s.cfg.Contest.Round()
	if info.Number != round {
		return 0
	}

	type pending struct {
		username string
		draft    Draft
	}
	var queue []pending
	s.drafts.Range(func(k draftKey, d Draft) bool {
		if k.round == round {
			queue = append(queue, pending{username: k.username, draft: d})
		}
		return true
	})

	var (
		g         errgroup.Group
		submitted = make(chan string, len(queue))
	)
	g.SetLimit(s.cfg.BatchConcurrency)
	for _, item := range queue {
		s.drafts.Delete(draftKey{username: item.username, round: round})
		if strings.TrimSpace(item.draft.Code) == "" || s.cfg.Contest.IsRemoved(item.username) {
			continue
		}
		if !s.cfg.Languages.Supported(item.draft.Language) {
			logger.Warn(ctx, "skip auto-submit with unsupported language",
				zap.String("username", item.username), zap.String("language", item.draft.Language))
			continue
		}
		g.Go(func() error {
			_, err := s.process(ctx, item.username, item.draft.Language, item.draft.Code, info, true)
			switch {
			case err == nil:
				submitted <- item.username
			case appErr.Is(err, appErr.AlreadySubmitted), appErr.Is(err, appErr.ProblemNotAssigned):
				logger.Debug(ctx, "auto-submit skipped", zap.String("username", item.username), zap.Error(err))
			default:
				logger.Warn(ctx, "auto-submit failed", zap.String("username", item.username), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	close(submitted)

	count := len(submitted)
	if count > 0 {
		logger.Info(ctx, "auto-submitted drafts", zap.Int("round", round), zap.Int("count", count))
	}
	return count
}
