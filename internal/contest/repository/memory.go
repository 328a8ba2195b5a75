package repository

import (
	"context"
	"sort"
	"sync"

	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
)

// Mirror receives a copy of every ledger write.
type Mirror interface {
	Put(ctx context.Context, sub Submission) error
	LoadAll(ctx context.Context) ([]Submission, error)
	Clear(ctx context.Context) error
}

// MemoryRepository is the authoritative in-process ledger with an optional mirror.
// Submissions restored from the mirror belong to a previous process: they are
// listed and readable but never count as attempts or pending work.
type MemoryRepository struct {
	mirror Mirror

	mu       sync.RWMutex
	subs     map[string]Submission
	restored map[string]Submission
}

// NewMemoryRepository creates a ledger. mirror may be nil.
func NewMemoryRepository(mirror Mirror) *MemoryRepository {
	return &MemoryRepository{
		mirror:   mirror,
		subs:     make(map[string]Submission),
		restored: make(map[string]Submission),
	}
}

// Restore loads the mirrored ledger as read-only history.
func (r *MemoryRepository) Restore(ctx context.Context) (int, error) {
	if r.mirror == nil {
		return 0, nil
	}
	subs, err := r.mirror.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range subs {
		if _, live := r.subs[sub.ID]; live {
			continue
		}
		r.restored[sub.ID] = sub
	}
	return len(subs), nil
}

// Save inserts or replaces a submission.
func (r *MemoryRepository) Save(ctx context.Context, sub Submission) error {
	if sub.ID == "" {
		return appErr.ValidationError("id", "required")
	}
	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.Put(ctx, sub); err != nil {
			logger.Warn(ctx, "mirror submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}
	return nil
}

// Get returns a submission by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sub, ok := r.subs[id]; ok {
		return sub, nil
	}
	if sub, ok := r.restored[id]; ok {
		return sub, nil
	}
	return Submission{}, appErr.New(appErr.SubmissionNotFound)
}

// Latest returns the newest attempt for (username, round, problemIndex).
func (r *MemoryRepository) Latest(_ context.Context, username string, round, problemIndex int) (Submission, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		latest Submission
		found  bool
	)
	for _, sub := range r.subs {
		if sub.Username != username || sub.Round != round || sub.ProblemIndex != problemIndex {
			continue
		}
		if !found || sub.SubmittedAt.After(latest.SubmittedAt) {
			latest = sub
			found = true
		}
	}
	return latest, found, nil
}

// ListByUser returns a competitor's submissions, restored history included, oldest first.
func (r *MemoryRepository) ListByUser(_ context.Context, username string) ([]Submission, error) {
	return r.filter(true, func(s Submission) bool { return s.Username == username }), nil
}

// List returns every submission, restored history included, oldest first.
func (r *MemoryRepository) List(_ context.Context) ([]Submission, error) {
	return r.filter(true, func(Submission) bool { return true }), nil
}

// ListByStatus returns live submissions in the given status, oldest first.
func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]Submission, error) {
	return r.filter(false, func(s Submission) bool { return s.Status == status }), nil
}

// Reset drops every submission, including the mirrored copy.
func (r *MemoryRepository) Reset(ctx context.Context) error {
	r.mu.Lock()
	r.subs = make(map[string]Submission)
	r.restored = make(map[string]Submission)
	r.mu.Unlock()
	if r.mirror != nil {
		return r.mirror.Clear(ctx)
	}
	return nil
}

func (r *MemoryRepository) filter(withRestored bool, keep func(Submission) bool) []Submission {
	r.mu.RLock()
	out := make([]Submission, 0, len(r.subs))
	for _, sub := range r.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	if withRestored {
		for _, sub := range r.restored {
			if keep(sub) {
				out = append(out, sub)
			}
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
