package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeblack/internal/common/cache"
	"codeblack/internal/judge/scoring"
	appErr "codeblack/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisMirror(rc, time.Hour), srv
}

func sub(id, user string, round, idx int, status Status, at time.Time) Submission {
	return Submission{
		ID:           id,
		Username:     user,
		Round:        round,
		ProblemIndex: idx,
		Language:     "c",
		Code:         "int main(){return 0;}",
		Status:       status,
		SubmittedAt:  at,
	}
}

func TestMemoryRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)
	base := time.Now()

	_ = repo.Save(ctx, sub("a1", "alice", 1, 0, StatusError, base))
	_ = repo.Save(ctx, sub("a2", "alice", 1, 0, StatusEvaluated, base.Add(time.Second)))
	_ = repo.Save(ctx, sub("b1", "bob", 1, 0, StatusPending, base.Add(2*time.Second)))

	latest, ok, err := repo.Latest(ctx, "alice", 1, 0)
	if err != nil || !ok || latest.ID != "a2" {
		t.Fatalf("Latest = %+v %v %v", latest, ok, err)
	}
	if _, ok, _ := repo.Latest(ctx, "alice", 1, 1); ok {
		t.Fatal("expected no attempt for index 1")
	}

	mine, _ := repo.ListByUser(ctx, "alice")
	if len(mine) != 2 || mine[0].ID != "a1" {
		t.Fatalf("ListByUser = %+v", mine)
	}
	pending, _ := repo.ListByStatus(ctx, StatusPending)
	if len(pending) != 1 || pending[0].ID != "b1" {
		t.Fatalf("ListByStatus = %+v", pending)
	}
	if _, err := repo.Get(ctx, "nope"); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
	if err := repo.Save(ctx, Submission{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	_ = repo.Reset(ctx)
	all, _ := repo.List(ctx)
	if len(all) != 0 {
		t.Fatalf("expected empty ledger after reset, got %d", len(all))
	}
}

func TestRedisMirrorRestore(t *testing.T) {
	ctx := context.Background()
	mirror, srv := newMirror(t)
	repo := NewMemoryRepository(mirror)

	evaluated := sub("a1", "alice", 1, 0, StatusEvaluated, time.Now().Truncate(time.Millisecond))
	evaluated.Score = 97
	evaluated.Result = &scoring.Result{Score: 97, ErrorType: scoring.ErrorTypeAccepted}
	if err := repo.Save(ctx, evaluated); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !srv.Exists(submissionsKey) {
		t.Fatal("expected mirrored hash")
	}
	if srv.TTL(submissionsKey) <= 0 {
		t.Fatal("expected ttl on mirrored hash")
	}

	restored := NewMemoryRepository(mirror)
	n, err := restored.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore = %d %v", n, err)
	}
	got, err := restored.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Score != 97 || got.Result == nil || got.Result.ErrorType != scoring.ErrorTypeAccepted {
		t.Fatalf("unexpected restored submission: %+v", got)
	}

	if err := restored.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if srv.Exists(submissionsKey) {
		t.Fatal("reset should clear the mirror")
	}
}

func TestRestoredHistoryIsNotLive(t *testing.T) {
	ctx := context.Background()
	mirror, _ := newMirror(t)
	before := NewMemoryRepository(mirror)
	at := time.Now().Truncate(time.Millisecond)
	_ = before.Save(ctx, sub("old-eval", "alice", 1, 0, StatusEvaluated, at))
	_ = before.Save(ctx, sub("old-pending", "bob", 1, 0, StatusPending, at.Add(time.Second)))

	after := NewMemoryRepository(mirror)
	if n, err := after.Restore(ctx); err != nil || n != 2 {
		t.Fatalf("Restore = %d %v", n, err)
	}
	if _, ok, _ := after.Latest(ctx, "alice", 1, 0); ok {
		t.Fatal("restored attempt must not block a new submission")
	}
	if pending, _ := after.ListByStatus(ctx, StatusPending); len(pending) != 0 {
		t.Fatalf("restored pending entries must not be graded again, got %+v", pending)
	}

	fresh := sub("new-eval", "alice", 1, 0, StatusEvaluated, at.Add(2*time.Second))
	if err := after.Save(ctx, fresh); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	latest, ok, _ := after.Latest(ctx, "alice", 1, 0)
	if !ok || latest.ID != "new-eval" {
		t.Fatalf("Latest = %+v %v", latest, ok)
	}
	mine, _ := after.ListByUser(ctx, "alice")
	if len(mine) != 2 || mine[0].ID != "old-eval" || mine[1].ID != "new-eval" {
		t.Fatalf("ListByUser = %+v", mine)
	}
	all, _ := after.List(ctx)
	if len(all) != 3 {
		t.Fatalf("List should include restored history, got %d", len(all))
	}
	if _, err := after.Get(ctx, "old-pending"); err != nil {
		t.Fatalf("Get restored failed: %v", err)
	}

	_ = after.Reset(ctx)
	if all, _ := after.List(ctx); len(all) != 0 {
		t.Fatalf("reset should drop restored history, got %d", len(all))
	}
}

type failingMirror struct{}

func (failingMirror) Put(context.Context, Submission) error { return errors.New("down") }
func (failingMirror) LoadAll(context.Context) ([]Submission, error) {
	return nil, errors.New("down")
}
func (failingMirror) Clear(context.Context) error { return errors.New("down") }

func TestMirrorFailureDoesNotFailSave(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(failingMirror{})
	if err := repo.Save(ctx, sub("a1", "alice", 1, 0, StatusPending, time.Now())); err != nil {
		t.Fatalf("Save should ignore mirror failures, got %v", err)
	}
	if _, err := repo.Get(ctx, "a1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := repo.Restore(ctx); err == nil {
		t.Fatal("Restore should surface mirror failures")
	}
}
