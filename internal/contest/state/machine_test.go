package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeblack/internal/contest/assign"
	"codeblack/internal/contest/problem"
	appErr "codeblack/pkg/errors"
)

type sent struct {
	username string
	event    string
	data     any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sent
	closed []string
}

func (n *recordingNotifier) Broadcast(event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sent{event: event, data: data})
}

func (n *recordingNotifier) Send(username, event string, data any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sent{username: username, event: event, data: data})
	return true
}

func (n *recordingNotifier) Close(username string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, username)
}

func (n *recordingNotifier) count(username, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.event == event && e.username == username {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) wasClosed(username string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, u := range n.closed {
		if u == username {
			return true
		}
	}
	return false
}

func testBank() *problem.Bank {
	mk := func(id string) problem.Problem {
		return problem.Problem{
			ID:          id,
			Title:       id,
			Points:      100,
			TimeLimitMs: 1000,
			TestCases:   []problem.TestCase{{Input: "1", Expected: "1"}},
			Sample:      &problem.TestCase{Input: "1", Expected: "1"},
		}
	}
	return problem.NewBank(map[int][]problem.Problem{
		1: {mk("r1p1"), mk("r1p2")},
		2: {mk("r2p1")},
	})
}

func newTestMachine(t *testing.T, duration, grace time.Duration) (*Machine, *recordingNotifier) {
	t.Helper()
	bank := testBank()
	m := NewMachine(Config{
		Rounds: []RoundConfig{
			{Number: 1, Duration: duration, Strict: true, Mode: "blur"},
			{Number: 2, Duration: duration, Strict: true, Mode: "blackout"},
			{Number: 3, Duration: duration},
		},
		GracePeriod:   grace,
		CheckInterval: 10 * time.Millisecond,
		AdminUsers:    []string{"Admin"},
	}, bank, assign.NewService(bank))
	n := &recordingNotifier{}
	m.SetNotifier(n)
	t.Cleanup(func() { m.Reset(context.Background()) })
	return m, n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartRoundLifecycle(t *testing.T) {
	ctx := context.Background()
	m, n := newTestMachine(t, time.Hour, time.Minute)

	if err := m.EndRound(ctx); !appErr.Is(err, appErr.RoundNotActive) {
		t.Fatalf("EndRound before start: expected RoundNotActive, got %v", err)
	}

	info, err := m.StartRound(ctx, 0)
	if err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if info.Number != 1 || info.Status != StatusActive || info.Mode != "blur" {
		t.Fatalf("unexpected round info: %+v", info)
	}
	if _, err := m.StartRound(ctx, 2); !appErr.Is(err, appErr.RoundAlreadyActive) {
		t.Fatalf("expected RoundAlreadyActive, got %v", err)
	}

	if err := m.EndRound(ctx); err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}
	if err := m.EndRound(ctx); !appErr.Is(err, appErr.RoundNotActive) {
		t.Fatalf("second EndRound: expected RoundNotActive, got %v", err)
	}
	if got := n.count("", EventRoundEnd); got != 1 {
		t.Fatalf("round:end broadcasts = %d, want 1", got)
	}

	if _, err := m.StartRound(ctx, 1); !appErr.Is(err, appErr.RoundMismatch) {
		t.Fatalf("replaying round 1: expected RoundMismatch, got %v", err)
	}
	info, err = m.StartRound(ctx, 0)
	if err != nil || info.Number != 2 {
		t.Fatalf("expected round 2, got %+v err=%v", info, err)
	}
	_ = m.EndRound(ctx)

	if _, err := m.StartRound(ctx, 3); !appErr.Is(err, appErr.ProblemPoolEmpty) {
		t.Fatalf("round without pool: expected ProblemPoolEmpty, got %v", err)
	}
	if _, err := m.StartRound(ctx, 4); !appErr.Is(err, appErr.NoMoreRounds) {
		t.Fatalf("unconfigured round: expected NoMoreRounds, got %v", err)
	}
}

func TestRoundExpiresOnce(t *testing.T) {
	m, n := newTestMachine(t, 40*time.Millisecond, time.Minute)
	hookCalls := make(chan int, 4)
	m.OnRoundEnd(func(_ context.Context, round int) { hookCalls <- round })

	if _, err := m.StartRound(context.Background(), 1); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	waitFor(t, "round expiry", func() bool { return m.Round().Status == StatusEnded })

	select {
	case round := <-hookCalls:
		if round != 1 {
			t.Fatalf("hook round = %d, want 1", round)
		}
	case <-time.After(time.Second):
		t.Fatal("round end hook not called")
	}

	time.Sleep(60 * time.Millisecond)
	if got := n.count("", EventRoundEnd); got != 1 {
		t.Fatalf("round:end broadcasts = %d, want 1", got)
	}
	if len(hookCalls) != 0 {
		t.Fatal("round end hook ran more than once")
	}
}

func TestManualEndRacingExpiryEndsOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		m, n := newTestMachine(t, time.Hour, time.Minute)
		var clock atomic.Int64
		clock.Store(time.Now().UnixNano())
		m.setClock(func() time.Time { return time.Unix(0, clock.Load()) })
		var hookCalls atomic.Int32
		m.OnRoundEnd(func(context.Context, int) { hookCalls.Add(1) })

		info, err := m.StartRound(context.Background(), 1)
		if err != nil {
			t.Fatalf("StartRound failed: %v", err)
		}
		m.mu.Lock()
		gen := m.round.gen
		m.mu.Unlock()

		clock.Store(info.EndsAt.UnixNano())
		var (
			wg     sync.WaitGroup
			endErr error
			start  = make(chan struct{})
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			endErr = m.EndRound(context.Background())
		}()
		go func() {
			defer wg.Done()
			<-start
			m.expire(gen)
		}()
		close(start)
		wg.Wait()

		if endErr != nil && !appErr.Is(endErr, appErr.RoundNotActive) {
			t.Fatalf("EndRound returned %v", endErr)
		}
		waitFor(t, "round end hook", func() bool { return hookCalls.Load() >= 1 })
		time.Sleep(30 * time.Millisecond)
		if got := n.count("", EventRoundEnd); got != 1 {
			t.Fatalf("iteration %d: round:end broadcasts = %d, want 1", i, got)
		}
		if got := hookCalls.Load(); got != 1 {
			t.Fatalf("iteration %d: round end hook calls = %d, want 1", i, got)
		}
	}
}

func TestRegisterAssignsProblem(t *testing.T) {
	ctx := context.Background()
	m, n := newTestMachine(t, time.Hour, time.Minute)

	st, err := m.Register(ctx, "  Alice ", RoleCompetitor, "c1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if st.Username != "alice" || st.Problem != nil || st.RoundStatus != StatusWaiting {
		t.Fatalf("unexpected sync before start: %+v", st)
	}

	if _, err := m.StartRound(ctx, 1); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if got := n.count("alice", EventProblemAssigned); got != 1 {
		t.Fatalf("problem:assigned sent %d times, want 1", got)
	}

	st, err = m.Register(ctx, "alice", RoleCompetitor, "c2")
	if err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
	if st.Problem == nil || st.Problem.ID != "r1p1" || st.ProblemIndex != 0 {
		t.Fatalf("expected r1p1 on reconnect, got %+v", st.Problem)
	}

	view, idx, ok := m.Advance(ctx, "alice", 1)
	if !ok || idx != 1 || view.ID != "r1p2" {
		t.Fatalf("Advance = %+v %d %v", view, idx, ok)
	}
	if _, _, ok := m.Advance(ctx, "alice", 1); ok {
		t.Fatal("Advance past the last problem should report false")
	}
	p, idx, err := m.AssignedProblem("alice", 1)
	if err != nil || p.ID != "r1p2" || idx != 1 {
		t.Fatalf("AssignedProblem = %s %d %v", p.ID, idx, err)
	}
	if _, _, err := m.AssignedProblem("bob", 1); !appErr.Is(err, appErr.ProblemNotAssigned) {
		t.Fatalf("expected ProblemNotAssigned, got %v", err)
	}
}

func TestAdminRegisterDoesNotJoinRoster(t *testing.T) {
	m, _ := newTestMachine(t, time.Hour, time.Minute)
	if _, err := m.Register(context.Background(), "root", RoleAdmin, "a1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if m.CompetitorCount() != 0 {
		t.Fatal("admin should not appear as competitor")
	}
	if !m.IsAdmin("ROOT") || !m.IsAdmin("admin") {
		t.Fatal("expected registered and configured admins")
	}
}

func TestValidateSubmission(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t, time.Hour, time.Minute)
	// keep the expiry check from ending the round once the clock jumps
	m.cfg.CheckInterval = time.Hour
	_, _ = m.Register(ctx, "alice", RoleCompetitor, "c1")

	if _, err := m.ValidateSubmission("alice", 1); !appErr.Is(err, appErr.RoundNotActive) {
		t.Fatalf("expected RoundNotActive, got %v", err)
	}
	_, _ = m.StartRound(ctx, 1)
	if _, err := m.ValidateSubmission("alice", 2); !appErr.Is(err, appErr.RoundMismatch) {
		t.Fatalf("expected RoundMismatch, got %v", err)
	}
	if _, err := m.ValidateSubmission("alice", 1); err != nil {
		t.Fatalf("expected valid submission, got %v", err)
	}

	m.setClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	if _, err := m.ValidateSubmission("alice", 1); !appErr.Is(err, appErr.RoundExpired) {
		t.Fatalf("expected RoundExpired, got %v", err)
	}
	m.setClock(time.Now)

	_ = m.RemoveUser(ctx, "alice")
	if _, err := m.ValidateSubmission("alice", 1); !appErr.Is(err, appErr.UserRemoved) {
		t.Fatalf("expected UserRemoved, got %v", err)
	}
}

func TestGracePeriodPurge(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t, time.Hour, 30*time.Millisecond)

	_, _ = m.Register(ctx, "alice", RoleCompetitor, "c1")
	_, _ = m.Register(ctx, "bob", RoleCompetitor, "c1")

	// a stale connection id is ignored
	m.Disconnect(ctx, "alice", "old")
	if len(m.Online()) != 2 {
		t.Fatalf("stale disconnect changed roster: %v", m.Online())
	}

	m.Disconnect(ctx, "alice", "c1")
	m.Disconnect(ctx, "bob", "c1")
	_, _ = m.Register(ctx, "bob", RoleCompetitor, "c2")

	waitFor(t, "purge", func() bool { return m.CompetitorCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	online := m.Online()
	if len(online) != 1 || online[0] != "bob" {
		t.Fatalf("expected only bob online, got %v", online)
	}
}

func TestGracePeriodKeepsScoredCompetitor(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t, time.Hour, 20*time.Millisecond)

	_, _ = m.Register(ctx, "alice", RoleCompetitor, "c1")
	if err := m.RecordScore(ctx, "alice", 1, 50, true); err != nil {
		t.Fatalf("RecordScore failed: %v", err)
	}
	m.Disconnect(ctx, "alice", "c1")
	time.Sleep(80 * time.Millisecond)

	if m.CompetitorCount() != 1 {
		t.Fatal("competitor with submissions must survive the grace period")
	}
	board := m.Leaderboard()
	if len(board) != 1 || board[0].Total != 50 || board[0].Connected {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t, time.Hour, time.Minute)
	_ = m.RecordScore(ctx, "carol", 1, 80, true)
	_ = m.RecordScore(ctx, "bob", 1, 90, true)
	_ = m.RecordScore(ctx, "alice", 1, 80, true)
	_ = m.RecordScore(ctx, "alice", 2, 5, false)

	board := m.Leaderboard()
	want := []struct {
		name  string
		total int
	}{{"bob", 90}, {"alice", 85}, {"carol", 80}}
	if len(board) != len(want) {
		t.Fatalf("leaderboard size = %d", len(board))
	}
	for i, w := range want {
		if board[i].Username != w.name || board[i].Total != w.total || board[i].Rank != i+1 {
			t.Fatalf("entry %d = %+v, want %s/%d", i, board[i], w.name, w.total)
		}
	}
}

func TestRemoveAndRevoke(t *testing.T) {
	ctx := context.Background()
	m, n := newTestMachine(t, time.Hour, time.Minute)
	revoked := make(chan string, 1)
	m.OnRevoke(func(_ context.Context, username string) { revoked <- username })

	_, _ = m.Register(ctx, "alice", RoleCompetitor, "c1")
	_ = m.RecordScore(ctx, "alice", 1, 40, false)

	if err := m.RemoveUser(ctx, ""); !appErr.Is(err, appErr.InvalidTarget) {
		t.Fatalf("expected InvalidTarget for empty name, got %v", err)
	}
	if err := m.RemoveUser(ctx, "admin"); !appErr.Is(err, appErr.InvalidTarget) {
		t.Fatalf("expected InvalidTarget for admin, got %v", err)
	}
	if err := m.RemoveUser(ctx, "Alice"); err != nil {
		t.Fatalf("RemoveUser failed: %v", err)
	}
	if !n.wasClosed("alice") || n.count("alice", EventUserRemoved) != 1 {
		t.Fatal("removed user should be notified and disconnected")
	}
	if len(m.Leaderboard()) != 0 || len(m.Online()) != 0 {
		t.Fatal("removed user should leave the roster")
	}
	if _, err := m.Register(ctx, "alice", RoleCompetitor, "c2"); !appErr.Is(err, appErr.UserRemoved) {
		t.Fatalf("expected UserRemoved on register, got %v", err)
	}
	if err := m.RecordScore(ctx, "alice", 1, 10, true); !appErr.Is(err, appErr.UserRemoved) {
		t.Fatalf("expected UserRemoved on score, got %v", err)
	}

	if err := m.RevokeRemoval(ctx, "bob"); !appErr.Is(err, appErr.UserNotInContest) {
		t.Fatalf("expected UserNotInContest, got %v", err)
	}
	if err := m.RevokeRemoval(ctx, "alice"); err != nil {
		t.Fatalf("RevokeRemoval failed: %v", err)
	}
	if got := <-revoked; got != "alice" {
		t.Fatalf("revoke hook got %q", got)
	}
	if n.count("", EventKickRevoked) != 1 {
		t.Fatal("expected kick revoked broadcast")
	}
	board := m.Leaderboard()
	if len(board) != 1 || board[0].Total != 40 {
		t.Fatalf("plain removal should keep scores, got %+v", board)
	}
}

func TestDisqualifyZeroesScores(t *testing.T) {
	ctx := context.Background()
	m, n := newTestMachine(t, time.Hour, time.Minute)
	_, _ = m.Register(ctx, "alice", RoleCompetitor, "c1")
	_ = m.RecordScore(ctx, "alice", 1, 70, true)

	if err := m.Disqualify(ctx, "alice", "tab switching"); err != nil {
		t.Fatalf("Disqualify failed: %v", err)
	}
	if err := m.Disqualify(ctx, "alice", "tab switching"); err != nil {
		t.Fatalf("second Disqualify should be a no-op, got %v", err)
	}
	if n.count("alice", EventUserKicked) != 1 || n.count("", EventTabKicked) != 1 {
		t.Fatal("expected exactly one kick notification")
	}
	snap := m.Snapshot()
	if len(snap.TabKicked) != 1 || snap.TabKicked[0].Username != "alice" {
		t.Fatalf("unexpected tab kicked list: %+v", snap.TabKicked)
	}
	if len(snap.Removed) != 1 {
		t.Fatalf("unexpected removed list: %v", snap.Removed)
	}

	_ = m.RevokeRemoval(ctx, "alice")
	board := m.Leaderboard()
	if len(board) != 1 || board[0].Total != 0 {
		t.Fatalf("disqualified scores must stay zeroed, got %+v", board)
	}
	if len(m.Snapshot().TabKicked) != 0 {
		t.Fatal("revoke should clear the tab kicked entry")
	}
}

func TestResetClearsContest(t *testing.T) {
	ctx := context.Background()
	m, n := newTestMachine(t, time.Hour, time.Minute)
	resets := 0
	m.OnReset(func(context.Context) { resets++ })

	_, _ = m.Register(ctx, "alice", RoleCompetitor, "c1")
	_, _ = m.StartRound(ctx, 1)
	_ = m.RecordScore(ctx, "alice", 1, 100, true)
	_ = m.RemoveUser(ctx, "bob")

	m.Reset(ctx)
	if resets != 1 {
		t.Fatalf("reset hooks ran %d times", resets)
	}
	info := m.Round()
	if info.Number != 0 || info.Status != StatusWaiting {
		t.Fatalf("unexpected round after reset: %+v", info)
	}
	snap := m.Snapshot()
	if len(snap.Removed) != 0 || len(snap.Assignments) != 0 {
		t.Fatalf("reset left state behind: %+v", snap)
	}
	if len(snap.Online) != 1 || snap.Leaderboard[0].Total != 0 {
		t.Fatalf("reset should keep sessions but clear scores: %+v", snap)
	}
	if n.count("", EventReset) != 1 {
		t.Fatal("expected event:reset broadcast")
	}
	if _, err := m.StartRound(ctx, 0); err != nil {
		t.Fatalf("round 1 should be startable after reset: %v", err)
	}
}
