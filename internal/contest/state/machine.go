package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"codeblack/internal/contest/assign"
	"codeblack/internal/contest/problem"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

const (
	defaultGracePeriod   = 60 * time.Second
	defaultCheckInterval = time.Second
)

// Config controls the state machine.
type Config struct {
	Rounds []RoundConfig
	// GracePeriod is how long a disconnected competitor is kept online.
	GracePeriod time.Duration
	// CheckInterval is the period of the expiry re-check.
	CheckInterval time.Duration
	AdminUsers    []string
}

type session struct {
	username  string
	connected bool
	connID    string
	scores    map[int]int
	finished  map[int]bool
	submitted bool
	grace     *time.Timer
	graceSeq  uint64
}

func (s *session) stopGrace() {
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
	s.graceSeq++
}

func (s *session) total() int {
	total := 0
	for _, pts := range s.scores {
		total += pts
	}
	return total
}

type roundState struct {
	cfg       RoundConfig
	number    int
	status    Status
	startedAt time.Time
	endsAt    time.Time
	timer     *time.Timer
	stop      chan struct{}
	gen       uint64
}

func (r *roundState) disarm() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

func (r *roundState) info() RoundInfo {
	return RoundInfo{
		Number:    r.number,
		Status:    r.status,
		StartedAt: r.startedAt,
		EndsAt:    r.endsAt,
		Duration:  r.cfg.Duration,
		Strict:    r.cfg.Strict,
		Mode:      r.cfg.Mode,
	}
}

// Machine is the single owner of mutable contest state.
type Machine struct {
	cfg      Config
	rounds   map[int]RoundConfig
	problems ProblemSource
	assign   *assign.Service
	now      func() time.Time

	mu          sync.Mutex
	notifier    Notifier
	round       roundState
	gen         uint64
	sessions    map[string]*session
	removed     mapset.Set[string]
	admins      mapset.Set[string]
	tabKicked   []TabKick
	endHooks    []RoundEndHook
	resetHooks  []func(ctx context.Context)
	revokeHooks []func(ctx context.Context, username string)
}

// NewMachine creates a machine in the waiting state.
func NewMachine(cfg Config, problems ProblemSource, assignments *assign.Service) *Machine {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if len(cfg.Rounds) == 0 {
		cfg.Rounds = DefaultRounds()
	}
	rounds := make(map[int]RoundConfig, len(cfg.Rounds))
	for _, rc := range cfg.Rounds {
		rounds[rc.Number] = rc
	}
	admins := mapset.NewThreadUnsafeSet[string]()
	for _, name := range cfg.AdminUsers {
		admins.Add(NormalizeUsername(name))
	}
	return &Machine{
		cfg:      cfg,
		rounds:   rounds,
		problems: problems,
		assign:   assignments,
		now:      time.Now,
		notifier: noopNotifier{},
		round:    roundState{status: StatusWaiting},
		sessions: make(map[string]*session),
		removed:  mapset.NewThreadUnsafeSet[string](),
		admins:   admins,
	}
}

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// SetNotifier attaches the realtime layer.
func (m *Machine) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == nil {
		n = noopNotifier{}
	}
	m.notifier = n
}

// OnRoundEnd registers a hook that runs asynchronously after every round end.
func (m *Machine) OnRoundEnd(hook RoundEndHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endHooks = append(m.endHooks, hook)
}

// OnReset registers a hook that runs synchronously during Reset.
func (m *Machine) OnReset(hook func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetHooks = append(m.resetHooks, hook)
}

// OnRevoke registers a hook that runs when a removal is revoked.
func (m *Machine) OnRevoke(hook func(ctx context.Context, username string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeHooks = append(m.revokeHooks, hook)
}

// StartRound activates a round. number 0 selects the next round.
func (m *Machine) StartRound(ctx context.Context, number int) (RoundInfo, error) {
	m.mu.Lock()
	out := m.newOutbox()
	if m.round.status == StatusActive {
		m.mu.Unlock()
		return RoundInfo{}, appErr.Newf(appErr.RoundAlreadyActive, "round %d is already active", m.round.number)
	}
	if number <= 0 {
		number = m.round.number + 1
	}
	if number < m.round.number || (number == m.round.number && m.round.status == StatusEnded) {
		current := m.round.number
		m.mu.Unlock()
		return RoundInfo{}, appErr.Newf(appErr.RoundMismatch, "round %d has already been played (current round %d)", number, current)
	}
	rc, configured := m.rounds[number]
	if !m.problems.HasRound(number) {
		m.mu.Unlock()
		if !configured {
			return RoundInfo{}, appErr.Newf(appErr.NoMoreRounds, "round %d is not configured", number)
		}
		return RoundInfo{}, appErr.Newf(appErr.ProblemPoolEmpty, "no problems configured for round %d", number)
	}
	if !configured {
		m.mu.Unlock()
		return RoundInfo{}, appErr.Newf(appErr.NoMoreRounds, "round %d is not configured", number)
	}

	now := m.now()
	m.gen++
	m.round = roundState{
		cfg:       rc,
		number:    number,
		status:    StatusActive,
		startedAt: now,
		endsAt:    now.Add(rc.Duration),
		stop:      make(chan struct{}),
		gen:       m.gen,
	}
	gen := m.gen
	m.round.timer = time.AfterFunc(rc.Duration, func() { m.expire(gen) })
	go m.watch(gen, m.round.stop)

	out.broadcast(EventRoundStart, roundStartEvent{
		Round:    number,
		EndTime:  m.round.endsAt.UnixMilli(),
		Duration: rc.Duration.Milliseconds(),
		Mode:     rc.Mode,
		Strict:   rc.Strict,
	})
	for _, s := range m.sessions {
		if !s.connected || m.removed.Contains(s.username) {
			continue
		}
		view, idx, err := m.assignLocked(s.username, number)
		if err != nil {
			logger.Warn(ctx, "assign problem on round start failed", zap.String("username", s.username), zap.Error(err))
			continue
		}
		out.send(s.username, EventProblemAssigned, problemAssignedEvent{Round: number, ProblemIndex: idx, Problem: view})
	}
	info := m.round.info()
	m.mu.Unlock()

	logger.Info(ctx, "round started", zap.Int("round", number), zap.Duration("duration", rc.Duration), zap.String("mode", rc.Mode))
	out.flush(ctx)
	return info, nil
}

// EndRound ends the active round.
func (m *Machine) EndRound(ctx context.Context) error {
	m.mu.Lock()
	if m.round.status != StatusActive {
		m.mu.Unlock()
		return appErr.New(appErr.RoundNotActive)
	}
	out := m.newOutbox()
	m.endLocked(out)
	number := m.round.number
	m.mu.Unlock()

	logger.Info(ctx, "round ended by admin", zap.Int("round", number))
	out.flush(ctx)
	return nil
}

// expire is the shared body of the one-shot timer and the periodic check.
// The status check-and-set under the lock makes a second trigger a no-op.
func (m *Machine) expire(gen uint64) {
	m.mu.Lock()
	if m.round.gen != gen || m.round.status != StatusActive || m.now().Before(m.round.endsAt) {
		m.mu.Unlock()
		return
	}
	out := m.newOutbox()
	m.endLocked(out)
	number := m.round.number
	m.mu.Unlock()

	ctx := context.Background()
	logger.Info(ctx, "round expired", zap.Int("round", number))
	out.flush(ctx)
}

func (m *Machine) watch(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.expire(gen)
		}
	}
}

func (m *Machine) endLocked(out *outbox) {
	m.round.disarm()
	m.round.status = StatusEnded
	out.broadcast(EventRoundEnd, roundEndEvent{Round: m.round.number})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	out.endedRound = m.round.number
	out.endHooks = append(out.endHooks, m.endHooks...)
}

// Reset returns the contest to round 0 and clears scores, assignments,
// removals and everything registered through OnReset. Connected sessions stay.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	m.round.disarm()
	m.gen++
	m.round = roundState{status: StatusWaiting, gen: m.gen}
	for _, s := range m.sessions {
		s.scores = make(map[int]int)
		s.finished = make(map[int]bool)
		s.submitted = false
	}
	m.removed.Clear()
	m.tabKicked = nil
	m.assign.Reset()
	hooks := append([]func(context.Context){}, m.resetHooks...)
	out := m.newOutbox()
	out.broadcast(EventReset, struct{}{})
	out.broadcast(EventUsers, usersEvent{Users: m.onlineLocked()})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}
	logger.Info(ctx, "contest reset")
	out.flush(ctx)
}

// Register binds a live connection to a user and returns the state to sync.
func (m *Machine) Register(ctx context.Context, username string, role Role, connID string) (Sync, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return Sync{}, appErr.ValidationError("username", "required")
	}

	m.mu.Lock()
	if m.removed.Contains(username) {
		m.mu.Unlock()
		return Sync{}, appErr.New(appErr.UserRemoved)
	}
	st := Sync{
		Username:     username,
		Role:         role,
		CurrentRound: m.round.number,
		RoundStatus:  m.round.status,
		RoundMode:    m.round.cfg.Mode,
	}
	if m.round.status != StatusWaiting {
		st.RoundEndTime = m.round.endsAt.UnixMilli()
	}
	if role == RoleAdmin {
		m.admins.Add(username)
		m.mu.Unlock()
		return st, nil
	}

	s := m.sessionLocked(username)
	s.stopGrace()
	s.connected = true
	s.connID = connID
	st.Scores = copyScores(s.scores)

	switch m.round.status {
	case StatusActive:
		view, idx, err := m.assignLocked(username, m.round.number)
		if err != nil {
			logger.Warn(ctx, "assign problem on register failed", zap.String("username", username), zap.Error(err))
		} else {
			st.Problem = &view
			st.ProblemIndex = idx
		}
	case StatusEnded:
		if idx, ok := m.assign.Current(username, m.round.number); ok {
			if p, ok := m.problems.Get(m.round.number, idx); ok {
				view := problem.Sanitize(p)
				st.Problem = &view
				st.ProblemIndex = idx
			}
		}
	}
	st.Submitted = s.finished[m.round.number]

	out := m.newOutbox()
	out.broadcast(EventUsers, usersEvent{Users: m.onlineLocked()})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	out.flush(ctx)
	return st, nil
}

// Disconnect marks the user offline if connID is still their live connection
// and arms the grace-period purge.
func (m *Machine) Disconnect(ctx context.Context, username, connID string) {
	username = NormalizeUsername(username)
	m.mu.Lock()
	s, ok := m.sessions[username]
	if !ok || !s.connected || s.connID != connID {
		m.mu.Unlock()
		return
	}
	s.connected = false
	s.stopGrace()
	seq := s.graceSeq
	s.grace = time.AfterFunc(m.cfg.GracePeriod, func() { m.purge(username, seq) })
	out := m.newOutbox()
	out.broadcast(EventUsers, usersEvent{Users: m.onlineLocked()})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	logger.Info(ctx, "competitor disconnected", zap.String("username", username))
	out.flush(ctx)
}

func (m *Machine) purge(username string, seq uint64) {
	m.mu.Lock()
	s, ok := m.sessions[username]
	if !ok || s.connected || s.graceSeq != seq {
		m.mu.Unlock()
		return
	}
	s.grace = nil
	if s.submitted || s.total() > 0 {
		m.mu.Unlock()
		return
	}
	if m.round.status == StatusActive {
		if _, assigned := m.assign.Current(username, m.round.number); assigned {
			m.mu.Unlock()
			return
		}
	}
	delete(m.sessions, username)
	m.assign.Forget(username)
	out := m.newOutbox()
	out.broadcast(EventUsers, usersEvent{Users: m.onlineLocked()})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	ctx := context.Background()
	logger.Info(ctx, "competitor purged after grace period", zap.String("username", username))
	out.flush(ctx)
}

// RemoveUser blocks a competitor from the contest.
func (m *Machine) RemoveUser(ctx context.Context, username string) error {
	username = NormalizeUsername(username)
	m.mu.Lock()
	if err := m.checkTargetLocked(username); err != nil {
		m.mu.Unlock()
		return err
	}
	m.removed.Add(username)
	if s, ok := m.sessions[username]; ok {
		s.connected = false
		s.stopGrace()
	}
	out := m.newOutbox()
	out.send(username, EventUserRemoved, kickEvent{Username: username})
	out.close(username)
	out.broadcast(EventUsers, usersEvent{Users: m.onlineLocked()})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	logger.Info(ctx, "competitor removed", zap.String("target", username))
	out.flush(ctx)
	return nil
}

// Disqualify removes a competitor and zeroes their scores.
func (m *Machine) Disqualify(ctx context.Context, username, reason string) error {
	username = NormalizeUsername(username)
	m.mu.Lock()
	if err := m.checkTargetLocked(username); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.removed.Contains(username) {
		m.mu.Unlock()
		return nil
	}
	m.removed.Add(username)
	if s, ok := m.sessions[username]; ok {
		for r := range s.scores {
			s.scores[r] = 0
		}
		s.connected = false
		s.stopGrace()
	}
	kick := TabKick{Username: username, Timestamp: m.now().UnixMilli()}
	m.tabKicked = append(m.tabKicked, kick)

	out := m.newOutbox()
	out.send(username, EventUserKicked, kickEvent{Username: username, Reason: reason})
	out.close(username)
	out.broadcast(EventTabKicked, kick)
	out.broadcast(EventUsers, usersEvent{Users: m.onlineLocked()})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	logger.Warn(ctx, "competitor disqualified", zap.String("target", username), zap.String("reason", reason))
	out.flush(ctx)
	return nil
}

// RevokeRemoval lets a removed or disqualified competitor back in.
// Scores zeroed by a disqualification are not restored.
func (m *Machine) RevokeRemoval(ctx context.Context, username string) error {
	username = NormalizeUsername(username)
	m.mu.Lock()
	if !m.removed.Contains(username) {
		m.mu.Unlock()
		return appErr.Newf(appErr.UserNotInContest, "%s is not removed", username)
	}
	m.removed.Remove(username)
	kept := m.tabKicked[:0]
	for _, k := range m.tabKicked {
		if k.Username != username {
			kept = append(kept, k)
		}
	}
	m.tabKicked = kept
	hooks := append([]func(context.Context, string){}, m.revokeHooks...)
	out := m.newOutbox()
	out.broadcast(EventKickRevoked, kickEvent{Username: username})
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, username)
	}
	logger.Info(ctx, "removal revoked", zap.String("target", username))
	out.flush(ctx)
	return nil
}

// ValidateSubmission checks that username may submit for round right now.
func (m *Machine) ValidateSubmission(username string, round int) (RoundInfo, error) {
	username = NormalizeUsername(username)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed.Contains(username) {
		return RoundInfo{}, appErr.New(appErr.UserRemoved)
	}
	if m.round.status != StatusActive {
		return RoundInfo{}, appErr.New(appErr.RoundNotActive)
	}
	if m.now().After(m.round.endsAt) {
		return RoundInfo{}, appErr.New(appErr.RoundExpired)
	}
	if round != m.round.number {
		return RoundInfo{}, appErr.Newf(appErr.RoundMismatch, "round %d is not active (active round %d)", round, m.round.number)
	}
	return m.round.info(), nil
}

// AssignedProblem resolves the problem currently assigned to the user.
func (m *Machine) AssignedProblem(username string, round int) (problem.Problem, int, error) {
	username = NormalizeUsername(username)
	idx, ok := m.assign.Current(username, round)
	if !ok {
		return problem.Problem{}, 0, appErr.New(appErr.ProblemNotAssigned)
	}
	p, ok := m.problems.Get(round, idx)
	if !ok {
		return problem.Problem{}, 0, appErr.New(appErr.ProblemNotAssigned)
	}
	return p, idx, nil
}

// Advance moves the user to the next problem of the round and pushes it.
func (m *Machine) Advance(ctx context.Context, username string, round int) (problem.View, int, bool) {
	username = NormalizeUsername(username)
	idx, ok := m.assign.Advance(username, round)
	if !ok {
		return problem.View{}, idx, false
	}
	p, ok := m.problems.Get(round, idx)
	if !ok {
		return problem.View{}, idx, false
	}
	view := problem.Sanitize(p)

	m.mu.Lock()
	out := m.newOutbox()
	out.send(username, EventProblemAssigned, problemAssignedEvent{Round: round, ProblemIndex: idx, Problem: view})
	m.mu.Unlock()
	out.flush(ctx)
	return view, idx, true
}

// RecordScore adds points to the user's round total. finished marks the round
// as complete for the user.
func (m *Machine) RecordScore(ctx context.Context, username string, round, points int, finished bool) error {
	username = NormalizeUsername(username)
	m.mu.Lock()
	if m.removed.Contains(username) {
		m.mu.Unlock()
		return appErr.New(appErr.UserRemoved)
	}
	s := m.sessionLocked(username)
	s.scores[round] += points
	s.submitted = true
	if finished {
		s.finished[round] = true
	}
	out := m.newOutbox()
	out.broadcast(EventLeaderboard, m.leaderboardLocked())
	m.mu.Unlock()

	out.flush(ctx)
	return nil
}

// Publish broadcasts an event outside of any state transition.
func (m *Machine) Publish(event string, data any) {
	m.mu.Lock()
	n := m.notifier
	m.mu.Unlock()
	n.Broadcast(event, data)
}

// Round returns the current round.
func (m *Machine) Round() RoundInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round.info()
}

// Now returns the machine clock.
func (m *Machine) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}

func (m *Machine) setClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// IsRemoved reports whether the user is blocked.
func (m *Machine) IsRemoved(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed.Contains(NormalizeUsername(username))
}

// IsAdmin reports whether the user is a configured or registered admin.
func (m *Machine) IsAdmin(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admins.Contains(NormalizeUsername(username))
}

// Leaderboard returns the ranked standings.
func (m *Machine) Leaderboard() []LeaderboardEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaderboardLocked()
}

// Online returns the connected competitors.
func (m *Machine) Online() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onlineLocked()
}

// CompetitorCount returns the number of known competitor sessions.
func (m *Machine) CompetitorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshot returns the admin view of the contest.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		CurrentRound: m.round.number,
		RoundStatus:  m.round.status,
		RoundMode:    m.round.cfg.Mode,
		Online:       m.onlineLocked(),
		Leaderboard:  m.leaderboardLocked(),
		Removed:      m.removed.ToSlice(),
		TabKicked:    append([]TabKick{}, m.tabKicked...),
		Assignments:  m.assign.Snapshot(),
	}
	if m.round.status != StatusWaiting {
		snap.RoundStartTime = m.round.startedAt.UnixMilli()
		snap.RoundEndTime = m.round.endsAt.UnixMilli()
	}
	sort.Strings(snap.Removed)
	for _, s := range m.sessions {
		snap.Competitors = append(snap.Competitors, CompetitorStatus{
			Username:  s.username,
			Connected: s.connected,
			Scores:    copyScores(s.scores),
		})
	}
	sort.Slice(snap.Competitors, func(i, j int) bool {
		return snap.Competitors[i].Username < snap.Competitors[j].Username
	})
	return snap
}

func (m *Machine) checkTargetLocked(username string) error {
	if username == "" {
		return appErr.New(appErr.InvalidTarget).WithMessage("username is required")
	}
	if username == string(RoleAdmin) || m.admins.Contains(username) {
		return appErr.New(appErr.InvalidTarget).WithMessage("admins cannot be removed")
	}
	return nil
}

func (m *Machine) sessionLocked(username string) *session {
	s, ok := m.sessions[username]
	if !ok {
		s = &session{
			username: username,
			scores:   make(map[int]int),
			finished: make(map[int]bool),
		}
		m.sessions[username] = s
	}
	return s
}

func (m *Machine) assignLocked(username string, round int) (problem.View, int, error) {
	idx, err := m.assign.Assign(username, round)
	if err != nil {
		return problem.View{}, 0, err
	}
	p, ok := m.problems.Get(round, idx)
	if !ok {
		return problem.View{}, 0, appErr.New(appErr.ProblemNotAssigned)
	}
	return problem.Sanitize(p), idx, nil
}

func (m *Machine) onlineLocked() []string {
	online := make([]string, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.connected && !m.removed.Contains(s.username) {
			online = append(online, s.username)
		}
	}
	sort.Strings(online)
	return online
}

func (m *Machine) leaderboardLocked() []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(m.sessions))
	for _, s := range m.sessions {
		if m.removed.Contains(s.username) {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Username:  s.username,
			Rounds:    copyScores(s.scores),
			Total:     s.total(),
			Connected: s.connected,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func copyScores(in map[int]int) map[int]int {
	out := make(map[int]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
