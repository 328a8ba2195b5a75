// Package state owns the authoritative contest state: rounds, competitor
// sessions, scores and removals. Every mutation goes through Machine.
package state

import (
	"context"
	"time"

	"codeblack/internal/contest/problem"
)

// Status is the lifecycle state of the current round.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Role separates competitors from operators.
type Role string

const (
	RoleCompetitor Role = "competitor"
	RoleAdmin      Role = "admin"
)

// Realtime event names.
const (
	EventRoundStart      = "round:start"
	EventRoundEnd        = "round:end"
	EventProblemAssigned = "problem:assigned"
	EventLeaderboard     = "leaderboard:update"
	EventUsers           = "users:update"
	EventUserRemoved     = "user:removed"
	EventUserKicked      = "user:kicked"
	EventKickRevoked     = "user:kick_revoked"
	EventViolation       = "violation:update"
	EventTabKicked       = "user:tab_kicked"
	EventReset           = "event:reset"
	EventStateSync       = "state:sync"
)

// Notifier delivers events to connected clients.
type Notifier interface {
	Broadcast(event string, data any)
	// Send delivers to one user's live connection and reports whether one existed.
	Send(username, event string, data any) bool
	// Close terminates the user's live connection.
	Close(username string)
}

// RoundConfig describes one configured round.
type RoundConfig struct {
	Number   int           `yaml:"number" validate:"gt=0"`
	Duration time.Duration `yaml:"duration" validate:"gt=0"`
	Strict   bool          `yaml:"strict"`
	Mode     string        `yaml:"mode"`
}

// DefaultRounds mirrors the two-round event format.
func DefaultRounds() []RoundConfig {
	return []RoundConfig{
		{Number: 1, Duration: 90 * time.Minute, Strict: true, Mode: "blur"},
		{Number: 2, Duration: 60 * time.Minute, Strict: true, Mode: "blackout"},
	}
}

// RoundInfo is a read-only view of the current round.
type RoundInfo struct {
	Number    int           `json:"round"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	EndsAt    time.Time     `json:"endsAt"`
	Duration  time.Duration `json:"-"`
	Strict    bool          `json:"strict"`
	Mode      string        `json:"mode"`
}

// Remaining returns the time left before the round ends at now.
func (r RoundInfo) Remaining(now time.Time) time.Duration {
	if r.Status != StatusActive || now.After(r.EndsAt) {
		return 0
	}
	return r.EndsAt.Sub(now)
}

// LeaderboardEntry is one ranked competitor.
type LeaderboardEntry struct {
	Rank      int         `json:"rank"`
	Username  string      `json:"username"`
	Rounds    map[int]int `json:"rounds"`
	Total     int         `json:"total"`
	Connected bool        `json:"connected"`
}

// CompetitorStatus is one roster row of the admin snapshot.
type CompetitorStatus struct {
	Username  string      `json:"username"`
	Connected bool        `json:"connected"`
	Scores    map[int]int `json:"scores"`
}

// TabKick records a disqualification for tab switching.
type TabKick struct {
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// Sync is the full state pushed to a client on (re)registration.
type Sync struct {
	Username     string        `json:"username"`
	Role         Role          `json:"role"`
	CurrentRound int           `json:"currentRound"`
	RoundStatus  Status        `json:"roundStatus"`
	RoundEndTime int64         `json:"roundEndTime,omitempty"`
	RoundMode    string        `json:"roundMode,omitempty"`
	Problem      *problem.View `json:"problem,omitempty"`
	ProblemIndex int           `json:"problemIndex"`
	Submitted    bool          `json:"submitted"`
	Scores       map[int]int   `json:"scores,omitempty"`
}

// Snapshot is the admin view of the whole contest.
type Snapshot struct {
	CurrentRound   int                    `json:"currentRound"`
	RoundStatus    Status                 `json:"roundStatus"`
	RoundStartTime int64                  `json:"roundStartTime,omitempty"`
	RoundEndTime   int64                  `json:"roundEndTime,omitempty"`
	RoundMode      string                 `json:"roundMode,omitempty"`
	Online         []string               `json:"onlineUsers"`
	Competitors    []CompetitorStatus     `json:"competitors"`
	Leaderboard    []LeaderboardEntry     `json:"leaderboard"`
	Removed        []string               `json:"removedUsers"`
	TabKicked      []TabKick              `json:"tabKickedUsers"`
	Assignments    map[string]map[int]int `json:"assignments"`
}

// ProblemSource is the read-only problem bank.
type ProblemSource interface {
	HasRound(round int) bool
	PoolSize(round int) int
	Get(round, index int) (problem.Problem, bool)
}

// RoundEndHook runs after a round ends, outside the state lock.
type RoundEndHook func(ctx context.Context, round int)

type roundStartEvent struct {
	Round    int    `json:"round"`
	EndTime  int64  `json:"endTime"`
	Duration int64  `json:"durationMs"`
	Mode     string `json:"mode"`
	Strict   bool   `json:"strict"`
}

type roundEndEvent struct {
	Round int `json:"round"`
}

type problemAssignedEvent struct {
	Round        int          `json:"round"`
	ProblemIndex int          `json:"problemIndex"`
	Problem      problem.View `json:"problem"`
}

type usersEvent struct {
	Users []string `json:"users"`
}

type kickEvent struct {
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
}
