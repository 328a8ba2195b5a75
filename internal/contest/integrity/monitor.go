// Package integrity tracks focus violations and disqualifies repeat tab switchers.
package integrity

import (
	"context"
	"sort"
	"sync"
	"time"

	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTabSwitchThreshold = 2
	disqualifyReason          = "Disqualified for switching tabs during the round"
	eventViolation            = "violation:update"
)

// Kind is the violation reported by a client.
type Kind string

const (
	KindFullscreen Kind = "fullscreen"
	KindTabSwitch  Kind = "tab_switch"
)

// State is the per-competitor integrity state.
type State string

const (
	StateClear        State = "clear"
	StateWarned       State = "warned"
	StateDisqualified State = "disqualified"
)

// Target is the contest state the monitor acts on.
type Target interface {
	Disqualify(ctx context.Context, username, reason string) error
	IsRemoved(username string) bool
	Publish(event string, data any)
}

// Config controls the violation policy.
type Config struct {
	// TabSwitchThreshold is the tab switch count that disqualifies.
	TabSwitchThreshold int `yaml:"tabSwitchThreshold"`
}

// Record is one competitor's violation history.
type Record struct {
	Username   string `json:"username"`
	Count      int    `json:"count"`
	Fullscreen int    `json:"fullscreen"`
	TabSwitch  int    `json:"tabSwitch"`
	State      State  `json:"state"`
	LastAt     int64  `json:"lastAt"`
}

type violationEvent struct {
	Username   string `json:"username"`
	Count      int    `json:"count"`
	Fullscreen int    `json:"fullscreen"`
	TabSwitch  int    `json:"tabSwitch"`
	Type       Kind   `json:"type"`
	Kicked     bool   `json:"kicked"`
}

// Monitor applies the violation policy.
type Monitor struct {
	cfg    Config
	target Target
	now    func() time.Time

	mu      sync.Mutex
	records map[string]*Record
}

// NewMonitor creates a monitor acting on target.
func NewMonitor(cfg Config, target Target) *Monitor {
	if cfg.TabSwitchThreshold <= 0 {
		cfg.TabSwitchThreshold = defaultTabSwitchThreshold
	}
	return &Monitor{
		cfg:     cfg,
		target:  target,
		now:     time.Now,
		records: make(map[string]*Record),
	}
}

// Report records a violation. Reports for removed competitors are ignored.
func (m *Monitor) Report(ctx context.Context, username string, kind Kind) (Record, error) {
	if username == "" {
		return Record{}, appErr.ValidationError("username", "required")
	}
	if kind != KindFullscreen && kind != KindTabSwitch {
		return Record{}, appErr.ValidationError("type", "unknown violation type")
	}
	if m.target.IsRemoved(username) {
		return m.Get(username), nil
	}

	m.mu.Lock()
	rec, ok := m.records[username]
	if !ok {
		rec = &Record{Username: username, State: StateClear}
		m.records[username] = rec
	}
	if rec.State == StateDisqualified {
		snapshot := *rec
		m.mu.Unlock()
		return snapshot, nil
	}
	rec.Count++
	rec.LastAt = m.now().UnixMilli()
	switch kind {
	case KindFullscreen:
		rec.Fullscreen++
	case KindTabSwitch:
		rec.TabSwitch++
		if rec.TabSwitch >= m.cfg.TabSwitchThreshold {
			rec.State = StateDisqualified
		} else {
			rec.State = StateWarned
		}
	}
	snapshot := *rec
	m.mu.Unlock()

	kicked := snapshot.State == StateDisqualified
	m.target.Publish(eventViolation, violationEvent{
		Username:   snapshot.Username,
		Count:      snapshot.Count,
		Fullscreen: snapshot.Fullscreen,
		TabSwitch:  snapshot.TabSwitch,
		Type:       kind,
		Kicked:     kicked,
	})
	logger.Info(ctx, "violation reported",
		zap.String("target", username),
		zap.String("type", string(kind)),
		zap.Int("tab_switches", snapshot.TabSwitch),
		zap.String("state", string(snapshot.State)),
	)
	if kicked {
		if err := m.target.Disqualify(ctx, username, disqualifyReason); err != nil {
			return snapshot, err
		}
	}
	return snapshot, nil
}

// Get returns the record of a competitor, clear if none exists.
func (m *Monitor) Get(username string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[username]; ok {
		return *rec
	}
	return Record{Username: username, State: StateClear}
}

// Records returns every record ordered by username.
func (m *Monitor) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Revoke clears a competitor's history after an admin revocation.
func (m *Monitor) Revoke(_ context.Context, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, username)
}

// Reset clears every record.
func (m *Monitor) Reset(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record)
}
