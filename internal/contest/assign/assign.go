// Package assign tracks which problem each competitor works on per round.
package assign

import (
	"sync"

	appErr "codeblack/pkg/errors"
)

// PoolSource reports the problem pool size of a round.
type PoolSource interface {
	PoolSize(round int) int
}

type key struct {
	username string
	round    int
}

// Service hands out problem indexes. Assignments start at index 0 and only
// move forward through Advance.
type Service struct {
	pools PoolSource

	mu          sync.Mutex
	assignments map[key]int
}

// NewService creates an assignment service over the given pools.
func NewService(pools PoolSource) *Service {
	return &Service{pools: pools, assignments: make(map[key]int)}
}

// Assign returns the existing assignment or creates one at index 0.
func (s *Service) Assign(username string, round int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{username: username, round: round}
	if idx, ok := s.assignments[k]; ok {
		return idx, nil
	}
	if s.pools.PoolSize(round) == 0 {
		return 0, appErr.Newf(appErr.ProblemPoolEmpty, "no problems configured for round %d", round)
	}
	s.assignments[k] = 0
	return 0, nil
}

// Current returns the assignment without creating one.
func (s *Service) Current(username string, round int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.assignments[key{username: username, round: round}]
	return idx, ok
}

// Advance moves the competitor to the next problem of the round.
// It returns false when the current problem is the last one.
func (s *Service) Advance(username string, round int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{username: username, round: round}
	idx, ok := s.assignments[k]
	if !ok {
		return 0, false
	}
	next := idx + 1
	if next >= s.pools.PoolSize(round) {
		return idx, false
	}
	s.assignments[k] = next
	return next, true
}

// Forget drops every assignment of a competitor.
func (s *Service) Forget(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.assignments {
		if k.username == username {
			delete(s.assignments, k)
		}
	}
}

// Reset drops all assignments.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = make(map[key]int)
}

// Snapshot returns username -> round -> index.
func (s *Service) Snapshot() map[string]map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[int]int)
	for k, idx := range s.assignments {
		if out[k.username] == nil {
			out[k.username] = make(map[int]int)
		}
		out[k.username][k.round] = idx
	}
	return out
}
