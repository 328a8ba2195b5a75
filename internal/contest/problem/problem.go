// Package problem loads the read-only problem bank.
package problem

import (
	"fmt"
	"os"
	"sort"

	appErr "codeblack/pkg/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TestCase is one input/expected-output pair.
type TestCase struct {
	Input    string `yaml:"input" json:"input"`
	Expected string `yaml:"expected" json:"expected"`
}

// Problem is immutable once loaded.
type Problem struct {
	ID          string     `yaml:"id" validate:"required"`
	Title       string     `yaml:"title" validate:"required"`
	Description string     `yaml:"description"`
	Points      int        `yaml:"points" validate:"gt=0"`
	TimeLimitMs int64      `yaml:"timeLimitMs" validate:"gt=0"`
	TestCases   []TestCase `yaml:"testCases" validate:"min=1"`
	Sample      *TestCase  `yaml:"sample"`
}

// View is the client-safe projection of a problem.
type View struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	TimeLimitMs int64     `json:"timeLimit"`
	Sample      *TestCase `json:"sampleTestCase,omitempty"`
}

// Sanitize drops every hidden test case.
func Sanitize(p Problem) View {
	view := View{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Points:      p.Points,
		TimeLimitMs: p.TimeLimitMs,
	}
	if p.Sample != nil {
		sample := *p.Sample
		view.Sample = &sample
	}
	return view
}

type roundPool struct {
	Round    int       `yaml:"round" validate:"gt=0"`
	Problems []Problem `yaml:"problems" validate:"min=1,dive"`
}

type bankFile struct {
	Rounds []roundPool `yaml:"rounds" validate:"min=1,dive"`
}

// Bank maps round numbers to ordered problem pools.
type Bank struct {
	pools map[int][]Problem
}

// Load reads a YAML problem bank from path.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML problem bank.
func Parse(data []byte) (*Bank, error) {
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode problem bank: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, appErr.Wrapf(err, appErr.ValidationFailed, "invalid problem bank: %v", err)
	}
	pools := make(map[int][]Problem, len(file.Rounds))
	seen := make(map[string]struct{})
	for _, rp := range file.Rounds {
		if _, ok := pools[rp.Round]; ok {
			return nil, appErr.Newf(appErr.ValidationFailed, "round %d is defined twice", rp.Round)
		}
		for _, p := range rp.Problems {
			if _, ok := seen[p.ID]; ok {
				return nil, appErr.Newf(appErr.ValidationFailed, "problem id %s is not unique", p.ID)
			}
			seen[p.ID] = struct{}{}
		}
		pools[rp.Round] = rp.Problems
	}
	return &Bank{pools: pools}, nil
}

// NewBank builds a bank from in-memory pools.
func NewBank(pools map[int][]Problem) *Bank {
	copied := make(map[int][]Problem, len(pools))
	for round, problems := range pools {
		copied[round] = append([]Problem(nil), problems...)
	}
	return &Bank{pools: copied}
}

// PoolSize returns the number of problems for a round.
func (b *Bank) PoolSize(round int) int {
	return len(b.pools[round])
}

// HasRound reports whether the round has a non-empty pool.
func (b *Bank) HasRound(round int) bool {
	return len(b.pools[round]) > 0
}

// Get returns the problem at index in the round's pool.
func (b *Bank) Get(round, index int) (Problem, bool) {
	pool := b.pools[round]
	if index < 0 || index >= len(pool) {
		return Problem{}, false
	}
	return pool[index], true
}

// Rounds returns the configured round numbers in ascending order.
func (b *Bank) Rounds() []int {
	rounds := make([]int, 0, len(b.pools))
	for r := range b.pools {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)
	return rounds
}
