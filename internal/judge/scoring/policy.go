package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Error types reported to competitors.
const (
	ErrorTypeAccepted         = "Accepted"
	ErrorTypeIrrelevant       = "Irrelevant"
	ErrorTypeCompilationError = "Compilation Error"
	ErrorTypeSyntaxError      = "Syntax Error"
	ErrorTypeRuntimeError     = "Runtime Error"
	ErrorTypeTimeLimit        = "Time Limit Exceeded"
	ErrorTypeWrongAnswer      = "Wrong Answer"
)

const errorDetailLines = 5

// Policy holds the scoring constants.
type Policy struct {
	LanguageDeductions   map[string]int `yaml:"languageDeductions"`
	SyntaxPenalty        int            `yaml:"syntaxPenalty"`
	RuntimePenalty       int            `yaml:"runtimePenalty"`
	LogicalPenalty       int            `yaml:"logicalPenalty"`
	StrictMultiplier     float64        `yaml:"strictMultiplier"`
	TimeoutCreditPercent int            `yaml:"timeoutCreditPercent"`
	// BonusCap is the most a time bonus can add; zero disables the bonus.
	BonusCap int `yaml:"bonusCap"`
}

// DefaultPolicy returns the contest defaults.
func DefaultPolicy() Policy {
	return Policy{
		LanguageDeductions: map[string]int{
			"c":          0,
			"java":       3,
			"python":     5,
			"javascript": 5,
		},
		SyntaxPenalty:        7,
		RuntimePenalty:       8,
		LogicalPenalty:       10,
		StrictMultiplier:     1.5,
		TimeoutCreditPercent: 10,
	}
}

// Timing describes the round the submission was made in.
type Timing struct {
	Strict    bool
	Remaining time.Duration
	Duration  time.Duration
}

// Breakdown explains where points were lost.
type Breakdown struct {
	SyntaxErrors           int `json:"syntaxErrors"`
	RuntimeErrors          int `json:"runtimeErrors"`
	LogicalErrors          int `json:"logicalErrors"`
	SyntaxPenaltyPerError  int `json:"syntaxPenaltyPerError"`
	RuntimePenaltyPerError int `json:"runtimePenaltyPerError"`
	LogicalPenaltyPerError int `json:"logicalPenaltyPerError"`
	SyntaxPenalty          int `json:"syntaxPenalty"`
	RuntimePenalty         int `json:"runtimePenalty"`
	LogicalPenalty         int `json:"logicalPenalty"`
	TimeBonus              int `json:"timeBonus"`
}

// Result is the graded outcome of one submission.
type Result struct {
	Score             int       `json:"score"`
	ErrorType         string    `json:"errorType"`
	Feedback          []string  `json:"feedback"`
	Language          string    `json:"language"`
	LanguageDeduction int       `json:"languageDeduction"`
	AdjustedMax       int       `json:"adjustedMax"`
	TotalCases        int       `json:"totalCases"`
	PassedCases       int       `json:"passedCases"`
	Breakdown         Breakdown `json:"errorBreakdown"`
}

// Score grades a verdict. The first matching rule wins.
func (p Policy) Score(basePoints int, language string, v Verdict, timing Timing) Result {
	deduction := p.LanguageDeductions[language]
	adjusted := max(0, basePoints-deduction)
	total := len(v.TestResults)
	passed := v.Passed()

	res := Result{
		Language:          language,
		LanguageDeduction: deduction,
		AdjustedMax:       adjusted,
		TotalCases:        total,
		PassedCases:       passed,
		Breakdown: Breakdown{
			SyntaxPenaltyPerError:  p.SyntaxPenalty,
			RuntimePenaltyPerError: p.RuntimePenalty,
			LogicalPenaltyPerError: p.LogicalPenalty,
		},
	}
	if deduction > 0 {
		res.addf("Language penalty: -%d pts (%s). Max possible: %d/%d", deduction, language, adjusted, basePoints)
	} else {
		res.addf("No language penalty for %s. Max possible: %d/%d", language, adjusted, basePoints)
	}

	kind := v.Kind()
	if total == 0 && kind == KindNone {
		res.ErrorType = ErrorTypeIrrelevant
		res.add("Your code does not produce valid output for any test case.")
		res.addf("Score: 0/%d", adjusted)
		return res
	}

	switch kind {
	case KindCompilation, KindSyntax:
		penalty := v.SyntaxErrorCount * p.SyntaxPenalty
		res.Score = proportional(adjusted, passed, total, penalty)
		res.ErrorType = ErrorTypeSyntaxError
		if kind == KindCompilation {
			res.ErrorType = ErrorTypeCompilationError
		}
		res.Breakdown.SyntaxErrors = v.SyntaxErrorCount
		res.Breakdown.SyntaxPenalty = penalty
		res.addf("%d syntax error(s) detected: -%d pts (%d x %d)", v.SyntaxErrorCount, penalty, v.SyntaxErrorCount, p.SyntaxPenalty)
		res.addf("Score: %d/%d", res.Score, adjusted)
		res.addDetails(v.ErrorDetails)
		return res
	case KindRuntime:
		penalty := v.RuntimeErrorCount * p.RuntimePenalty
		res.Score = proportional(adjusted, passed, total, penalty)
		res.ErrorType = ErrorTypeRuntimeError
		res.Breakdown.RuntimeErrors = v.RuntimeErrorCount
		res.Breakdown.RuntimePenalty = penalty
		res.addf("%d runtime error(s) detected: -%d pts (%d x %d)", v.RuntimeErrorCount, penalty, v.RuntimeErrorCount, p.RuntimePenalty)
		res.addf("Score: %d/%d", res.Score, adjusted)
		res.addDetails(v.ErrorDetails)
		return res
	case KindTimeout:
		res.Score = int(math.Round(float64(adjusted) * float64(p.TimeoutCreditPercent) / 100))
		res.ErrorType = ErrorTypeTimeLimit
		res.addf("Time Limit Exceeded. Score: %d (%d%% partial credit).", res.Score, p.TimeoutCreditPercent)
		return res
	}

	if passed == 0 {
		res.ErrorType = ErrorTypeIrrelevant
		res.addf("0/%d test cases passed; the program does not produce correct output.", total)
		res.addf("Score: 0/%d", adjusted)
		res.addFirstFailure(v)
		return res
	}
	// Exactly half passing clears the strict threshold.
	if timing.Strict && passed < (total+1)/2 {
		res.ErrorType = ErrorTypeIrrelevant
		res.addf("%d/%d test cases passed; at least half are required in this round.", passed, total)
		res.addf("Score: 0/%d", adjusted)
		res.addFirstFailure(v)
		return res
	}

	if passed < total {
		logical := v.LogicalErrorCount
		if logical == 0 {
			logical = total - passed
		}
		multiplier := 1.0
		if timing.Strict && p.StrictMultiplier > 0 {
			multiplier = p.StrictMultiplier
		}
		penalty := int(math.Round(float64(logical*p.LogicalPenalty) * multiplier))
		res.Score = proportional(adjusted, passed, total, penalty)
		res.ErrorType = ErrorTypeWrongAnswer
		res.Breakdown.LogicalErrors = logical
		res.Breakdown.LogicalPenalty = penalty
		res.addf("%d/%d test cases passed.", passed, total)
		if timing.Strict {
			res.addf("%d logical error(s): -%d pts (%d x %d x %.1f strict)", logical, penalty, logical, p.LogicalPenalty, multiplier)
		} else {
			res.addf("%d logical error(s): -%d pts (%d x %d)", logical, penalty, logical, p.LogicalPenalty)
		}
		res.addf("Score: %d/%d", res.Score, adjusted)
		res.addFirstFailure(v)
		return res
	}

	res.Score = adjusted
	res.ErrorType = ErrorTypeAccepted
	if bonus := p.timeBonus(timing); bonus > 0 {
		res.Score += bonus
		res.Breakdown.TimeBonus = bonus
		res.addf("Time bonus: +%d pts.", bonus)
	}
	res.addf("All %d test cases passed. Score: %d points.", total, res.Score)
	return res
}

func (p Policy) timeBonus(timing Timing) int {
	if p.BonusCap <= 0 || timing.Duration <= 0 || timing.Remaining <= 0 {
		return 0
	}
	remaining := min(timing.Remaining, timing.Duration)
	return int(float64(p.BonusCap) * float64(remaining) / float64(timing.Duration))
}

func proportional(adjusted, passed, total, penalty int) int {
	earned := 0.0
	if total > 0 {
		earned = float64(adjusted) * float64(passed) / float64(total)
	}
	return int(math.Floor(math.Max(0, earned-float64(penalty))))
}

func (r *Result) add(line string) {
	r.Feedback = append(r.Feedback, line)
}

func (r *Result) addf(format string, args ...any) {
	r.Feedback = append(r.Feedback, fmt.Sprintf(format, args...))
}

func (r *Result) addDetails(details string) {
	details = strings.TrimSpace(details)
	if details == "" {
		return
	}
	lines := strings.Split(details, "\n")
	if len(lines) > errorDetailLines {
		lines = lines[:errorDetailLines]
	}
	r.add("Error: " + strings.Join(lines, "\n"))
}

func (r *Result) addFirstFailure(v Verdict) {
	if tr, ok := v.FirstFailure(); ok {
		r.addf("First failure: expected %q, got %q", tr.Expected, tr.Actual)
	}
}
