// Package scoring turns evaluation verdicts into contest points.
package scoring

// Kind tags the dominant failure category of a verdict.
type Kind string

const (
	KindNone        Kind = "none"
	KindCompilation Kind = "compilation"
	KindSyntax      Kind = "syntax"
	KindRuntime     Kind = "runtime"
	KindTimeout     Kind = "timeout"
)

// Source records which evaluator produced a verdict.
type Source string

const (
	SourceExternal Source = "external"
	SourceLocal    Source = "local"
)

// TestResult is the outcome of one test case.
type TestResult struct {
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Verdict is the evaluation outcome shared by the external judge and the local
// fallback. Every field is always populated; counts are zero when not applicable.
type Verdict struct {
	CompilationError  bool         `json:"compilation_error"`
	SyntaxError       bool         `json:"syntax_error"`
	RuntimeError      bool         `json:"runtime_error"`
	TimedOut          bool         `json:"timed_out"`
	SyntaxErrorCount  int          `json:"syntax_error_count"`
	RuntimeErrorCount int          `json:"runtime_error_count"`
	LogicalErrorCount int          `json:"logical_error_count"`
	TestResults       []TestResult `json:"test_results"`
	ErrorDetails      string       `json:"error_details"`
	Source            Source       `json:"source"`
}

// Kind returns the first failure category in scoring order.
func (v Verdict) Kind() Kind {
	switch {
	case v.CompilationError:
		return KindCompilation
	case v.SyntaxError:
		return KindSyntax
	case v.RuntimeError:
		return KindRuntime
	case v.TimedOut:
		return KindTimeout
	default:
		return KindNone
	}
}

// Passed counts passing test results.
func (v Verdict) Passed() int {
	n := 0
	for _, tr := range v.TestResults {
		if tr.Passed {
			n++
		}
	}
	return n
}

// FirstFailure returns the first failing test result, if any.
func (v Verdict) FirstFailure() (TestResult, bool) {
	for _, tr := range v.TestResults {
		if !tr.Passed {
			return tr, true
		}
	}
	return TestResult{}, false
}

// Review is the verdict shape returned by the external judge in review mode.
type Review struct {
	HasLogic         bool   `json:"has_logic"`
	LogicalMistakes  bool   `json:"logical_mistakes"`
	SyntaxErrorCount int    `json:"syntax_error_count"`
	OtherErrorCount  int    `json:"other_error_count"`
	FeedbackLine     string `json:"feedback_line"`
}
