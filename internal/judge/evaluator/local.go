package evaluator

import (
	"context"
	"regexp"
	"strings"

	"codeblack/internal/judge/sandbox"
	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/scoring"
)

var (
	compilerErrorLine = regexp.MustCompile(`(?m)(^|:\s*)error:`)
	pythonSyntax      = regexp.MustCompile(`\b(SyntaxError|IndentationError|TabError)\b`)
	jsSyntax          = regexp.MustCompile(`\bSyntaxError\b`)
	runtimeMarkers    = regexp.MustCompile(`Traceback|Exception|Error:|Segmentation fault|core dumped`)
)

// Local evaluates submissions with the in-process sandbox.
type Local struct {
	exec sandbox.Executor
}

// NewLocal creates a local evaluator.
func NewLocal(exec sandbox.Executor) *Local {
	return &Local{exec: exec}
}

// Evaluate compiles once, runs every test case and synthesizes the verdict.
func (l *Local) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	inputs := make([]string, len(req.TestCases))
	for i, tc := range req.TestCases {
		inputs[i] = tc.Input
	}
	execution, err := l.exec.Execute(ctx, sandbox.ExecuteRequest{
		SubmissionID: req.SubmissionID,
		Language:     req.Language,
		Code:         req.Code,
		Inputs:       inputs,
		TimeLimitMs:  req.TimeLimitMs,
	})
	if err != nil {
		return Outcome{}, err
	}

	verdict := scoring.Verdict{Source: scoring.SourceLocal}
	language := profile.NormalizeLanguage(req.Language)

	if execution.CompilationFailed() {
		verdict.CompilationError = true
		verdict.SyntaxErrorCount = countCompilerErrors(execution.Compile.Error)
		verdict.ErrorDetails = execution.Compile.Error
		return Outcome{Verdict: verdict, Source: scoring.SourceLocal}, nil
	}

	var details []string
	for i, tc := range execution.Tests {
		expected := req.TestCases[i].Expected
		tr := scoring.TestResult{Expected: expected, Actual: strings.TrimSpace(tc.Stdout)}

		switch {
		case tc.TimedOut:
			verdict.TimedOut = true
		case isSyntaxFailure(language, tc.Stderr):
			verdict.SyntaxError = true
			verdict.SyntaxErrorCount = 1
			details = appendDetail(details, tc.Stderr)
		case tc.ExitCode != 0 || tc.OutputExceeded || runtimeMarkers.MatchString(tc.Stderr):
			verdict.RuntimeError = true
			verdict.RuntimeErrorCount++
			if tc.OutputExceeded {
				details = appendDetail(details, "output limit exceeded")
			} else {
				details = appendDetail(details, tc.Stderr)
			}
		default:
			tr.Passed = OutputsMatch(tc.Stdout, expected)
			if !tr.Passed {
				verdict.LogicalErrorCount++
			}
		}
		verdict.TestResults = append(verdict.TestResults, tr)
	}
	verdict.ErrorDetails = strings.Join(details, "\n")
	return Outcome{Verdict: verdict, Source: scoring.SourceLocal}, nil
}

// OutputsMatch compares program output with the expected answer, ignoring
// line-ending style and trailing whitespace.
func OutputsMatch(actual, expected string) bool {
	return normalizeOutput(actual) == normalizeOutput(expected)
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func isSyntaxFailure(language, stderr string) bool {
	switch language {
	case profile.LanguagePython:
		return pythonSyntax.MatchString(stderr)
	case profile.LanguageJavaScript:
		return jsSyntax.MatchString(stderr)
	}
	return false
}

func countCompilerErrors(diagnostics string) int {
	n := len(compilerErrorLine.FindAllStringIndex(diagnostics, -1))
	if n == 0 {
		return 1
	}
	return n
}

func appendDetail(details []string, msg string) []string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return details
	}
	for _, d := range details {
		if d == msg {
			return details
		}
	}
	return append(details, msg)
}
