package runner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/sandbox/result"
	"codeblack/internal/judge/sandbox/spec"
	appErr "codeblack/pkg/errors"
)

type fakeEngine struct {
	specs []spec.RunSpec
	res   result.RunResult
	err   error
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.specs = append(f.specs, runSpec)
	return f.res, f.err
}

func cLanguage() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:             "c",
		SourceFile:     "main.c",
		BinaryFile:     "main",
		CompileEnabled: true,
		CompileCmdTpl:  "gcc -O2 -o {bin} {src} -lm",
		RunCmdTpl:      "{bin}",
		TimeMultiplier: 1,
	}
}

func TestBuildCommandExpandsPlaceholders(t *testing.T) {
	lang := profile.LanguageSpec{SourceFile: "Main.java", RunCmdTpl: "java -cp {dir} Main"}
	cmd, err := buildCommand("javac -d {dir} {src}", lang, "/tmp/w")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"javac", "-d", "/tmp/w", "/tmp/w/Main.java"}
	if !reflect.DeepEqual(cmd, want) {
		t.Fatalf("got %v, want %v", cmd, want)
	}
	if _, err := buildCommand("   ", lang, "/tmp/w"); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams for empty template, got %v", err)
	}
}

func TestMapRunVerdict(t *testing.T) {
	tests := []struct {
		name string
		res  result.RunResult
		want result.Verdict
	}{
		{"accepted", result.RunResult{}, result.VerdictAC},
		{"timeout", result.RunResult{TimedOut: true, ExitCode: -1}, result.VerdictTLE},
		{"output killed", result.RunResult{OutputExceeded: true, ExitCode: -1}, result.VerdictOLE},
		{"runtime", result.RunResult{ExitCode: 1}, result.VerdictRE},
		{"signal", result.RunResult{ExitCode: -1}, result.VerdictRE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapRunVerdict(tt.res); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyLimits(t *testing.T) {
	lang := profile.LanguageSpec{TimeMultiplier: 2, MemoryLimitMB: 128}
	got := applyLimits(spec.ResourceLimit{WallTimeMs: 1000, CPUTimeMs: 1000}, lang)
	if got.WallTimeMs != 2000 || got.CPUTimeMs != 2000 || got.MemoryMB != 128 {
		t.Fatalf("unexpected limits %+v", got)
	}
	if scaleLimit(0, 3) != 0 || scaleLimit(10, 0) != 10 || scaleLimit(10, 1.25) != 13 {
		t.Fatalf("unexpected scaleLimit results")
	}
}

func TestCompileFailureKeepsDiagnostics(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{ExitCode: 1, Stderr: "main.c:1: error: expected ';'\n"}}
	r := NewRunner(eng)
	res, err := r.Compile(context.Background(), CompileRequest{SubmissionID: "s1", Language: cLanguage(), WorkDir: "/w"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK || res.Error != "main.c:1: error: expected ';'" {
		t.Fatalf("unexpected compile result %+v", res)
	}
	if eng.specs[0].Cmd[0] != "gcc" {
		t.Fatalf("unexpected command %v", eng.specs[0].Cmd)
	}
}

func TestCompileSkippedForInterpretedLanguage(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng)
	res, err := r.Compile(context.Background(), CompileRequest{Language: profile.LanguageSpec{ID: "python"}, WorkDir: "/w"})
	if err != nil || !res.OK {
		t.Fatalf("expected ok, got %+v %v", res, err)
	}
	if len(eng.specs) != 0 {
		t.Fatalf("engine should not be invoked")
	}
}

func TestRunEngineFailureIsSystemError(t *testing.T) {
	eng := &fakeEngine{err: errors.New("exec: not found")}
	r := NewRunner(eng)
	res, err := r.Run(context.Background(), RunRequest{TestID: "1", Language: cLanguage(), WorkDir: "/w"})
	if !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("expected JudgeSystemError, got %v", err)
	}
	if res.Verdict != result.VerdictSE {
		t.Fatalf("expected SE verdict, got %s", res.Verdict)
	}
}

func TestRunPassesStdinAndScaledLimits(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{Stdout: "6\n"}}
	r := NewRunner(eng)
	lang := cLanguage()
	lang.TimeMultiplier = 2
	res, err := r.Run(context.Background(), RunRequest{
		TestID:   "1",
		Language: lang,
		WorkDir:  "/w",
		Stdin:    "3\n1 2 3",
		Limits:   spec.ResourceLimit{WallTimeMs: 500},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verdict != result.VerdictAC || res.Stdout != "6\n" {
		t.Fatalf("unexpected result %+v", res)
	}
	if eng.specs[0].Stdin != "3\n1 2 3" || eng.specs[0].Limits.WallTimeMs != 1000 {
		t.Fatalf("unexpected spec %+v", eng.specs[0])
	}
	if eng.specs[0].Cmd[0] != "/w/main" {
		t.Fatalf("unexpected command %v", eng.specs[0].Cmd)
	}
}
