package sandbox

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"codeblack/internal/judge/sandbox/engine"
	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/sandbox/result"
	"codeblack/internal/judge/sandbox/runner"
	appErr "codeblack/pkg/errors"
)

type fakeRunner struct {
	mu         sync.Mutex
	compileRes result.CompileResult
	runFn      func(req runner.RunRequest) result.TestcaseResult
	workDirs   []string
	compiles   int
}

func (f *fakeRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiles++
	f.workDirs = append(f.workDirs, req.WorkDir)
	return f.compileRes, nil
}

func (f *fakeRunner) Run(ctx context.Context, req runner.RunRequest) (result.TestcaseResult, error) {
	f.mu.Lock()
	f.workDirs = append(f.workDirs, req.WorkDir)
	f.mu.Unlock()
	return f.runFn(req), nil
}

func newTestWorker(t *testing.T, r runner.Runner) *Worker {
	t.Helper()
	w, err := NewWorker(r, profile.NewRegistry(profile.DefaultLanguages()), Config{
		WorkRoot: t.TempDir(),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func TestExecuteCompileFailureShortCircuits(t *testing.T) {
	fr := &fakeRunner{
		compileRes: result.CompileResult{OK: false, ExitCode: 1, Error: "error: expected ';'"},
		runFn: func(req runner.RunRequest) result.TestcaseResult {
			t.Fatalf("program must not run after a compile failure")
			return result.TestcaseResult{}
		},
	}
	w := newTestWorker(t, fr)
	res, err := w.Run(context.Background(), "c", "int main(){", "", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CompilationError || res.Stderr != "error: expected ';'" {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, dir := range fr.workDirs {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("workdir %s should be removed", dir)
		}
	}
}

func TestExecuteRunsEveryInputSerially(t *testing.T) {
	fr := &fakeRunner{
		runFn: func(req runner.RunRequest) result.TestcaseResult {
			return result.TestcaseResult{TestID: req.TestID, Verdict: result.VerdictAC, Stdout: strings.ToUpper(req.Stdin)}
		},
	}
	w := newTestWorker(t, fr)
	out, err := w.Execute(context.Background(), ExecuteRequest{Language: "python", Code: "print()", Inputs: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.compiles != 0 {
		t.Fatalf("interpreted languages must not compile")
	}
	if len(out.Tests) != 3 || out.Tests[2].Stdout != "C" || out.Tests[2].TestID != "3" {
		t.Fatalf("unexpected tests %+v", out.Tests)
	}
}

func TestExecuteRejectsUnsupportedLanguage(t *testing.T) {
	w := newTestWorker(t, &fakeRunner{})
	_, err := w.Run(context.Background(), "cobol", "x", "", 1000)
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestPoolAcquireTimesOut(t *testing.T) {
	p := NewPool(1, 20*time.Millisecond)
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := p.Acquire(context.Background()); !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected JudgeQueueFull, got %v", err)
	}
	p.Release()
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if p.InUse() != 1 || p.Size() != 1 {
		t.Fatalf("unexpected pool state %d/%d", p.InUse(), p.Size())
	}
}

func newRealWorker(t *testing.T) *Worker {
	t.Helper()
	eng, err := engine.NewEngine(engine.Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	w, err := NewWorker(runner.NewRunner(eng), profile.NewRegistry(profile.DefaultLanguages()), Config{
		WorkRoot: t.TempDir(),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestPythonEndToEnd(t *testing.T) {
	requireTool(t, "python3")
	w := newRealWorker(t)

	res, err := w.Run(context.Background(), "python", "import sys\nprint(sys.stdin.read()[::-1])", "hello", 5000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "olleh" || res.ExitCode != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = w.Run(context.Background(), "python", "while True:\n    pass\n", "", 300)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}

	res, err = w.Run(context.Background(), "python", "def broken(:\n", "", 2000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode == 0 || !strings.Contains(res.Stderr, "SyntaxError") {
		t.Fatalf("expected syntax error, got %+v", res)
	}
}

func TestPythonOutputLimit(t *testing.T) {
	requireTool(t, "python3")
	eng, err := engine.NewEngine(engine.Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	w, err := NewWorker(runner.NewRunner(eng), profile.NewRegistry(profile.DefaultLanguages()), Config{
		WorkRoot:         t.TempDir(),
		PoolSize:         1,
		OutputLimitBytes: 1024,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	res, err := w.Run(context.Background(), "python", "while True:\n    print('x' * 100)\n", "", 5000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.OutputExceeded || res.TimedOut {
		t.Fatalf("expected output limit, got timedOut=%v outputExceeded=%v", res.TimedOut, res.OutputExceeded)
	}
	if len(res.Stdout) > 1024 {
		t.Fatalf("stdout not bounded: %d bytes", len(res.Stdout))
	}

	out, err := w.Execute(context.Background(), ExecuteRequest{
		Language:    "python",
		Code:        "import os, signal\nos.kill(os.getpid(), signal.SIGSEGV)\n",
		Inputs:      []string{""},
		TimeLimitMs: 5000,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if tc := out.Tests[0]; tc.Verdict != result.VerdictRE || tc.TimedOut {
		t.Fatalf("signal death should be a runtime error, got %+v", tc)
	}
}

func TestCEndToEnd(t *testing.T) {
	requireTool(t, "gcc")
	w := newRealWorker(t)

	src := "#include <stdio.h>\nint main(){int n,s=0,x;scanf(\"%d\",&n);while(n--){scanf(\"%d\",&x);s+=x;}printf(\"%d\\n\",s);return 0;}\n"
	res, err := w.Run(context.Background(), "c", src, "3\n1 2 3", 5000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "6" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = w.Run(context.Background(), "c", "int main( { return 0 }", "", 5000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.CompilationError || res.Stderr == "" {
		t.Fatalf("expected compilation error, got %+v", res)
	}
}
