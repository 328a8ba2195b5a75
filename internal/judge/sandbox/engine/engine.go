// Package engine runs one process under the sandbox limits.
package engine

import (
	"bytes"
	"context"
	"sync"

	"codeblack/internal/judge/sandbox/result"
	"codeblack/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec as a child process.
// An error means the process could not be set up; program failures are
// reported through the RunResult.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// cappedBuffer keeps at most limit bytes and records overflow.
type cappedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	exceeded bool
	onExceed func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exceeded {
		return len(p), nil
	}
	remaining := b.limit - int64(b.buf.Len())
	if int64(len(p)) > remaining {
		if remaining > 0 {
			b.buf.Write(p[:remaining])
		}
		b.exceeded = true
		if b.onExceed != nil {
			go b.onExceed()
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}
