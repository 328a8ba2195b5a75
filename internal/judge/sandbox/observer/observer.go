// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"

	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64)
	ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64)
}

// NoopMetricsRecorder discards observations.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(context.Context, string, bool, int64) {}

func (NoopMetricsRecorder) ObserveRun(context.Context, string, string, int64, int64) {}

// LogRecorder writes observations to the debug log.
type LogRecorder struct{}

func (LogRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64) {
	logger.Debug(ctx, "sandbox compile",
		zap.String("language", languageID),
		zap.Bool("ok", ok),
		zap.Int64("time_ms", timeMs),
	)
}

func (LogRecorder) ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64) {
	logger.Debug(ctx, "sandbox run",
		zap.String("language", languageID),
		zap.String("verdict", verdict),
		zap.Int64("time_ms", timeMs),
		zap.Int64("memory_kb", memoryKB),
	)
}
