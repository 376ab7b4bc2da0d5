// Package logging provides structured logging with import/operation
// context, adapted from the teacher's run-context logger.
//
// Two logger variants are available:
//   - Logger: non-sugared zap.Logger for hot paths (per-row/per-file loops)
//   - SugaredLogger: printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context carries the identifiers stamped onto every log entry emitted
// by a given component instance. ImportID is set for the import
// pipeline, OperationID for the cleanse engine/coordinator; either may
// be empty when not applicable.
type Context struct {
	ImportID    string
	OperationID string
	Component   string
}

// Logger provides structured logging with import/operation context.
type Logger struct {
	zap *zap.Logger
	ctx Context
}

// SugaredLogger provides printf-style logging for CLI/debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// New creates a new logger scoped to ctx. Output defaults to os.Stderr.
func New(ctx Context) *Logger {
	return newWithWriter(ctx, os.Stderr)
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return newWithWriter(l.ctx, w)
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

func newWithWriter(ctx Context, w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)

	fields := make([]zap.Field, 0, 3)
	if ctx.Component != "" {
		fields = append(fields, zap.String("component", ctx.Component))
	}
	if ctx.ImportID != "" {
		fields = append(fields, zap.String("import_id", ctx.ImportID))
	}
	if ctx.OperationID != "" {
		fields = append(fields, zap.String("operation_id", ctx.OperationID))
	}

	return &Logger{zap: zap.New(core).With(fields...), ctx: ctx}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

func (s *SugaredLogger) Debugf(template string, args ...any) { s.sugar.Debugf(template, args...) }
func (s *SugaredLogger) Infof(template string, args ...any)  { s.sugar.Infof(template, args...) }
func (s *SugaredLogger) Warnf(template string, args ...any)  { s.sugar.Warnf(template, args...) }
func (s *SugaredLogger) Errorf(template string, args ...any) { s.sugar.Errorf(template, args...) }

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
