package core

import (
	"github.com/go-logr/logr"
	"go.uber.org/zap"
)

// Logger receives operational events from the service and the executor.
// Diagnostics returned to callers are not routed through it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger. Args are alternating key/value pairs.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return zapLogger{s: l.Sugar()}
}

func (z zapLogger) Debug(msg string, args ...any) { z.s.Debugw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.s.Infow(msg, args...) }
func (z zapLogger) Warn(msg string, args ...any)  { z.s.Warnw(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.s.Errorw(msg, args...) }

type logrLogger struct {
	l logr.Logger
}

// NewLogrLogger adapts a logr logger. Debug maps to V(1); Warn is logged at
// info level with a level key since logr has no warning level.
func NewLogrLogger(l logr.Logger) Logger {
	return logrLogger{l: l}
}

func (g logrLogger) Debug(msg string, args ...any) { g.l.V(1).Info(msg, args...) }
func (g logrLogger) Info(msg string, args ...any)  { g.l.Info(msg, args...) }
func (g logrLogger) Warn(msg string, args ...any) {
	g.l.Info(msg, append([]any{"level", "warn"}, args...)...)
}
func (g logrLogger) Error(msg string, args ...any) { g.l.Error(nil, msg, args...) }
