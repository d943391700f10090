// Package pslog adapts go.uber.org/zap to the scheduler.Logger interface.
// dogmatiq/verity, the retrieval pack's other persistence-and-messaging
// runtime, carries zap in its own dependency graph for exactly this role
// (structured diagnostics from a long-running engine); nothing in the pack
// hand-rolls a logging facade on top of the standard library's log
// package, so this wrapper follows zap's own idiom directly rather than
// inventing one.
package pslog

import (
	"go.uber.org/zap"
)

// Logger wraps a *zap.SugaredLogger to satisfy scheduler.Logger.
type Logger struct {
	s *zap.SugaredLogger
}

// New wraps an existing zap logger.
func New(l *zap.Logger) *Logger {
	return &Logger{s: l.Sugar()}
}

// NewDevelopment creates a Logger using zap's human-readable development
// encoder, suitable for the pstest CLI's --verbose output.
func NewDevelopment() (*Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(l), nil
}

// NewNop creates a Logger that discards everything, for tests that don't
// care about diagnostics but still need a non-nil scheduler.Logger.
func NewNop() *Logger {
	return New(zap.NewNop())
}

func (l *Logger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }

// Sync flushes any buffered log entries, per zap's own shutdown contract.
func (l *Logger) Sync() error { return l.s.Sync() }
