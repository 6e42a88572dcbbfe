package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger is a thin wrapper around a sugared zap logger so the rest of the
// codebase does not import zap directly.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger for the given mode ("dev" or "prod").
func New(mode string) (*Logger, error) {
	var (
		z   *zap.Logger
		err error
	)
	switch mode {
	case "prod", "production":
		z, err = zap.NewProduction()
	default:
		z, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("init zap (%s): %w", mode, err)
	}
	return &Logger{s: z.Sugar()}, nil
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

func (l *Logger) Sync() {
	_ = l.s.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...any) {
	l.s.Fatalw(msg, keysAndValues...)
}
