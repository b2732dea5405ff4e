// File: internal/qblog/qblog.go
// Package qblog implements the Logger sink spec.md's "Dependencies"
// section treats as an external collaborator reached through
// emit(level, file, line, func, msg): every caller already knows its
// own file/line/func, so the interface takes them as fields rather
// than a shared callsite registry (out of scope, spec.md §9 Non-goals).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package qblog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors spec.md's emit(level, ...) levels, ordered by severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger is the sink every package in this module logs through.
type Logger interface {
	Emit(level Level, file string, line int, fn string, msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a production zap.Logger wrapped as a Logger.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// NewNop returns a Logger that discards everything, for tests and
// callers that have not configured logging.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func (l *zapLogger) Emit(level Level, file string, line int, fn string, msg string, fields ...zap.Field) {
	all := append([]zap.Field{
		zap.String("file", file),
		zap.Int("line", line),
		zap.String("func", fn),
	}, fields...)
	if ce := l.z.Check(level.zapLevel(), msg); ce != nil {
		ce.Write(all...)
	}
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Sync() error { return l.z.Sync() }
