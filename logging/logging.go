// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wraps go.uber.org/zap behind the teacher pack's
// global Trace/Debug/.../Crit calling convention (see log/compat.go),
// with log rotation handled by gopkg.in/natefinch/lumberjack.v2 rather
// than an external log-shipping agent.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors the teacher's five-plus-one verbosity scale; Trace has
// no native zap level, so it shares zap's Debug level (Trace messages
// are told apart only by their "TRACE " message prefix).
type Level int8

const (
	LevelTrace Level = iota - 2
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelCrit:
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu   sync.RWMutex
	root = newDefault()
)

func newDefault() *zap.SugaredLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(os.Stderr), zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

// FileConfig configures rotation for a file-backed logger, grounded on
// the teacher's node logging setup (JSON lines, size-based rotation).
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      Level
}

// Configure replaces the process-wide logger with one that writes
// rotated JSON lines to cfg.Path in addition to stderr.
func Configure(cfg FileConfig) {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), cfg.Level.zapLevel()),
		zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(os.Stderr), cfg.Level.zapLevel()),
	)

	mu.Lock()
	root = zap.New(core).Sugar()
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Trace logs at trace verbosity. ctx is a flat key/value sequence,
// matching the teacher's Trace/Debug/.../Crit calling convention.
func Trace(msg string, ctx ...interface{}) { get().Debugw("TRACE "+msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { get().Debugw(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { get().Infow(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { get().Warnw(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { get().Errorw(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { get().Errorw("CRIT "+msg, ctx...) }

// Sync flushes any buffered log entries; call before process exit.
func Sync() error { return get().Sync() }
