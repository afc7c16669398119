// Package logger provides the structured logging used across tagdir: the
// Operation Dispatcher traces every FUSE call it receives, and the
// Entity-Path Watcher logs (and swallows) the errors it encounters.
//
// It keeps the level-based convenience API (Trace/Debug/Info/Warn/Error)
// this codebase has always exposed, but the backing implementation is
// go.uber.org/zap rather than the standard library logger: structured
// fields and level-aware sampling are worth pulling in a real logging
// library for, the same tradeoff this codebase's wider dependency set
// makes elsewhere.
package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors zapcore.Level but keeps the package's own name, so
// callers don't need to import zap just to call SetLevel.
type Level = zapcore.Level

const (
	TRACE = zapcore.DebugLevel - 1
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

var (
	mu      sync.RWMutex
	sugar   *zap.SugaredLogger
	atLevel zap.AtomicLevel
	enabled atomic.Bool // trace is disabled by default; see EnableTrace
)

func init() {
	atLevel = zap.NewAtomicLevelAt(INFO)
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), atLevel)
	sugar = zap.New(core).Sugar()
}

// SetLevel sets the minimum level that will be emitted. TRACE additionally
// requires EnableTrace(), matching the fine-grained subsystem tracing this
// codebase has always offered on top of plain level filtering.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	if l <= DEBUG {
		atLevel.SetLevel(DEBUG)
	} else {
		atLevel.SetLevel(l)
	}
}

// EnableTrace turns TRACE-level messages on; they are otherwise
// suppressed even when the level is DEBUG, since trace output is
// intended for targeted debugging of the Operation Dispatcher, not
// routine operation.
func EnableTrace() { enabled.Store(true); SetLevel(DEBUG) }

// DisableTrace turns TRACE-level messages back off.
func DisableTrace() { enabled.Store(false) }

func Trace(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	get().Debugf(format, args...)
}

func Debug(format string, args ...any) { get().Debugf(format, args...) }
func Info(format string, args ...any)  { get().Infof(format, args...) }
func Warn(format string, args ...any)  { get().Warnf(format, args...) }
func Error(format string, args ...any) { get().Errorf(format, args...) }

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes any buffered log entries. Call it once before the
// process exits.
func Sync() error {
	return get().Sync()
}
