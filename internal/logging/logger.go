// Package logging provides categorized structured logging for the cogman
// runtime. Each subsystem logs through a named zap sub-logger so log output
// can be filtered per category. Call Initialize once at startup; before
// that, Get returns a no-op logger so library code never nil-checks.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot    Category = "boot"     // Startup and configuration
	CategoryRuntime Category = "runtime"  // Phase sequencer cycles
	CategoryGate    Category = "gate"     // Admission decisions
	CategoryTrace   Category = "trace"    // Trace lifecycle transitions
	CategoryWM      Category = "wm"       // Working-memory router
	CategoryStore   Category = "store"    // Trace persistence
	CategoryPost    Category = "postproc" // Async post-processing worker
	CategoryErrors  Category = "errors"   // Error containment
)

var (
	mu      sync.RWMutex
	base    *zap.Logger = zap.NewNop()
	loggers             = make(map[Category]*zap.SugaredLogger)
)

// Options controls logger construction.
type Options struct {
	Debug      bool // debug level instead of info
	JSONFormat bool // JSON encoder instead of console
}

// Initialize builds the base logger. Safe to call more than once; the last
// call wins and previously handed-out category loggers keep working because
// they are re-resolved on Get.
func Initialize(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !opts.JSONFormat {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	base = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// SetBase replaces the base logger directly. Used by tests and by callers
// that build their own zap configuration.
func SetBase(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	base = logger
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Get returns the sugared logger for a category.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
