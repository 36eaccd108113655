// Package logging provides config-driven categorized logging for arps.
// Every category is a named child of one zap logger; a category disabled in the
// config gets a no-op logger. Until Initialize runs every category is silent.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryOracle   Category = "oracle"   // Reasoning oracle calls
	CategoryRepair   Category = "repair"   // Response repair / fallback synthesis
	CategoryPipeline Category = "pipeline" // Orchestrator state transitions
	CategoryAPI      Category = "api"      // HTTP surface

	// Stage categories
	CategoryWeaver    Category = "weaver"    // Context Weaver (stage A)
	CategoryAllocator Category = "allocator" // Resource Allocator (stage B)
	CategoryEnforcer  Category = "enforcer"  // Policy Enforcer (stage C)
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryBoot, CategoryOracle, CategoryRepair, CategoryPipeline, CategoryAPI,
	CategoryWeaver, CategoryAllocator, CategoryEnforcer,
}

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional; stderr when empty
	Categories map[string]bool // per-category toggles, missing = enabled
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	enabled map[string]bool
	cache   = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the root logger from cfg. Safe to call again; the previous
// root logger is synced and replaced.
func Initialize(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sink := zapcore.Lock(os.Stderr)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		sink = zapcore.AddSync(f)
	}

	return Use(zap.New(zapcore.NewCore(encoder, sink, level)), cfg.Categories)
}

// Use installs an already-built zap logger as the root logger.
// cmd/arps hands over its CLI logger this way.
func Use(l *zap.Logger, categories map[string]bool) error {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	_ = root.Sync()
	root = l
	enabled = categories
	cache = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Reset restores the silent default. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	_ = root.Sync()
	root = zap.NewNop()
	enabled = nil
	cache = make(map[Category]*zap.SugaredLogger)
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	if enabled == nil {
		return true
	}
	on, exists := enabled[string(category)]
	if !exists {
		return true
	}
	return on
}

// Get returns (or creates) the logger for the given category.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := cache[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := cache[category]; ok {
		return l
	}
	var l *zap.SugaredLogger
	if IsCategoryEnabled(category) {
		l = root.Named(string(category)).Sugar()
	} else {
		l = zap.NewNop().Sugar()
	}
	cache[category] = l
	return l
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Infof(format, args...) }

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warnf(format, args...) }

// Oracle logs to the oracle category
func Oracle(format string, args ...interface{}) { Get(CategoryOracle).Infof(format, args...) }

// OracleDebug logs debug to the oracle category
func OracleDebug(format string, args ...interface{}) { Get(CategoryOracle).Debugf(format, args...) }

// OracleError logs an error to the oracle category
func OracleError(format string, args ...interface{}) { Get(CategoryOracle).Errorf(format, args...) }

// RepairDebug logs debug to the repair category
func RepairDebug(format string, args ...interface{}) { Get(CategoryRepair).Debugf(format, args...) }

// RepairWarn logs a warning to the repair category
func RepairWarn(format string, args ...interface{}) { Get(CategoryRepair).Warnf(format, args...) }

// Pipeline logs to the pipeline category
func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Infof(format, args...) }

// PipelineDebug logs debug to the pipeline category
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debugf(format, args...) }

// PipelineError logs an error to the pipeline category
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Errorf(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Infof(format, args...) }

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Errorf(format, args...) }

// Weaver logs to the weaver category
func Weaver(format string, args ...interface{}) { Get(CategoryWeaver).Infof(format, args...) }

// WeaverDebug logs debug to the weaver category
func WeaverDebug(format string, args ...interface{}) { Get(CategoryWeaver).Debugf(format, args...) }

// Allocator logs to the allocator category
func Allocator(format string, args ...interface{}) { Get(CategoryAllocator).Infof(format, args...) }

// AllocatorDebug logs debug to the allocator category
func AllocatorDebug(format string, args ...interface{}) {
	Get(CategoryAllocator).Debugf(format, args...)
}

// AllocatorWarn logs a warning to the allocator category
func AllocatorWarn(format string, args ...interface{}) { Get(CategoryAllocator).Warnf(format, args...) }

// Enforcer logs to the enforcer category
func Enforcer(format string, args ...interface{}) { Get(CategoryEnforcer).Infof(format, args...) }

// EnforcerWarn logs a warning to the enforcer category
func EnforcerWarn(format string, args ...interface{}) { Get(CategoryEnforcer).Warnf(format, args...) }
