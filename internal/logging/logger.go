// Package logging provides config-driven categorized logging for ghostprompt.
// Each category gets its own zap logger. In debug mode logs are written to
// <logs_dir>/<date>_<category>.log; otherwise every category is a no-op unless
// a base zap logger has been installed with UseZap.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot             Category = "boot"              // Boot/initialization
	CategoryConfig           Category = "config"            // Config loading and overrides
	CategoryPrompt           Category = "prompt"            // Prompt assembly, token budget
	CategoryPipeline         Category = "pipeline"          // Sequential/timeout layers
	CategoryRecentEdits      Category = "recent_edits"      // Edit tracking, debounce, reduce
	CategoryContextProviders Category = "context_providers" // Provider registry and bridge
	CategorySimilarFiles     Category = "similar_files"     // Neighbor snippet matching
	CategoryExclusion        Category = "exclusion"         // Content exclusion checks
	CategoryTokenizer        Category = "tokenizer"         // Tokenizer loading
	CategoryWorkspace        Category = "workspace"         // Document manager, fs watcher
	CategoryUsage            Category = "usage"             // Usage tracking
)

// AllCategories lists every known category.
var AllCategories = []Category{
	CategoryBoot,
	CategoryConfig,
	CategoryPrompt,
	CategoryPipeline,
	CategoryRecentEdits,
	CategoryContextProviders,
	CategorySimilarFiles,
	CategoryExclusion,
	CategoryTokenizer,
	CategoryWorkspace,
	CategoryUsage,
}

// Config mirrors config.LoggingConfig to avoid circular imports.
type Config struct {
	DebugMode  bool
	LogsDir    string
	Level      string
	JSONFormat bool
	Categories map[string]bool
}

// Logger wraps a zap sugared logger bound to a category.
// A Logger with a nil sugar is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	config   Config
	configMu sync.RWMutex
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	// base, when set, receives every category as a named child logger.
	base *zap.Logger
)

// Initialize applies cfg and prepares the logs directory when debug mode is on.
// Existing category loggers are closed so that they pick up the new settings.
func Initialize(cfg Config) error {
	CloseAll()

	configMu.Lock()
	config = cfg
	level.SetLevel(parseLevel(cfg.Level))
	configMu.Unlock()

	if !cfg.DebugMode {
		return nil
	}
	if cfg.LogsDir == "" {
		return fmt.Errorf("logs directory required in debug mode")
	}
	if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== ghostprompt logging initialized ===")
	boot.Info("Logs directory: %s", cfg.LogsDir)
	boot.Info("Log level: %s", level.Level())
	if len(cfg.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	} else {
		enabled := 0
		for cat, on := range cfg.Categories {
			if on {
				enabled++
			}
			boot.Debug("Category '%s': %v", cat, on)
		}
		boot.Info("Enabled categories: %d/%d", enabled, len(cfg.Categories))
	}
	return nil
}

// UseZap routes every category to named children of l. Passing nil restores
// file-based behaviour.
func UseZap(l *zap.Logger) {
	CloseAll()
	configMu.Lock()
	base = l
	configMu.Unlock()
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel changes the level of all file-based category loggers at runtime.
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

// IsDebugMode returns whether file logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if base != nil {
		return true
	}
	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := newLogger(category)
	loggers[category] = l
	return l
}

func newLogger(category Category) *Logger {
	configMu.RLock()
	b := base
	cfg := config
	configMu.RUnlock()

	if b != nil {
		return &Logger{category: category, sugar: b.Named(string(category)).Sugar()}
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(cfg.LogsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(file), level)
	zl := zap.New(core).With(zap.String("cat", string(category)))

	return &Logger{category: category, sugar: zl.Sugar(), file: file}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// StructuredLog writes a log entry with custom key/value fields.
func (l *Logger) StructuredLog(lvl string, msg string, fields map[string]interface{}) {
	if l.sugar == nil {
		return
	}
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	switch parseLevel(lvl) {
	case zapcore.DebugLevel:
		l.sugar.Debugw(msg, kv...)
	case zapcore.WarnLevel:
		l.sugar.Warnw(msg, kv...)
	case zapcore.ErrorLevel:
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

// With returns a child logger that attaches the given key/value pairs to
// every entry, e.g. With("completion_id", id).
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Enabled reports whether the logger writes anywhere.
func (l *Logger) Enabled() bool {
	return l.sugar != nil
}

// CloseAll flushes and closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Prompt(format string, args ...interface{})      { Get(CategoryPrompt).Info(format, args...) }
func PromptDebug(format string, args ...interface{}) { Get(CategoryPrompt).Debug(format, args...) }
func PromptWarn(format string, args ...interface{})  { Get(CategoryPrompt).Warn(format, args...) }
func PromptError(format string, args ...interface{}) { Get(CategoryPrompt).Error(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

func RecentEdits(format string, args ...interface{}) { Get(CategoryRecentEdits).Info(format, args...) }
func RecentEditsDebug(format string, args ...interface{}) {
	Get(CategoryRecentEdits).Debug(format, args...)
}

func ContextProviders(format string, args ...interface{}) {
	Get(CategoryContextProviders).Info(format, args...)
}
func ContextProvidersDebug(format string, args ...interface{}) {
	Get(CategoryContextProviders).Debug(format, args...)
}
func ContextProvidersWarn(format string, args ...interface{}) {
	Get(CategoryContextProviders).Warn(format, args...)
}

func SimilarFilesDebug(format string, args ...interface{}) {
	Get(CategorySimilarFiles).Debug(format, args...)
}

func Exclusion(format string, args ...interface{})      { Get(CategoryExclusion).Info(format, args...) }
func ExclusionDebug(format string, args ...interface{}) { Get(CategoryExclusion).Debug(format, args...) }

func Workspace(format string, args ...interface{})      { Get(CategoryWorkspace).Info(format, args...) }
func WorkspaceDebug(format string, args ...interface{}) { Get(CategoryWorkspace).Debug(format, args...) }
func WorkspaceWarn(format string, args ...interface{})  { Get(CategoryWorkspace).Warn(format, args...) }

func Usage(format string, args ...interface{})     { Get(CategoryUsage).Info(format, args...) }
func UsageWarn(format string, args ...interface{}) { Get(CategoryUsage).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
