package config

import "ghostprompt/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	LogsDir    string          `yaml:"logs_dir"`   // relative to workspace
	DebugMode  bool            `yaml:"debug_mode"` // Master toggle - false = no file logging
	Categories map[string]bool `yaml:"categories"` // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// LoggingSettings converts the section into the logging package config,
// resolving the logs directory against the workspace.
func (c *Config) LoggingSettings() logging.Config {
	return logging.Config{
		DebugMode:  c.Logging.DebugMode,
		LogsDir:    c.WorkspacePath(c.Logging.LogsDir),
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.Format == "json",
		Categories: c.Logging.Categories,
	}
}
