package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidSuffixPercent is returned when suffix_percent is outside [0,100].
	ErrInvalidSuffixPercent = errors.New("suffix percent must be between 0 and 100")
	// ErrInvalidSuffixMatchThreshold is returned when suffix_match_threshold is outside [0,100].
	ErrInvalidSuffixMatchThreshold = errors.New("suffix match threshold must be between 0 and 100")
	// ErrInvalidTokenBudget is returned when the solution reserve leaves no room for a prompt.
	ErrInvalidTokenBudget = errors.New("max prompt completion tokens must exceed max solution tokens")
	// ErrInvalidDuration is returned when a duration setting does not parse.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Config holds all ghostprompt configuration.
type Config struct {
	// Workspace root used for relative paths and exclusion files.
	Workspace string `yaml:"workspace"`

	Prompt           PromptConfig           `yaml:"prompt"`
	RecentEdits      RecentEditsConfig      `yaml:"recent_edits"`
	ContextProviders ContextProvidersConfig `yaml:"context_providers"`
	SimilarFiles     SimilarFilesConfig     `yaml:"similar_files"`
	Exclusion        ExclusionConfig        `yaml:"exclusion"`
	Usage            UsageConfig            `yaml:"usage"`
	Logging          LoggingConfig          `yaml:"logging"`
}

// PromptConfig configures prompt assembly and the factory pipeline.
type PromptConfig struct {
	MaxPromptCompletionTokens int    `yaml:"max_prompt_completion_tokens"`
	MaxSolutionTokens         int    `yaml:"max_solution_tokens"`
	SuffixPercent             int    `yaml:"suffix_percent"`
	SuffixMatchThreshold      int    `yaml:"suffix_match_threshold"`
	MinPromptChars            int    `yaml:"min_prompt_chars"`
	Timeout                   string `yaml:"timeout"`
	Tokenizer                 string `yaml:"tokenizer"` // approx, cl100k_base, o200k_base
	SplitContext              bool   `yaml:"split_context"`
}

// ContextProvidersConfig configures the provider registry.
type ContextProvidersConfig struct {
	// Enabled lists provider ids allowed to resolve; "*" enables all.
	Enabled    []string `yaml:"enabled"`
	TimeBudget string   `yaml:"time_budget"` // "0s" disables the per-provider timeout; a provider that never returns then delays each later prompt by one prompt timeout

	// TelemetryTraits lists trait names that may be reported to telemetry.
	TelemetryTraits []string `yaml:"telemetry_traits"`

	// StaticTraits are served by the built-in config provider.
	StaticTraits []StaticTrait `yaml:"static_traits"`
}

// StaticTrait is a name/value trait served for documents in Languages.
type StaticTrait struct {
	Name       string   `yaml:"name"`
	Value      string   `yaml:"value"`
	Importance int      `yaml:"importance"`
	Languages  []string `yaml:"languages"`
}

// SimilarFilesConfig configures neighbor snippet matching.
type SimilarFilesConfig struct {
	Enabled          bool `yaml:"enabled"`
	NumberOfSnippets int  `yaml:"number_of_snippets"`
	SnippetLength    int  `yaml:"snippet_length"` // lines per window
	MaxFiles         int  `yaml:"max_files"`
	MaxFileChars     int  `yaml:"max_file_chars"`
}

// ExclusionConfig configures content exclusion.
type ExclusionConfig struct {
	Patterns   []string `yaml:"patterns"`
	IgnoreFile string   `yaml:"ignore_file"` // relative to workspace
}

// UsageConfig configures the usage tracker.
type UsageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // relative to workspace
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",

		Prompt: PromptConfig{
			MaxPromptCompletionTokens: 8192,
			MaxSolutionTokens:         500,
			SuffixPercent:             15,
			SuffixMatchThreshold:      10,
			MinPromptChars:            10,
			Timeout:                   "1200ms",
			Tokenizer:                 "cl100k_base",
		},

		RecentEdits: DefaultRecentEditsConfig(),

		ContextProviders: ContextProvidersConfig{
			TimeBudget: "150ms",
			TelemetryTraits: []string{
				"TargetFrameworks",
				"LanguageVersion",
				"ProjectType",
			},
		},

		SimilarFiles: SimilarFilesConfig{
			Enabled:          true,
			NumberOfSnippets: 4,
			SnippetLength:    60,
			MaxFiles:         20,
			MaxFileChars:     10000,
		},

		Exclusion: ExclusionConfig{
			IgnoreFile: ".ghostignore",
		},

		Usage: UsageConfig{
			Enabled: true,
			Dir:     ".ghostprompt",
		},

		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			LogsDir: ".ghostprompt/logs",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		data = nil
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Malformed numeric values are ignored and left to Validate.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GHOSTPROMPT_MAX_PROMPT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Prompt.MaxPromptCompletionTokens = n
		}
	}
	if v := os.Getenv("GHOSTPROMPT_SUFFIX_PERCENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Prompt.SuffixPercent = n
		}
	}
	if v := os.Getenv("GHOSTPROMPT_PROMPT_TIMEOUT"); v != "" {
		c.Prompt.Timeout = v
	}
	if v := os.Getenv("GHOSTPROMPT_TOKENIZER"); v != "" {
		c.Prompt.Tokenizer = v
	}
	if v := os.Getenv("GHOSTPROMPT_CONTEXT_PROVIDERS"); v != "" {
		c.ContextProviders.Enabled = splitList(v)
	}
	if v := os.Getenv("GHOSTPROMPT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GHOSTPROMPT_WORKSPACE"); v != "" {
		c.Workspace = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration. Out-of-range values are errors,
// never silently clamped.
func (c *Config) Validate() error {
	if c.Prompt.SuffixPercent < 0 || c.Prompt.SuffixPercent > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidSuffixPercent, c.Prompt.SuffixPercent)
	}
	if c.Prompt.SuffixMatchThreshold < 0 || c.Prompt.SuffixMatchThreshold > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidSuffixMatchThreshold, c.Prompt.SuffixMatchThreshold)
	}
	if c.Prompt.MaxPromptCompletionTokens <= c.Prompt.MaxSolutionTokens {
		return fmt.Errorf("%w: %d <= %d", ErrInvalidTokenBudget,
			c.Prompt.MaxPromptCompletionTokens, c.Prompt.MaxSolutionTokens)
	}
	if c.Prompt.MaxSolutionTokens < 0 {
		return fmt.Errorf("max solution tokens must be non-negative: got %d", c.Prompt.MaxSolutionTokens)
	}
	if err := validateDuration("prompt.timeout", c.Prompt.Timeout); err != nil {
		return err
	}
	if err := validateDuration("context_providers.time_budget", c.ContextProviders.TimeBudget); err != nil {
		return err
	}
	if err := c.RecentEdits.Validate(); err != nil {
		return err
	}
	if c.SimilarFiles.NumberOfSnippets < 0 {
		return fmt.Errorf("number of snippets must be non-negative: got %d", c.SimilarFiles.NumberOfSnippets)
	}
	return nil
}

// MaxPromptLength is the token budget left for prefix and suffix.
func (c *Config) MaxPromptLength() int {
	return c.Prompt.MaxPromptCompletionTokens - c.Prompt.MaxSolutionTokens
}

// GetPromptTimeout returns the prompt factory deadline.
func (c *Config) GetPromptTimeout() time.Duration {
	return parseDurationOr(c.Prompt.Timeout, 1200*time.Millisecond)
}

// GetProviderTimeBudget returns the per-provider budget; zero means unlimited.
func (c *Config) GetProviderTimeBudget() time.Duration {
	return parseDurationOr(c.ContextProviders.TimeBudget, 150*time.Millisecond)
}

// WorkspacePath resolves p against the workspace root unless it is absolute.
func (c *Config) WorkspacePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workspace, p)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	cp.ContextProviders.Enabled = append([]string(nil), c.ContextProviders.Enabled...)
	cp.ContextProviders.TelemetryTraits = append([]string(nil), c.ContextProviders.TelemetryTraits...)
	cp.ContextProviders.StaticTraits = append([]StaticTrait(nil), c.ContextProviders.StaticTraits...)
	cp.Exclusion.Patterns = append([]string(nil), c.Exclusion.Patterns...)
	if c.Logging.Categories != nil {
		cp.Logging.Categories = make(map[string]bool, len(c.Logging.Categories))
		for k, v := range c.Logging.Categories {
			cp.Logging.Categories[k] = v
		}
	}
	return &cp
}

// validateDuration accepts an empty value, which selects the default.
func validateDuration(key, s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidDuration, key, s)
	}
	return nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
