package config

import (
	"fmt"
	"time"
)

// RecentEditsConfig configures edit tracking and summarization.
type RecentEditsConfig struct {
	Enabled                   bool   `yaml:"enabled"`
	MaxFiles                  int    `yaml:"max_files"`
	MaxEdits                  int    `yaml:"max_edits"`
	DiffContextLines          int    `yaml:"diff_context_lines"`
	EditMergeLineDistance     int    `yaml:"edit_merge_line_distance"`
	MaxCharsPerEdit           int    `yaml:"max_chars_per_edit"`
	MaxLinesPerEdit           int    `yaml:"max_lines_per_edit"`
	DebounceTimeout           string `yaml:"debounce_timeout"`
	SummarizationFormat       string `yaml:"summarization_format"` // only "diff"
	RemoveDeletedLines        bool   `yaml:"remove_deleted_lines"`
	InsertionsBeforeDeletions bool   `yaml:"insertions_before_deletions"`
	AppendNoReplyMarker       bool   `yaml:"append_no_reply_marker"`

	// ActiveDocDistanceLimitFromCursor drops hunks of the active document that
	// are further than this many lines from the cursor. Negative disables.
	ActiveDocDistanceLimitFromCursor int `yaml:"active_doc_distance_limit_from_cursor"`
}

// DefaultRecentEditsConfig returns the recent edits defaults.
func DefaultRecentEditsConfig() RecentEditsConfig {
	return RecentEditsConfig{
		Enabled:                          true,
		MaxFiles:                         20,
		MaxEdits:                         8,
		DiffContextLines:                 3,
		EditMergeLineDistance:            1,
		MaxCharsPerEdit:                  2000,
		MaxLinesPerEdit:                  10,
		DebounceTimeout:                  "500ms",
		SummarizationFormat:              "diff",
		RemoveDeletedLines:               false,
		InsertionsBeforeDeletions:        true,
		AppendNoReplyMarker:              true,
		ActiveDocDistanceLimitFromCursor: 100,
	}
}

// GetDebounceTimeout returns the debounce window; zero reduces immediately.
func (c RecentEditsConfig) GetDebounceTimeout() time.Duration {
	return parseDurationOr(c.DebounceTimeout, 500*time.Millisecond)
}

// Validate checks the recent edits limits.
func (c RecentEditsConfig) Validate() error {
	if c.MaxFiles < 1 {
		return fmt.Errorf("recent_edits.max_files must be positive: got %d", c.MaxFiles)
	}
	if c.MaxEdits < 1 {
		return fmt.Errorf("recent_edits.max_edits must be positive: got %d", c.MaxEdits)
	}
	if c.DiffContextLines < 0 || c.EditMergeLineDistance < 0 {
		return fmt.Errorf("recent_edits line distances must be non-negative")
	}
	if c.MaxCharsPerEdit < 1 || c.MaxLinesPerEdit < 1 {
		return fmt.Errorf("recent_edits per-edit limits must be positive")
	}
	if c.SummarizationFormat != "" && c.SummarizationFormat != "diff" {
		return fmt.Errorf("recent_edits.summarization_format %q not supported", c.SummarizationFormat)
	}
	if c.DebounceTimeout != "" {
		if _, err := time.ParseDuration(c.DebounceTimeout); err != nil {
			return fmt.Errorf("recent_edits.debounce_timeout: %w", err)
		}
	}
	return nil
}
