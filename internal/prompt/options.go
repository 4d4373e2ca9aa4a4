// Package prompt assembles completion prompts from the current document and
// context sources within a token budget.
package prompt

import (
	"fmt"

	"ghostprompt/internal/config"
	"ghostprompt/internal/tokenize"
)

// Options are the per-request assembly settings.
type Options struct {
	// MaxPromptLength is the token budget for prefix plus suffix.
	MaxPromptLength int
	// SuffixPercent is the share of MaxPromptLength reserved for the suffix.
	SuffixPercent int
	// SuffixMatchThreshold is the edit distance, in percent of the new
	// suffix length, under which a cached suffix is reused.
	SuffixMatchThreshold int
	NumberOfSnippets     int
	SimilarFiles         bool
	SplitContext         bool
	// AppendNoReplyMarker closes the recent-edits block with a marker line.
	AppendNoReplyMarker bool
	Tokenizer           tokenize.Tokenizer
}

// NewOptions derives options from a (request-scoped) configuration.
// Out-of-range percentages are errors.
func NewOptions(cfg *config.Config) (Options, error) {
	p := cfg.Prompt
	if p.SuffixPercent < 0 || p.SuffixPercent > 100 {
		return Options{}, fmt.Errorf("%w: got %d", config.ErrInvalidSuffixPercent, p.SuffixPercent)
	}
	if p.SuffixMatchThreshold < 0 || p.SuffixMatchThreshold > 100 {
		return Options{}, fmt.Errorf("%w: got %d", config.ErrInvalidSuffixMatchThreshold, p.SuffixMatchThreshold)
	}
	if cfg.MaxPromptLength() <= 0 {
		return Options{}, fmt.Errorf("%w: %d <= %d", config.ErrInvalidTokenBudget,
			p.MaxPromptCompletionTokens, p.MaxSolutionTokens)
	}
	tok, err := tokenize.Get(p.Tokenizer)
	if err != nil {
		return Options{}, fmt.Errorf("load tokenizer: %w", err)
	}
	return Options{
		MaxPromptLength:      cfg.MaxPromptLength(),
		SuffixPercent:        p.SuffixPercent,
		SuffixMatchThreshold: p.SuffixMatchThreshold,
		NumberOfSnippets:     cfg.SimilarFiles.NumberOfSnippets,
		SimilarFiles:         cfg.SimilarFiles.Enabled,
		SplitContext:         p.SplitContext,
		AppendNoReplyMarker:  cfg.RecentEdits.AppendNoReplyMarker,
		Tokenizer:            tok,
	}, nil
}

// suffixBudget is the token allowance of the suffix.
func (o Options) suffixBudget() int {
	return o.MaxPromptLength * o.SuffixPercent / 100
}
